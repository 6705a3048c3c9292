// Package repository 定义面向领域服务的仓储契约
//
// 具体实现位于 data/repo，领域服务只依赖这里的窄接口，便于替换与测试。
package repository

import (
	"context"

	"gochen-data/domain/entity"
)

// IRepository 简单 CRUD 仓储接口
//
// 写操作只暂存变更，由 ITransactional.Commit 或工作单元统一落库。
type IRepository[T entity.IEntity[K], K comparable] interface {
	// GetByID 通过主键获取实体，不存在时返回 NotFound
	GetByID(ctx context.Context, id K) (T, error)

	// List 按主键升序分页查询
	List(ctx context.Context, offset, limit int) ([]T, error)

	// Add 暂存新增
	Add(e T) (T, error)

	// Update 暂存修改，返回该实体
	Update(e T) (T, error)

	// Remove 暂存删除，返回被删除的实体
	Remove(e T) (T, error)

	// RemoveByKey 按主键解析实体并暂存删除，返回被删除的实体；不存在时返回 NotFound
	RemoveByKey(ctx context.Context, id K) (T, error)

	// Count 统计总数
	Count(ctx context.Context) (int64, error)

	// Exists 检查实体是否存在
	Exists(ctx context.Context, id K) (bool, error)
}
