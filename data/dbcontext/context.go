// Package dbcontext 定义持久化上下文契约：实体集查询、变更暂存、落库、丢弃与事务。
//
// 上下文及其变更跟踪器都不是并发安全的，同一时刻只能被一个调用方使用；
// 工作单元负责在多个上下文之间分派提交与回滚。
package dbcontext

import (
	"context"
	"errors"

	"gochen-data/data/orm"
)

// 上下文层哨兵错误，由 errors.Normalize 映射为统一错误码
var (
	// ErrNoTransaction 提交/回滚时没有活动事务
	ErrNoTransaction = errors.New("dbcontext: no active transaction")
	// ErrTransactionActive 同一上下文已存在活动事务
	ErrTransactionActive = errors.New("dbcontext: transaction already active")
	// ErrContextClosed 上下文已关闭
	ErrContextClosed = errors.New("dbcontext: context closed")
	// ErrStaleEntity 更新/删除未命中任何行
	ErrStaleEntity = errors.New("dbcontext: entity no longer exists in store")
	// ErrDuplicateKey 插入时主键或唯一键冲突
	ErrDuplicateKey = errors.New("dbcontext: duplicate key")
	// ErrIdentityConflict 同一主键已被另一个实例跟踪
	ErrIdentityConflict = errors.New("dbcontext: another instance with the same key is already tracked")
)

// IContext 持久化上下文
type IContext interface {
	// Name 上下文名称，工作单元以此区分上下文
	Name() string

	// Capabilities 上下文支持的能力
	Capabilities() orm.Capabilities

	// Set 返回模型对应的实体集
	Set(meta *orm.ModelMeta) (IEntitySet, error)

	// SaveChanges 落库全部暂存变更，返回受影响的行数；
	// 存在活动事务时在其中执行，否则使用隐式事务保证原子性
	SaveChanges(ctx context.Context) (int, error)

	// Discard 丢弃暂存变更，已跟踪实体恢复到快照值
	Discard(ctx context.Context) error

	// Begin 开启事务，同一时刻至多一个
	Begin(ctx context.Context) (ITransaction, error)

	// InTransaction 是否存在活动事务
	InTransaction() bool

	// Close 释放资源，重复调用无副作用
	Close() error
}

// IEntitySet 单个模型的查询与变更暂存入口，实体均为模型指针
type IEntitySet interface {
	Meta() *orm.ModelMeta

	// Query 按选项查询，结果已完成过滤、排序、分页与预加载
	Query(ctx context.Context, opts orm.QueryOptions) ([]any, error)

	// Count 统计匹配过滤条件的总数，忽略分页
	Count(ctx context.Context, where orm.Predicate) (int64, error)

	Add(entity any) error
	Update(entity any) error
	Remove(entity any) error

	// State 返回实体当前的跟踪状态
	State(entity any) EntityState
}

// ITransaction 上下文事务句柄，Commit/Rollback 之后失效
type ITransaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
