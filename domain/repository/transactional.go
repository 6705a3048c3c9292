package repository

import "context"

// ITransactional 仓储级提交/回滚能力
//
// 提交与回滚作用于仓储所绑定的整个持久化上下文，而非单个仓储：
// 同一上下文上其他仓储暂存的变更会一并提交或丢弃。
//
// 使用模式：
//
//	if _, err := repo.Add(order); err != nil { return err }
//	if _, err := repo.Commit(ctx); err != nil {
//		_ = repo.Rollback(ctx)
//		return err
//	}
type ITransactional interface {
	// Commit 落库暂存变更，返回受影响的行数
	Commit(ctx context.Context) (int, error)

	// Rollback 丢弃暂存变更，已跟踪实体恢复为最近一次加载/提交时的值
	Rollback(ctx context.Context) error
}
