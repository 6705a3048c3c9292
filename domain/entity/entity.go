// Package entity 定义持久化实体的核心接口与可嵌入的基础字段
//
// 仓储以 IEntity[K] 约束实体类型，K 为主键类型（int64、string、uuid.UUID 等）。
// 审计字段的填充策略不在此处：创建时间由持久化上下文在插入时补齐，
// 修改信息由调用方通过 Touch 维护。
package entity

import "time"

// IObject 最基础的对象接口，所有实体的根接口
type IObject[K comparable] interface {
	// GetID 返回对象的唯一标识
	GetID() K
}

// IEntity 实体接口，主键由存储在插入时分配
type IEntity[K comparable] interface {
	IObject[K]

	// SetID 写入主键，仅在调用方预分配字符串/UUID 主键时使用
	SetID(id K)
}

// IAuditable 审计追踪接口
type IAuditable interface {
	GetCreatedAt() time.Time
	GetCreatedBy() string
	GetModifiedAt() time.Time
	GetModifiedBy() string

	// 设置审计信息（由基础设施层调用）
	SetCreatedInfo(by string, at time.Time)
	SetModifiedInfo(by string, at time.Time)
}

// IValidatable 可验证接口
// 仓储在 Add/Update 暂存前调用，返回 error 表示拒绝暂存
type IValidatable interface {
	Validate() error
}

// IContextBound 实体声明其所属的持久化上下文名称
// 工作单元在没有显式绑定时据此解析仓储应使用的上下文
type IContextBound interface {
	ContextName() string
}

// Entity 通用审计实体字段（用于嵌入）
type Entity[K comparable] struct {
	ID         K         `json:"id" db:"id" orm:"pk,auto"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	ModifiedBy string    `json:"modified_by" db:"modified_by"`
	Disabled   bool      `json:"disabled" db:"disabled"`
}

// GetID 实现 IObject 接口
func (e *Entity[K]) GetID() K {
	return e.ID
}

// SetID 实现 IEntity 接口
func (e *Entity[K]) SetID(id K) {
	e.ID = id
}

func (e *Entity[K]) GetCreatedAt() time.Time  { return e.CreatedAt }
func (e *Entity[K]) GetCreatedBy() string     { return e.CreatedBy }
func (e *Entity[K]) GetModifiedAt() time.Time { return e.ModifiedAt }
func (e *Entity[K]) GetModifiedBy() string    { return e.ModifiedBy }

// SetCreatedInfo 实现 IAuditable 接口
func (e *Entity[K]) SetCreatedInfo(by string, at time.Time) {
	e.CreatedBy = by
	e.CreatedAt = at
}

// SetModifiedInfo 实现 IAuditable 接口
func (e *Entity[K]) SetModifiedInfo(by string, at time.Time) {
	e.ModifiedBy = by
	e.ModifiedAt = at
}

// Touch 记录一次修改
func (e *Entity[K]) Touch(by string) {
	e.SetModifiedInfo(by, time.Now().UTC())
}

// IsDisabled 是否已停用；停用只是普通字段，查询不会自动过滤
func (e *Entity[K]) IsDisabled() bool {
	return e.Disabled
}

// Disable 停用实体
func (e *Entity[K]) Disable(by string) {
	e.Disabled = true
	e.Touch(by)
}

// Enable 启用实体
func (e *Entity[K]) Enable(by string) {
	e.Disabled = false
	e.Touch(by)
}
