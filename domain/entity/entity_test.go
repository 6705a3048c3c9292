package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type account struct {
	Entity[uuid.UUID]
	Email string
}

var (
	_ IEntity[int64]     = (*Entity[int64])(nil)
	_ IEntity[uuid.UUID] = (*account)(nil)
	_ IAuditable         = (*account)(nil)
)

func TestEntity_SetID(t *testing.T) {
	a := &account{}
	id := uuid.New()
	a.SetID(id)
	assert.Equal(t, id, a.GetID())
}

func TestEntity_Audit(t *testing.T) {
	e := &Entity[int64]{}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e.SetCreatedInfo("alice", at)
	assert.Equal(t, "alice", e.GetCreatedBy())
	assert.Equal(t, at, e.GetCreatedAt())

	before := time.Now().UTC()
	e.Touch("bob")
	assert.Equal(t, "bob", e.GetModifiedBy())
	assert.False(t, e.GetModifiedAt().Before(before))
	assert.Equal(t, at, e.GetCreatedAt(), "Touch 不修改创建信息")
}

func TestEntity_DisableEnable(t *testing.T) {
	e := &Entity[string]{ID: "k1"}
	e.Disable("ops")
	assert.True(t, e.IsDisabled())
	assert.Equal(t, "ops", e.ModifiedBy)

	e.Enable("dev")
	assert.False(t, e.IsDisabled())
	assert.Equal(t, "dev", e.ModifiedBy)
}
