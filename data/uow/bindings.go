package uow

import (
	"reflect"
	"sync"
)

// Bindings 实体类型到上下文名称的显式映射，优先于实体声明的 ContextName
type Bindings struct {
	mu sync.RWMutex
	m  map[reflect.Type]string
}

// NewBindings 创建空的绑定表
func NewBindings() *Bindings {
	return &Bindings{m: make(map[reflect.Type]string)}
}

// Bind 将实体类型 T（模型指针类型）绑定到指定上下文，后绑定覆盖先绑定
func Bind[T any](b *Bindings, contextName string) *Bindings {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[reflect.TypeFor[T]()] = contextName
	return b
}

// Lookup 查找实体类型绑定的上下文名称
func (b *Bindings) Lookup(t reflect.Type) (string, bool) {
	if b == nil {
		return "", false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	name, ok := b.m[t]
	return name, ok
}
