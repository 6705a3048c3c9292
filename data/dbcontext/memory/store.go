// Package memory 提供进程内的持久化上下文实现，用于测试与原型开发。
//
// 多个上下文可共享同一个 Store；Store 以读写锁保护，上下文本身非并发安全。
// 事务基于快照：Begin 复制整个 Store，Rollback 恢复快照。
package memory

import (
	"maps"
	"sort"
	"sync"

	"gochen-data/data/orm"
)

// Store 以表名组织的行存储，行以列名到值的映射保存
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	rows map[any]map[string]any
	seq  int64
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

var (
	sharedMu sync.Mutex
	shared   = make(map[string]*Store)
)

// Shared 返回按名称共享的进程内存储，不存在时创建
func Shared(name string) *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	s, ok := shared[name]
	if !ok {
		s = NewStore()
		shared[name] = s
	}
	return s
}

// DropShared 移除共享存储
func DropShared(name string) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	delete(shared, name)
}

// Count 表中的行数
func (s *Store) Count(tableName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[tableName]; ok {
		return len(t.rows)
	}
	return 0
}

// Tables 返回已有数据的表名（升序）
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// selectRows 返回匹配谓词的行副本
func (s *Store) selectRows(tableName string, where orm.Predicate) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, nil
	}
	var out []map[string]any
	for _, row := range t.rows {
		match, err := orm.Evaluate(where, row)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (s *Store) countRows(tableName string, where orm.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, row := range t.rows {
		match, err := orm.Evaluate(where, row)
		if err != nil {
			return 0, err
		}
		if match {
			n++
		}
	}
	return n, nil
}

// tableLocked 调用方须持有写锁
func (s *Store) tableLocked(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[any]map[string]any)}
		s.tables[name] = t
	}
	return t
}

// cloneLocked 复制全部表，调用方须持有锁
func (s *Store) cloneLocked() map[string]*table {
	out := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		rows := make(map[any]map[string]any, len(t.rows))
		for k, row := range t.rows {
			rows[k] = cloneRow(row)
		}
		out[name] = &table{rows: rows, seq: t.seq}
	}
	return out
}

func (s *Store) restoreLocked(snapshot map[string]*table) {
	s.tables = snapshot
}

func cloneRow(row map[string]any) map[string]any {
	out := maps.Clone(row)
	for k, v := range out {
		if b, ok := v.([]byte); ok {
			out[k] = append([]byte(nil), b...)
		}
	}
	return out
}
