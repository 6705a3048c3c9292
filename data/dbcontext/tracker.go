package dbcontext

import (
	"fmt"
	"slices"

	"gochen-data/data/orm"
)

// EntityState 实体跟踪状态
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// Entry 单个被跟踪实体
type Entry struct {
	Entity any
	Meta   *orm.ModelMeta
	State  EntityState
	// Original 最近一次加载或落库时的列值；nil 表示该实例从未从存储读取
	Original map[string]any

	seq uint64
}

type identity struct {
	table string
	key   any
}

// Tracker 变更跟踪器：按实例跟踪状态，按 (表, 主键) 维护身份映射。
// 非并发安全，归属于单个上下文。
type Tracker struct {
	entries  map[any]*Entry
	identity map[identity]*Entry
	seq      uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		entries:  make(map[any]*Entry),
		identity: make(map[identity]*Entry),
	}
}

// Entry 返回实体的跟踪条目
func (t *Tracker) Entry(entity any) (*Entry, bool) {
	e, ok := t.entries[entity]
	return e, ok
}

// State 返回实体状态，未跟踪为 Detached
func (t *Tracker) State(entity any) EntityState {
	if e, ok := t.entries[entity]; ok {
		return e.State
	}
	return Detached
}

// Len 跟踪的实体数
func (t *Tracker) Len() int { return len(t.entries) }

// Attach 跟踪查询得到的实体。
// 同一主键已被跟踪时返回已跟踪的实例，保证一个上下文内同键只有一个实例。
func (t *Tracker) Attach(meta *orm.ModelMeta, entity any) (any, error) {
	id, err := identityOf(meta, entity)
	if err != nil {
		return nil, err
	}
	if existing, ok := t.identity[id]; ok {
		return existing.Entity, nil
	}
	snap, err := meta.Values(entity)
	if err != nil {
		return nil, err
	}
	t.track(&Entry{Entity: entity, Meta: meta, State: Unchanged, Original: snap}, id)
	return entity, nil
}

// Add 暂存新增；已标记删除的实体恢复为修改
func (t *Tracker) Add(meta *orm.ModelMeta, entity any) error {
	if !meta.Owns(entity) {
		return fmt.Errorf("%w: expected *%s, got %T", orm.ErrInvalidModel, meta.Type, entity)
	}
	if e, ok := t.entries[entity]; ok {
		if e.State == Deleted {
			e.State = Modified
		}
		return nil
	}
	id, err := t.claim(meta, entity)
	if err != nil {
		return err
	}
	t.track(&Entry{Entity: entity, Meta: meta, State: Added}, id)
	return nil
}

// Update 无条件标记为修改；未跟踪且主键为零值的实体按新增处理
func (t *Tracker) Update(meta *orm.ModelMeta, entity any) error {
	if !meta.Owns(entity) {
		return fmt.Errorf("%w: expected *%s, got %T", orm.ErrInvalidModel, meta.Type, entity)
	}
	if e, ok := t.entries[entity]; ok {
		if e.State == Unchanged || e.State == Deleted {
			e.State = Modified
		}
		return nil
	}
	id, err := t.claim(meta, entity)
	if err != nil {
		return err
	}
	if id.key == nil {
		t.track(&Entry{Entity: entity, Meta: meta, State: Added}, id)
		return nil
	}
	t.track(&Entry{Entity: entity, Meta: meta, State: Modified}, id)
	return nil
}

// Remove 暂存删除；尚未落库的新增实体直接脱离跟踪
func (t *Tracker) Remove(meta *orm.ModelMeta, entity any) error {
	if !meta.Owns(entity) {
		return fmt.Errorf("%w: expected *%s, got %T", orm.ErrInvalidModel, meta.Type, entity)
	}
	if e, ok := t.entries[entity]; ok {
		if e.State == Added {
			t.detach(e)
			return nil
		}
		e.State = Deleted
		return nil
	}
	id, err := t.claim(meta, entity)
	if err != nil {
		return err
	}
	if id.key == nil {
		return nil
	}
	t.track(&Entry{Entity: entity, Meta: meta, State: Deleted}, id)
	return nil
}

// Pending 按暂存顺序返回待落库的条目
func (t *Tracker) Pending() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.State == Added || e.State == Modified || e.State == Deleted {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *Entry) int { return compareSeq(a.seq, b.seq) })
	return out
}

// HasChanges 是否存在待落库的变更
func (t *Tracker) HasChanges() bool {
	for _, e := range t.entries {
		if e.State == Added || e.State == Modified || e.State == Deleted {
			return true
		}
	}
	return false
}

// Accept 落库成功后调用：新增/修改转为 Unchanged 并刷新快照，删除脱离跟踪
func (t *Tracker) Accept(entries []*Entry) error {
	for _, e := range entries {
		switch e.State {
		case Added, Modified:
			snap, err := e.Meta.Values(e.Entity)
			if err != nil {
				return err
			}
			e.Original = snap
			e.State = Unchanged
			id, err := identityOf(e.Meta, e.Entity)
			if err != nil {
				return err
			}
			if id.key != nil {
				t.identity[id] = e
			}
		case Deleted:
			t.detach(e)
		}
	}
	return nil
}

// Revert 丢弃暂存变更：新增脱离跟踪，其余恢复快照值并转为 Unchanged。
// 没有快照的实例（未经读取直接 Update/Remove）无法恢复，脱离跟踪。
func (t *Tracker) Revert() error {
	all := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	slices.SortFunc(all, func(a, b *Entry) int { return compareSeq(a.seq, b.seq) })

	for _, e := range all {
		if e.State == Added || e.Original == nil {
			t.detach(e)
			continue
		}
		if err := e.Meta.Assign(e.Entity, e.Original); err != nil {
			return err
		}
		e.State = Unchanged
	}
	return nil
}

// Clear 清空全部跟踪
func (t *Tracker) Clear() {
	clear(t.entries)
	clear(t.identity)
}

// claim 检查预分配主键是否已被其他实例占用
func (t *Tracker) claim(meta *orm.ModelMeta, entity any) (identity, error) {
	id, err := identityOf(meta, entity)
	if err != nil {
		return id, err
	}
	if id.key == nil {
		return id, nil
	}
	if other, ok := t.identity[id]; ok && other.Entity != entity {
		return id, fmt.Errorf("%w: %s key %v", ErrIdentityConflict, meta.Table, id.key)
	}
	return id, nil
}

func (t *Tracker) track(e *Entry, id identity) {
	t.seq++
	e.seq = t.seq
	t.entries[e.Entity] = e
	if id.key != nil {
		t.identity[id] = e
	}
}

func (t *Tracker) detach(e *Entry) {
	delete(t.entries, e.Entity)
	if id, err := identityOf(e.Meta, e.Entity); err == nil && id.key != nil && t.identity[id] == e {
		delete(t.identity, id)
		return
	}
	// 主键在跟踪期间被改写，按条目反查
	for id, cur := range t.identity {
		if cur == e {
			delete(t.identity, id)
		}
	}
}

// identityOf 零值主键返回 key 为 nil 的身份
func identityOf(meta *orm.ModelMeta, entity any) (identity, error) {
	key, err := meta.Key(entity)
	if err != nil {
		return identity{}, err
	}
	if orm.IsZeroKey(key) {
		return identity{table: meta.Table}, nil
	}
	return identity{table: meta.Table, key: orm.NormalizeKey(key)}, nil
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
