package orm

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Fetcher 按列值批量读取目标模型实体，返回实体指针。
// 由具体上下文提供：内存上下文扫描表，SQL 上下文执行 IN 查询。
type Fetcher func(ctx context.Context, target *ModelMeta, column string, keys []any) ([]any, error)

// SplitIncludes 将逗号分隔的预加载路径拆分，忽略空白段。
func SplitIncludes(csv string) []string {
	var out []string
	for _, seg := range strings.Split(csv, ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// ResolvePath 解析点分路径（如 Orders.Lines）为逐级关联，并校验外键列存在。
func ResolvePath(meta *ModelMeta, path string) ([]*AssociationMeta, error) {
	var chain []*AssociationMeta
	cur := meta
	for _, name := range strings.Split(path, ".") {
		name = strings.TrimSpace(name)
		assoc, ok := cur.Association(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, cur.Type.Name(), name)
		}
		target, err := MetaOf(assoc.Target)
		if err != nil {
			return nil, err
		}
		owner, related := target, cur
		if assoc.Kind == AssociationBelongsTo {
			owner, related = cur, target
		}
		if _, ok := owner.Field(assoc.ForeignKey); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, owner.Table, assoc.ForeignKey)
		}
		if assoc.ReferenceKey != "" {
			if _, ok := related.Field(assoc.ReferenceKey); !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, related.Table, assoc.ReferenceKey)
			}
		}
		chain = append(chain, assoc)
		cur = target
	}
	return chain, nil
}

type includeNode struct {
	name     string
	children []*includeNode
}

// buildIncludeTree 合并公共前缀，Orders 与 Orders.Lines 只加载一次 Orders。
func buildIncludeTree(paths []string) []*includeNode {
	var roots []*includeNode
	for _, path := range paths {
		level := &roots
		for _, name := range strings.Split(path, ".") {
			name = strings.TrimSpace(name)
			var node *includeNode
			for _, n := range *level {
				if strings.EqualFold(n.name, name) {
					node = n
					break
				}
			}
			if node == nil {
				node = &includeNode{name: name}
				*level = append(*level, node)
			}
			level = &node.children
		}
	}
	return roots
}

// Preload 为 owners 批量加载关联，每个路径段一次 fetch。
func Preload(ctx context.Context, meta *ModelMeta, owners []any, paths []string, fetch Fetcher) error {
	if len(owners) == 0 || len(paths) == 0 {
		return nil
	}
	for _, p := range paths {
		if _, err := ResolvePath(meta, p); err != nil {
			return err
		}
	}
	return preloadLevel(ctx, meta, owners, buildIncludeTree(paths), fetch)
}

func preloadLevel(ctx context.Context, meta *ModelMeta, owners []any, nodes []*includeNode, fetch Fetcher) error {
	for _, node := range nodes {
		assoc, _ := meta.Association(node.name)
		target, err := MetaOf(assoc.Target)
		if err != nil {
			return err
		}

		var loaded []any
		switch assoc.Kind {
		case AssociationHasMany, AssociationHasOne:
			refCol := assoc.ReferenceKey
			if refCol == "" {
				refCol = meta.PrimaryKey().Column
			}
			keys, err := distinctValues(meta, owners, refCol)
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if loaded, err = fetch(ctx, target, assoc.ForeignKey, keys); err != nil {
					return err
				}
			}
			groups := make(map[any][]any)
			for _, child := range loaded {
				fk, err := target.Value(child, assoc.ForeignKey)
				if err != nil {
					return err
				}
				k := NormalizeKey(fk)
				groups[k] = append(groups[k], child)
			}
			for _, owner := range owners {
				ref, err := meta.Value(owner, refCol)
				if err != nil {
					return err
				}
				assoc.set(owner, groups[NormalizeKey(ref)])
			}

		case AssociationBelongsTo:
			refCol := assoc.ReferenceKey
			if refCol == "" {
				refCol = target.PrimaryKey().Column
			}
			keys, err := distinctValues(meta, owners, assoc.ForeignKey)
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if loaded, err = fetch(ctx, target, refCol, keys); err != nil {
					return err
				}
			}
			byKey := make(map[any]any, len(loaded))
			for _, parent := range loaded {
				ref, err := target.Value(parent, refCol)
				if err != nil {
					return err
				}
				byKey[NormalizeKey(ref)] = parent
			}
			for _, owner := range owners {
				fk, err := meta.Value(owner, assoc.ForeignKey)
				if err != nil {
					return err
				}
				if parent, ok := byKey[NormalizeKey(fk)]; ok {
					assoc.set(owner, []any{parent})
				} else {
					assoc.set(owner, nil)
				}
			}
		}

		if len(node.children) > 0 && len(loaded) > 0 {
			if err := preloadLevel(ctx, target, loaded, node.children, fetch); err != nil {
				return err
			}
		}
	}
	return nil
}

func distinctValues(meta *ModelMeta, entities []any, column string) ([]any, error) {
	seen := make(map[any]bool, len(entities))
	var out []any
	for _, e := range entities {
		v, err := meta.Value(e, column)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		k := NormalizeKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out, nil
}

// set 将加载结果写入关联字段；has_many 无匹配时写入空切片。
func (a *AssociationMeta) set(owner any, related []any) {
	field := reflect.ValueOf(owner).Elem().FieldByIndex(a.index)
	if a.Kind == AssociationHasMany {
		slice := reflect.MakeSlice(field.Type(), 0, len(related))
		for _, r := range related {
			slice = reflect.Append(slice, a.elem(r))
		}
		field.Set(slice)
		return
	}
	if len(related) == 0 {
		field.SetZero()
		return
	}
	field.Set(a.elem(related[0]))
}

func (a *AssociationMeta) elem(ptr any) reflect.Value {
	v := reflect.ValueOf(ptr)
	if a.elemPtr {
		return v
	}
	return v.Elem()
}
