package orm

import (
	"fmt"
	"strings"
)

// Op 谓词运算符
type Op string

const (
	OpAll    Op = ""
	OpEq     Op = "="
	OpNe     Op = "<>"
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpLike   Op = "LIKE"
	OpIn     Op = "IN"
	OpIsNull Op = "IS NULL"
	OpAnd    Op = "AND"
	OpOr     Op = "OR"
	OpNot    Op = "NOT"
	OpRaw    Op = "RAW"
)

// Predicate 与存储无关的过滤条件。
//
// 零值表示匹配全部。内存上下文直接求值，SQL 上下文翻译为 squirrel 表达式；
// Raw 仅 SQL 上下文支持。
type Predicate struct {
	Op       Op
	Column   string
	Value    any
	Values   []any
	Children []Predicate
	SQL      string
}

// All 匹配全部
func All() Predicate { return Predicate{} }

func Eq(column string, value any) Predicate {
	return Predicate{Op: OpEq, Column: column, Value: value}
}

func Ne(column string, value any) Predicate {
	return Predicate{Op: OpNe, Column: column, Value: value}
}

func Gt(column string, value any) Predicate {
	return Predicate{Op: OpGt, Column: column, Value: value}
}

func Gte(column string, value any) Predicate {
	return Predicate{Op: OpGte, Column: column, Value: value}
}

func Lt(column string, value any) Predicate {
	return Predicate{Op: OpLt, Column: column, Value: value}
}

func Lte(column string, value any) Predicate {
	return Predicate{Op: OpLte, Column: column, Value: value}
}

// Like SQL LIKE 模式，% 匹配任意串，_ 匹配单个字符
func Like(column, pattern string) Predicate {
	return Predicate{Op: OpLike, Column: column, Value: pattern}
}

// In 成员匹配，空集合不匹配任何行
func In(column string, values ...any) Predicate {
	return Predicate{Op: OpIn, Column: column, Values: values}
}

func IsNull(column string) Predicate {
	return Predicate{Op: OpIsNull, Column: column}
}

// And 组合条件；匹配全部的子条件被省略
func And(preds ...Predicate) Predicate {
	return combine(OpAnd, preds)
}

// Or 组合条件；任一子条件匹配全部时结果匹配全部
func Or(preds ...Predicate) Predicate {
	for _, p := range preds {
		if p.IsAll() {
			return All()
		}
	}
	return combine(OpOr, preds)
}

func Not(p Predicate) Predicate {
	return Predicate{Op: OpNot, Children: []Predicate{p}}
}

// Raw 原生 SQL 片段，使用 ? 占位符
func Raw(sql string, args ...any) Predicate {
	return Predicate{Op: OpRaw, SQL: sql, Values: args}
}

func combine(op Op, preds []Predicate) Predicate {
	children := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p.IsAll() {
			continue
		}
		if p.Op == op {
			children = append(children, p.Children...)
			continue
		}
		children = append(children, p)
	}
	switch len(children) {
	case 0:
		return All()
	case 1:
		return children[0]
	default:
		return Predicate{Op: op, Children: children}
	}
}

// IsAll 是否匹配全部
func (p Predicate) IsAll() bool { return p.Op == OpAll }

// HasRaw 是否包含原生 SQL 片段
func (p Predicate) HasRaw() bool {
	if p.Op == OpRaw {
		return true
	}
	for _, c := range p.Children {
		if c.HasRaw() {
			return true
		}
	}
	return false
}

// Columns 返回引用到的全部列名
func (p Predicate) Columns() []string {
	var cols []string
	var walk func(Predicate)
	walk = func(cur Predicate) {
		if cur.Column != "" {
			cols = append(cols, cur.Column)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(p)
	return cols
}

// Validate 校验引用的列均存在于模型中
func (p Predicate) Validate(meta *ModelMeta) error {
	for _, col := range p.Columns() {
		if !IsSafeIdentifier(col) {
			return fmt.Errorf("%w: %q", ErrUnsafeIdentifier, col)
		}
		if _, ok := meta.Field(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, meta.Table, col)
		}
	}
	return nil
}

func (p Predicate) String() string {
	switch p.Op {
	case OpAll:
		return "TRUE"
	case OpIsNull:
		return p.Column + " IS NULL"
	case OpIn:
		return fmt.Sprintf("%s IN %v", p.Column, p.Values)
	case OpAnd, OpOr:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+string(p.Op)+" ") + ")"
	case OpNot:
		return "NOT " + p.Children[0].String()
	case OpRaw:
		return p.SQL
	default:
		return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
	}
}
