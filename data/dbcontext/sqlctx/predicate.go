package sqlctx

import (
	"fmt"

	"github.com/Masterminds/squirrel"

	"gochen-data/data/orm"
)

// toSqlizer 将谓词翻译为 squirrel 表达式。
//
// 比较一律使用 "col op ?" 形式：与 NULL 比较在 SQL 中为 UNKNOWN，
// 与内存上下文"NULL 比较为假"的语义一致；判空请使用 orm.IsNull。
func toSqlizer(p orm.Predicate, quote func(string) string) (squirrel.Sqlizer, error) {
	switch p.Op {
	case orm.OpAll:
		return squirrel.Expr("1=1"), nil
	case orm.OpEq, orm.OpNe, orm.OpGt, orm.OpGte, orm.OpLt, orm.OpLte, orm.OpLike:
		return squirrel.Expr(fmt.Sprintf("%s %s ?", quote(p.Column), p.Op), p.Value), nil
	case orm.OpIn:
		if len(p.Values) == 0 {
			return squirrel.Expr("1=0"), nil
		}
		return squirrel.Eq{quote(p.Column): p.Values}, nil
	case orm.OpIsNull:
		return squirrel.Expr(quote(p.Column) + " IS NULL"), nil
	case orm.OpAnd, orm.OpOr:
		parts := make([]squirrel.Sqlizer, 0, len(p.Children))
		for _, c := range p.Children {
			s, err := toSqlizer(c, quote)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		if p.Op == orm.OpAnd {
			return squirrel.And(parts), nil
		}
		return squirrel.Or(parts), nil
	case orm.OpNot:
		if len(p.Children) != 1 {
			return nil, fmt.Errorf("sqlctx: NOT expects one operand, got %d", len(p.Children))
		}
		inner, err := toSqlizer(p.Children[0], quote)
		if err != nil {
			return nil, err
		}
		sql, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return squirrel.Expr("NOT ("+sql+")", args...), nil
	case orm.OpRaw:
		return squirrel.Expr(p.SQL, p.Values...), nil
	default:
		return nil, fmt.Errorf("sqlctx: unsupported predicate op %q", p.Op)
	}
}
