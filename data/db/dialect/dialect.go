package dialect

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	core "gochen-data/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
//
// 只抽象持久化上下文实际用到的能力：占位符改写、RETURNING、
// 无上限分页写法以及约束冲突错误识别。
type Dialect struct {
	name Name
}

// New 根据 driver 名构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx", "pq":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// QuoteIdentifier 根据方言对标识符加引号，带点形式逐段处理
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + p + "`"
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// Postgres 改写为 $1、$2...，其他方言保持原样。
// 不解析字符串字面量，字面量中的 ? 同样会被替换。
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || query == "" {
		return query
	}
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// SupportsReturning INSERT ... RETURNING 是否可用
func (d Dialect) SupportsReturning() bool {
	return d.name == NamePostgres
}

// RequiresLimitForOffset 只有 OFFSET 没有 LIMIT 时是否需要补齐 LIMIT
func (d Dialect) RequiresLimitForOffset() bool {
	switch d.name {
	case NameMySQL, NameSQLite:
		return true
	default:
		return false
	}
}

// UnboundedLimit 返回方言中表示"不限条数"的 LIMIT 值
func (d Dialect) UnboundedLimit() string {
	switch d.name {
	case NameMySQL:
		return "18446744073709551615"
	default:
		return "-1"
	}
}

// IsUniqueViolation 判断错误是否为唯一键/主键冲突
//
// 优先识别驱动错误类型（pgx 的 PgError、lib/pq 的 Error），
// 其余方言退回到错误消息关键字匹配。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := postgresCode(err); ok {
		return code == pgerrcode.UniqueViolation
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry") ||
			strings.Contains(msg, "duplicate key")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed") ||
			strings.Contains(msg, "primary key must be unique")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}

// IsForeignKeyViolation 判断错误是否为外键约束冲突
func (d Dialect) IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := postgresCode(err); ok {
		return code == pgerrcode.ForeignKeyViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}

func postgresCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}
