// Package db 提供通用的数据库抽象接口
//
// SQL 持久化上下文只依赖这里的接口，具体连接由 data/db/basic 基于 sqlx 提供；
// 语句统一使用 ? 占位符，由实现按方言改写。
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IQuerier 查询与执行操作，数据库与事务共享
type IQuerier interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IDatabase 通用数据库接口
type IDatabase interface {
	IQuerier

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error

	// 获取原始连接（用于特殊场景）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "sqlite"、"postgres"、"pgx" 等 driver 名，
// 供方言层推断 RETURNING 支持与唯一键错误识别。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IQuerier

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres, pgx, mysql
	DSN      string `mapstructure:"dsn"`    // 非空时优先于 Host/Port 等字段
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	// 连接池配置
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// DataSourceName 构造驱动可识别的 DSN
func (c DBConfig) DataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres", "pgx":
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.Username, c.Password, c.Database, sslmode)
	default:
		// sqlite 等文件型数据库直接使用 Database 作为路径
		return c.Database
	}
}
