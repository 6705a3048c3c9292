package basic

// 内置驱动：sqlite（纯 Go）、pgx、postgres（lib/pq）
import (
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)
