package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestNew_DriverAliases(t *testing.T) {
	tests := []struct {
		driver string
		want   Name
	}{
		{"sqlite", NameSQLite},
		{"SQLite3", NameSQLite},
		{"postgres", NamePostgres},
		{"pgx", NamePostgres},
		{"mysql", NameMySQL},
		{"oracle", NameUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.driver).Name())
		})
	}
}

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	got := d.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", got)
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, name := range []string{"mysql", "sqlite", "unknown"} {
		assert.Equal(t, orig, New(name).Rebind(orig), name)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`db`.`orders`", New("mysql").QuoteIdentifier("db.orders"))
	assert.Equal(t, `"public"."orders"`, New("postgres").QuoteIdentifier("public.orders"))
	assert.Equal(t, "orders", New("").QuoteIdentifier("orders"))
}

func TestCapabilities(t *testing.T) {
	assert.True(t, New("pgx").SupportsReturning())
	assert.False(t, New("sqlite").SupportsReturning())
	assert.True(t, New("sqlite").RequiresLimitForOffset())
	assert.False(t, New("postgres").RequiresLimitForOffset())
	assert.Equal(t, "-1", New("sqlite").UnboundedLimit())
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	pqErr := &pq.Error{Code: pq.ErrorCode(pgerrcode.UniqueViolation)}

	assert.True(t, New("pgx").IsUniqueViolation(fmt.Errorf("insert: %w", pgErr)))
	assert.True(t, New("postgres").IsUniqueViolation(pqErr))
	assert.True(t, New("sqlite").IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: orders.id (1555)")))
	assert.True(t, New("mysql").IsUniqueViolation(errors.New("Error 1062: Duplicate entry '1' for key 'PRIMARY'")))
	assert.False(t, New("sqlite").IsUniqueViolation(errors.New("no such table: orders")))
	assert.False(t, New("sqlite").IsUniqueViolation(nil))
}

func TestIsForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
	assert.True(t, New("pgx").IsForeignKeyViolation(pgErr))
	assert.False(t, New("pgx").IsUniqueViolation(pgErr))
	assert.True(t, New("sqlite").IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")))
}
