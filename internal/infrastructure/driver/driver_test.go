package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMysqlAdapter(t *testing.T) {
	query := `UPDATE "lesson_progress"
	SET completed = completed OR $1
	WHERE user_id = $2 AND lesson_id = $3`
	assert.Equal(t,
		"UPDATE `lesson_progress` SET completed = completed OR ? WHERE user_id = ? AND lesson_id = ?",
		mysqlAdapter(query))
}

func TestPgTxOptions(t *testing.T) {
	testCases := []struct {
		name    string
		opts    *TxOptions
		want    pgx.TxOptions
		wantErr bool
	}{
		{"nil options", nil, pgx.TxOptions{}, false},
		{
			"repeatable read",
			&TxOptions{Isolation: sql.LevelRepeatableRead},
			pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite, DeferrableMode: pgx.NotDeferrable},
			false,
		},
		{
			"read only deferrable",
			&TxOptions{AccessMode: AccessReadOnly, DeferrableMode: Deferrable},
			pgx.TxOptions{AccessMode: pgx.ReadOnly, DeferrableMode: pgx.Deferrable},
			false,
		},
		{
			"serializable",
			&TxOptions{Isolation: sql.LevelSerializable},
			pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite, DeferrableMode: pgx.NotDeferrable},
			false,
		},
		{
			"read committed",
			&TxOptions{Isolation: sql.LevelReadCommitted},
			pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite, DeferrableMode: pgx.NotDeferrable},
			false,
		},
		{
			"read uncommitted",
			&TxOptions{Isolation: sql.LevelReadUncommitted},
			pgx.TxOptions{IsoLevel: pgx.ReadUncommitted, AccessMode: pgx.ReadWrite, DeferrableMode: pgx.NotDeferrable},
			false,
		},
		{"snapshot", &TxOptions{Isolation: sql.LevelSnapshot}, pgx.TxOptions{}, true},
		{"linearizable", &TxOptions{Isolation: sql.LevelLinearizable}, pgx.TxOptions{}, true},
		{"write committed", &TxOptions{Isolation: sql.LevelWriteCommitted}, pgx.TxOptions{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pgTxOptions(tc.opts)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMysqlTxOptionAdapter(t *testing.T) {
	assert.Nil(t, mysqlTxOptionAdapter(nil))
	assert.Equal(t, &sql.TxOptions{Isolation: sql.LevelSerializable},
		mysqlTxOptionAdapter(&TxOptions{Isolation: sql.LevelSerializable}))
	assert.True(t, mysqlTxOptionAdapter(&TxOptions{AccessMode: AccessReadOnly}).ReadOnly)
}

func TestMysqlDSN(t *testing.T) {
	dsn, err := mysqlDSN(&DBConfig{User: "u", Password: "p@ss", Host: "db", Port: 3306, Schema: "course", Query: "parseTime=true"})
	require.NoError(t, err)
	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "u", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "course", parsed.DBName)
	assert.True(t, parsed.ParseTime)

	_, err = mysqlDSN(&DBConfig{User: "u", Host: "db", Port: 3306, Schema: "course", Query: "parseTime=maybe"})
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &DBConfig{User: "u", Password: "p@ss", Host: "db", Port: 5432, Schema: "course", Query: "sslmode=disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/course?sslmode=disable", postgresDSN(cfg))

	cfg = &DBConfig{User: "u", Password: "p", Host: "db", Schema: "course"}
	assert.Equal(t, "postgres://u:p@db/course", postgresDSN(cfg))
}

func TestGetDBConnection_UnknownDriver(t *testing.T) {
	_, err := GetDBConnection(&DBConfig{Driver: "sqlite"})
	assert.EqualError(t, err, "Unsupported driver: sqlite")
}

func TestCompactQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1", compactQuery("\n  SELECT 1\n\tFROM t\n  WHERE a = $1\n"))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1045}))
	assert.False(t, IsDuplicateKey(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsDuplicateKey(errors.New("boom")))
	assert.False(t, IsDuplicateKey(nil))
}

func TestLogQueryArgs(t *testing.T) {
	long := make([]byte, 70)
	args := logQueryArgs([]interface{}{1, "short", []byte{0xab}, long})
	assert.Equal(t, 1, args[0])
	assert.Equal(t, "short", args[1])
	assert.Equal(t, "ab", args[2])
	assert.Contains(t, args[3], "truncated 6 bytes")
}

type fakeTx struct {
	ITransactionalDB
	beginErr   error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f, nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	db := new(fakeTx)
	require.NoError(t, WithTx(ctx, db, nil, func(tx ITransactionalDB) error { return nil }))
	assert.True(t, db.committed)
	assert.False(t, db.rolledBack)

	db = new(fakeTx)
	assert.ErrorIs(t, WithTx(ctx, db, nil, func(tx ITransactionalDB) error { return boom }), boom)
	assert.False(t, db.committed)
	assert.True(t, db.rolledBack)

	db = &fakeTx{beginErr: boom}
	called := false
	assert.ErrorIs(t, WithTx(ctx, db, nil, func(tx ITransactionalDB) error { called = true; return nil }), boom)
	assert.False(t, called)
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	_, err := kv.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, kv.SetEX("token", "", time.Minute))
	require.NoError(t, kv.SetEX("forever", "v", 0))
	ok, _ := kv.Exists("token")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = kv.Exists("token")
	assert.False(t, ok)
	value, err := kv.Get("forever")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	require.NoError(t, kv.Delete("forever"))
	ok, _ = kv.Exists("forever")
	assert.False(t, ok)
	assert.NoError(t, kv.Ping())
}
