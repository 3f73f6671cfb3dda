package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// errNoLastInsertID postgres needs RETURNING instead
var errNoLastInsertID = errors.New("LastInsertId is not supported by postgres, use RETURNING")

// pgQuerier what pgxpool.Pool and pgx.Tx have in common
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// pgStatements statement half of ITransactionalDB, shared by the pool and its transactions
type pgStatements struct {
	q pgQuerier
}

func (ps pgStatements) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	startTime := time.Now()
	query = compactQuery(query)
	tag, err := ps.q.Exec(ctx, query, args...)
	logStatement(ctx, "Exec", query, args, startTime, err)
	if err != nil {
		return nil, err
	}
	return pgResult(tag), nil
}

func (ps pgStatements) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	startTime := time.Now()
	query = compactQuery(query)
	rows, err := ps.q.Query(ctx, query, args...)
	logStatement(ctx, "Query", query, args, startTime, err)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

// PGWrapper pgx pool implementation of ITransactionalDB, Commit and Rollback are no-ops outside a transaction
type PGWrapper struct {
	pgStatements
	pool *pgxpool.Pool
}

// PGWrapperTx transaction started by PGWrapper.BeginTx
type PGWrapperTx struct {
	pgStatements
	tx pgx.Tx
}

var (
	_ ITransactionalDB = &PGWrapper{}
	_ ITransactionalDB = &PGWrapperTx{}
)

// NewPostgreSQLConn connect a pool of at most cfg.MaxConn connections
func NewPostgreSQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConn > 0 {
		poolConfig.MaxConns = cfg.MaxConn
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGWrapper{pgStatements{pool}, pool}, nil
}

func (pw *PGWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	txOpts, err := pgTxOptions(opts)
	if err != nil {
		return nil, err
	}
	startTime := time.Now()
	tx, err := pw.pool.BeginTx(ctx, txOpts)
	logStatement(ctx, "BeginTx", "", nil, startTime, err)
	if err != nil {
		return nil, err
	}
	return &PGWrapperTx{pgStatements{tx}, tx}, nil
}

func (pw *PGWrapper) Commit(ctx context.Context) error { return nil }
func (pw *PGWrapper) Rollback(ctx context.Context) error { return nil }

// Close close the whole pool
func (pw *PGWrapper) Close(ctx context.Context) error {
	pw.pool.Close()
	return nil
}

// Ping acquire a connection and ping the server
func (pw *PGWrapper) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	conn, err := pw.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Conn().Ping(ctx)
}

func (pwt *PGWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTransaction
}

func (pwt *PGWrapperTx) Commit(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Commit(ctx)
	logStatement(ctx, "Commit", "", nil, startTime, err)
	return err
}

// Rollback is a no-op after Commit
func (pwt *PGWrapperTx) Rollback(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	logStatement(ctx, "Rollback", "", nil, startTime, err)
	return err
}

func (pwt *PGWrapperTx) Close(ctx context.Context) error { return nil }
func (pwt *PGWrapperTx) Ping() error { return nil }

var pgIsolationLevels = map[sql.IsolationLevel]pgx.TxIsoLevel{
	sql.LevelDefault:         "",
	sql.LevelSerializable:    pgx.Serializable,
	sql.LevelRepeatableRead:  pgx.RepeatableRead,
	sql.LevelReadCommitted:   pgx.ReadCommitted,
	sql.LevelReadUncommitted: pgx.ReadUncommitted,
}

// pgTxOptions nil opts leave every mode to the server default
func pgTxOptions(opts *TxOptions) (pgx.TxOptions, error) {
	var txOpts pgx.TxOptions
	if opts == nil {
		return txOpts, nil
	}

	isoLevel, ok := pgIsolationLevels[opts.Isolation]
	if !ok {
		return txOpts, fmt.Errorf("unsupported isolation level: %s", opts.Isolation)
	}
	txOpts.IsoLevel = isoLevel

	if opts.AccessMode == AccessReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	} else {
		txOpts.AccessMode = pgx.ReadWrite
	}

	if opts.DeferrableMode == Deferrable {
		txOpts.DeferrableMode = pgx.Deferrable
	} else {
		txOpts.DeferrableMode = pgx.NotDeferrable
	}
	return txOpts, nil
}

type pgResult pgconn.CommandTag

func (r pgResult) LastInsertId() (int64, error) { return 0, errNoLastInsertID }
func (r pgResult) RowsAffected() (int64, error) { return pgconn.CommandTag(r).RowsAffected(), nil }

type pgRows struct {
	rows pgx.Rows
}

func (r pgRows) Next() bool { return r.rows.Next() }
func (r pgRows) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }
func (r pgRows) Close() error {
	r.rows.Close()
	return r.rows.Err()
}
