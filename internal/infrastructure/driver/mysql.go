package driver

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	// registers the "mysql" database/sql driver
	_ "github.com/go-sql-driver/mysql"
)

// sqlQuerier what *sql.DB and *sql.Tx have in common
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// mysqlStatements rewrite postgres flavoured statements before handing them to database/sql
type mysqlStatements struct {
	q sqlQuerier
}

func (ms mysqlStatements) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	startTime := time.Now()
	query = mysqlAdapter(query)
	res, err := ms.q.ExecContext(ctx, query, args...)
	logStatement(ctx, "Exec", query, args, startTime, err)
	return res, err
}

func (ms mysqlStatements) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	startTime := time.Now()
	query = mysqlAdapter(query)
	rows, err := ms.q.QueryContext(ctx, query, args...)
	logStatement(ctx, "Query", query, args, startTime, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SQLWrapper database/sql implementation of ITransactionalDB backed by go-sql-driver/mysql
type SQLWrapper struct {
	mysqlStatements
	db *sql.DB
}

// SQLWrapperTx transaction started by SQLWrapper.BeginTx
type SQLWrapperTx struct {
	mysqlStatements
	tx *sql.Tx
}

var (
	_ ITransactionalDB = &SQLWrapper{}
	_ ITransactionalDB = &SQLWrapperTx{}
)

// NewMySQLConn open a pool of at most cfg.MaxConn connections, nothing is dialed until first use
func NewMySQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(int(cfg.MaxConn))
	return &SQLWrapper{mysqlStatements{db}, db}, nil
}

func (mw *SQLWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	startTime := time.Now()
	tx, err := mw.db.BeginTx(ctx, mysqlTxOptionAdapter(opts))
	logStatement(ctx, "BeginTx", "", nil, startTime, err)
	if err != nil {
		return nil, err
	}
	return &SQLWrapperTx{mysqlStatements{tx}, tx}, nil
}

// mysql has no deferrable transactions, DeferrableMode is ignored
func mysqlTxOptionAdapter(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.AccessMode == AccessReadOnly,
	}
}

func (mw *SQLWrapper) Commit(ctx context.Context) error { return nil }
func (mw *SQLWrapper) Rollback(ctx context.Context) error { return nil }

func (mw *SQLWrapper) Close(ctx context.Context) error {
	return mw.db.Close()
}

func (mw *SQLWrapper) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return mw.db.PingContext(ctx)
}

func (mwt *SQLWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTransaction
}

func (mwt *SQLWrapperTx) Commit(ctx context.Context) error {
	startTime := time.Now()
	err := mwt.tx.Commit()
	logStatement(ctx, "Commit", "", nil, startTime, err)
	return err
}

// Rollback is a no-op after Commit
func (mwt *SQLWrapperTx) Rollback(ctx context.Context) error {
	startTime := time.Now()
	err := mwt.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	logStatement(ctx, "Rollback", "", nil, startTime, err)
	return err
}

func (mwt *SQLWrapperTx) Close(ctx context.Context) error { return nil }
func (mwt *SQLWrapperTx) Ping() error { return nil }

// mysqlAdapter "ident" to `ident` and $n to ?
func mysqlAdapter(query string) string {
	query = strings.ReplaceAll(query, `"`, "`")
	query = dollarPlaceholderPattern.ReplaceAllString(query, "?")
	return compactQuery(query)
}
