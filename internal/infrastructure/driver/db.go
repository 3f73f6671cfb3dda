package driver

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// TxAccessMode transaction access mode
type TxAccessMode int

// transaction access mode, read-write is the zero value
const (
	AccessReadWrite TxAccessMode = iota
	AccessReadOnly
)

// TxDeferrableMode transaction defer mode
type TxDeferrableMode int

// transaction defer mode
const (
	NotDeferrable TxDeferrableMode = iota
	Deferrable
)

// TxOptions Provides a universal option struct across different SQL drivers
type TxOptions struct {
	Isolation      sql.IsolationLevel
	AccessMode     TxAccessMode
	DeferrableMode TxDeferrableMode
}

// ISQLRows Provides a universal query result struct across different SQL drivers
type ISQLRows interface {
	Next() bool
	Scan(dest ...interface{}) (err error)
	Close() error
}

// ITransactionalDB Universal SQL operation interface, to eliminate the gap between different SQL drivers.
//
// Queries use postgres style placeholders ($1, $2...) and double quoted identifiers,
// the mysql implementation rewrites them.
type ITransactionalDB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error)
	BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
	Ping() error
}

// DBConfig connection options
type DBConfig struct {
	Driver   string // driver name
	Host     string // server host
	MaxConn  int32  // maximum opening connections number
	Password string // db password
	Port     int    // server port
	Protocol string // connection protocol, eg.tcp
	Query    string // DSN query parameter
	Schema   string // use schema
	User     string // username
}

// ErrNestedTransaction BeginTx called on a transaction
var ErrNestedTransaction = errors.New("Create transaction inside a transaction")

const pingTimeout = 3 * time.Second

var (
	spacePattern             = regexp.MustCompile(`\s+`)
	dollarPlaceholderPattern = regexp.MustCompile(`\$[0-9]+`)
)

// compactQuery fold a multi-line statement into one line for the driver and the logs
func compactQuery(query string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(query, " "))
}

// mysqlDSN go-sql-driver DSN, protocol defaults to tcp
func mysqlDSN(cfg *DBConfig) (string, error) {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = cfg.Protocol
	if c.Net == "" {
		c.Net = "tcp"
	}
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Schema
	dsn := c.FormatDSN()
	if cfg.Query == "" {
		return dsn, nil
	}
	if strings.Contains(dsn, "?") {
		dsn += "&" + cfg.Query
	} else {
		dsn += "?" + cfg.Query
	}
	// reject bad parameters before the first connection attempt
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

// postgresDSN libpq style url, credentials are escaped
func postgresDSN(cfg *DBConfig) string {
	host := cfg.Host
	if cfg.Port > 0 {
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     host,
		Path:     "/" + cfg.Schema,
		RawQuery: cfg.Query,
	}
	return u.String()
}

// GetDBConnection create a DB connection from given config
func GetDBConnection(cfg *DBConfig) (ITransactionalDB, error) {
	switch cfg.Driver {
	case "mysql":
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, err
		}
		return NewMySQLConn(dsn, cfg)
	case "postgres":
		return NewPostgreSQLConn(postgresDSN(cfg), cfg)
	default:
		return nil, fmt.Errorf("Unsupported driver: %s", cfg.Driver)
	}
}

// IsDuplicateKey report whether err is a unique constraint violation of either driver
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// WithTx run fn inside a read-write transaction, commit on success and rollback otherwise
func WithTx(ctx context.Context, db ITransactionalDB, opts *TxOptions, fn func(tx ITransactionalDB) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func shouldLogError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// logStatement log one driver call with its timing, statements are logged at debug level
// and failures at error level unless the context was cancelled
func logStatement(ctx context.Context, method, query string, args []interface{}, startTime time.Time, err error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	fields := []zap.Field{zap.String("db.method", method)}
	if query != "" {
		fields = append(fields, zap.String("db.sql", query), zap.Any("db.args", logQueryArgs(args)))
	}
	if err != nil {
		if shouldLogError(err) {
			logger.Error(err.Error(), fields...)
		}
		return
	}
	logger.Debug("", append(fields, zap.Duration("db.time", time.Since(startTime)))...)
}

func logQueryArgs(args []interface{}) []interface{} {
	logArgs := make([]interface{}, 0, len(args))

	for _, a := range args {
		switch v := a.(type) {
		case []byte:
			if len(v) < 64 {
				a = hex.EncodeToString(v)
			} else {
				a = fmt.Sprintf("%x (truncated %d bytes)", v[:64], len(v)-64)
			}
		case string:
			if len(v) > 64 {
				a = fmt.Sprintf("%s (truncated %d bytes)", v[:64], len(v)-64)
			}
		}
		logArgs = append(logArgs, a)
	}

	return logArgs
}
