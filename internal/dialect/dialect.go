package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/resquel/internal/config"
)

// Connector is the database capability used by the statement chain
// executor.
//
// Exec runs one SQL statement with driver-level bind parameters and returns
// the backend's native response shape. Implementations are safe for
// concurrent use; pooling is delegated to database/sql.
type Connector interface {
	Driver() config.DBDriver
	Exec(ctx context.Context, sqlText string, params []any) (Raw, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConnectionError reports a failure to open or reach the database. It is
// fatal at startup.
type ConnectionError struct {
	Driver config.DBDriver
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Driver, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Open connects to the configured backend and verifies the connection with
// a ping. The returned connector owns the pool; call Close when done.
func Open(cfg config.DBConfig) (Connector, error) {
	switch cfg.Driver {
	case config.DBDriverPostgres:
		return openPostgres(cfg)
	case config.DBDriverMySQL:
		return openMySQL(cfg)
	case config.DBDriverMSSQL:
		return openMSSQL(cfg)
	case config.DBDriverSQLite:
		return openSQLite(cfg)
	case config.DBDriverDuckDB:
		return openDuckDB(cfg)
	default:
		return nil, &ConnectionError{Driver: cfg.Driver, Err: fmt.Errorf("unsupported driver %q", cfg.Driver)}
	}
}

// conn is the database/sql plumbing shared by every connector.
type conn struct {
	driver  config.DBDriver
	db      *sql.DB
	timeout time.Duration
	decode  bytesDecoder
}

func openDB(cfg config.DBConfig, driverName, dsn string) (*conn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Err: err}
	}

	opt := cfg.Pool
	if opt.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}

	c := &conn{driver: cfg.Driver, db: db, timeout: cfg.StatementTimeout, decode: textBytes}
	if err := c.ping(opt.PingTimeout); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Driver: cfg.Driver, Err: err}
	}
	return c, nil
}

func (c *conn) ping(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.db.PingContext(ctx)
}

// Driver returns the backend this connector talks to.
func (c *conn) Driver() config.DBDriver {
	return c.driver
}

// Ping checks that the database is reachable.
func (c *conn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the pool.
func (c *conn) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// query runs one statement and reads every result set it produces.
func (c *conn) query(ctx context.Context, sqlText string, params []any) ([]resultSet, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rows, err := c.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResultSets(rows, c.decode)
}
