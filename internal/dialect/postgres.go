package dialect

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/roach88/resquel/internal/config"
)

// PostgresConnector talks to PostgreSQL through pgx. Statements use $1, $2
// placeholders.
type PostgresConnector struct {
	*conn
}

func openPostgres(cfg config.DBConfig) (*PostgresConnector, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Err: err}
	}
	c, err := openDB(cfg, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresConnector{conn: c}, nil
}

func postgresDSN(cfg config.DBConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.Host == "" {
		return "", errors.New("db.host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	if port < 0 || port > 65535 {
		return "", errors.New("db.port is invalid")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	q := url.Values{}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exec runs a statement and returns a PostgresResult.
func (c *PostgresConnector) Exec(ctx context.Context, sqlText string, params []any) (Raw, error) {
	sets, err := c.query(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	res := PostgresResult{}
	for _, s := range sets {
		if s.hasColumns() {
			res.Fields = s.Columns
			res.Rows = s.Rows
			res.RowCount = len(s.Rows)
			break
		}
	}
	return res, nil
}
