package dialect

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	mssql "github.com/microsoft/go-mssqldb" // also registers the "sqlserver" database/sql driver

	"github.com/roach88/resquel/internal/config"
)

// MSSQLConnector talks to SQL Server. Statements use @p1, @p2 placeholders
// for positional parameters.
type MSSQLConnector struct {
	*conn
}

func openMSSQL(cfg config.DBConfig) (*MSSQLConnector, error) {
	dsn, err := mssqlDSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Err: err}
	}
	c, err := openDB(cfg, "sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	c.decode = mssqlBytes
	return &MSSQLConnector{conn: c}, nil
}

// mssqlBytes renders UNIQUEIDENTIFIER columns in their canonical string
// form. SQL Server sends GUIDs as 16 mixed-endian bytes, which would
// otherwise become unreadable text in rows and priorResults bind values.
func mssqlBytes(dbType string, b []byte) any {
	if dbType == "UNIQUEIDENTIFIER" && len(b) == 16 {
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err == nil {
			return u.String()
		}
	}
	return string(b)
}

func mssqlDSN(cfg config.DBConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.Host == "" {
		return "", errors.New("db.host is required")
	}
	if cfg.User == "" {
		return "", errors.New("db.user is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	if port < 0 || port > 65535 {
		return "", errors.New("db.port is invalid")
	}

	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
	}
	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exec runs a statement and returns an MSSQLResult. Sets without columns
// (row-count acknowledgements) are not record sets.
func (c *MSSQLConnector) Exec(ctx context.Context, sqlText string, params []any) (Raw, error) {
	sets, err := c.query(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	res := MSSQLResult{}
	for _, s := range sets {
		if !s.hasColumns() {
			continue
		}
		res.Recordsets = append(res.Recordsets, s.Rows)
	}
	if len(res.Recordsets) > 0 {
		res.Recordset = res.Recordsets[0]
	}
	return res, nil
}
