package dialect

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/roach88/resquel/internal/config"
)

// MySQLConnector talks to MySQL/MariaDB. Multi-statement calls are enabled,
// so one statement text may return an acknowledgement followed by rows.
// DATE and DATETIME columns scan into time.Time like the other drivers.
type MySQLConnector struct {
	*conn
}

func openMySQL(cfg config.DBConfig) (*MySQLConnector, error) {
	dsn, err := mysqlDSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: cfg.Driver, Err: err}
	}
	c, err := openDB(cfg, "mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &MySQLConnector{conn: c}, nil
}

func mysqlDSN(cfg config.DBConfig) (string, error) {
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
		port = 3306
	}
	if port < 0 || port > 65535 {
		return "", errors.New("db.port is invalid")
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Database
	mc.MultiStatements = true
	mc.ParseTime = true
	if len(cfg.Options) > 0 {
		mc.Params = make(map[string]string, len(cfg.Options))
		for k, v := range cfg.Options {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN(), nil
}

// Exec runs a statement and returns a MySQLResponse: one element per result
// set, an OkPacket for sets without columns.
func (c *MySQLConnector) Exec(ctx context.Context, sqlText string, params []any) (Raw, error) {
	sets, err := c.query(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	resp := make(MySQLResponse, 0, len(sets))
	for _, s := range sets {
		if !s.hasColumns() {
			resp = append(resp, OkPacket{})
			continue
		}
		resp = append(resp, RowSet(s.Rows))
	}
	return resp, nil
}
