package config

import (
	"time"

	"github.com/roach88/resquel/internal/route"
)

// DBDriver selects the database connector. The set is closed; a driver is
// chosen once at startup.
type DBDriver string

const (
	DBDriverPostgres DBDriver = "postgresql"
	DBDriverMySQL    DBDriver = "mysql"
	DBDriverMSSQL    DBDriver = "mssql"
	DBDriverSQLite   DBDriver = "sqlite"
	DBDriverDuckDB   DBDriver = "duckdb"
)

func DBDriverValues() []DBDriver {
	return []DBDriver{DBDriverPostgres, DBDriverMySQL, DBDriverMSSQL, DBDriverSQLite, DBDriverDuckDB}
}

func DBDriverOptions() []string {
	vals := DBDriverValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, string(v))
	}
	return out
}

// Valid reports whether d is one of DBDriverValues.
func (d DBDriver) Valid() bool {
	for _, v := range DBDriverValues() {
		if d == v {
			return true
		}
	}
	return false
}

type PoolConfig struct {
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	PingTimeout     time.Duration `yaml:"pingTimeout"`
}

type DBConfig struct {
	Driver      DBDriver `yaml:"driver"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	User        string   `yaml:"user"`
	Password    string   `yaml:"password,omitempty"`
	PasswordEnv string   `yaml:"passwordEnv,omitempty"`
	Database    string   `yaml:"database"`

	// Path is the database file for sqlite and duckdb (":memory:" allowed).
	Path string `yaml:"path,omitempty"`

	// DSN overrides every connection field above when set.
	DSN string `yaml:"dsn,omitempty"`

	// Options are appended to the driver DSN as query parameters.
	Options map[string]string `yaml:"options,omitempty"`

	Pool PoolConfig `yaml:"pool"`

	// StatementTimeout bounds each statement call. Zero means no timeout.
	StatementTimeout time.Duration `yaml:"statementTimeout"`
}

type AuthConfig struct {
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	BearerToken string `yaml:"bearerToken,omitempty"`
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return a.BearerToken != "" || (a.Username != "" && a.Password != "")
}

type Config struct {
	APIListen     string       `yaml:"apiListen"`
	Debug         bool         `yaml:"debug"`
	DB            DBConfig     `yaml:"db"`
	Auth          AuthConfig   `yaml:"auth"`
	FailurePolicy route.Policy `yaml:"failurePolicy"`

	// Routes are declared inline; RoutesDir points at CUE route files that
	// are compiled and appended after them.
	Routes    []route.Spec `yaml:"routes"`
	RoutesDir string       `yaml:"routesDir,omitempty"`
}

func Default() Config {
	return Config{
		APIListen:     "127.0.0.1:3000",
		FailurePolicy: route.PolicyContinue,
		DB: DBConfig{
			Driver: DBDriverMSSQL,
			Host:   "localhost",
			Pool: PoolConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    10,
				ConnMaxLifetime: 30 * time.Minute,
				PingTimeout:     5 * time.Second,
			},
			StatementTimeout: 30 * time.Second,
		},
		Routes: []route.Spec{},
	}
}
