package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("config not found")

// Load reads a YAML config file. Fields missing from the file keep their
// Default values.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Config{}, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return Config{}, err
	}

	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.RoutesDir != "" && !filepath.IsAbs(cfg.RoutesDir) {
		cfg.RoutesDir = filepath.Join(filepath.Dir(path), cfg.RoutesDir)
	}
	if cfg.DB.Path != "" && cfg.DB.Path != ":memory:" && !filepath.IsAbs(cfg.DB.Path) {
		cfg.DB.Path = filepath.Join(filepath.Dir(path), cfg.DB.Path)
	}
	return cfg, nil
}

// Parse decodes YAML bytes on top of Default.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.DB.Password = ResolvePassword(cfg.DB)
	return cfg, nil
}

// ResolvePassword returns the configured password, preferring the value of
// PasswordEnv when that variable is set.
func ResolvePassword(db DBConfig) string {
	if db.PasswordEnv != "" {
		if v, ok := os.LookupEnv(db.PasswordEnv); ok {
			return v
		}
	}
	return db.Password
}

// Validate checks settings that do not depend on routes. Route validation
// lives in the compiler package.
func (c Config) Validate() error {
	var errs []error

	if err := ValidateListenAddr(strings.TrimSpace(c.APIListen)); err != nil {
		errs = append(errs, err)
	}
	if !c.FailurePolicy.Valid() {
		errs = append(errs, fmt.Errorf("failurePolicy %q must be one of continue, abort", c.FailurePolicy))
	}
	if !c.DB.Driver.Valid() {
		errs = append(errs, fmt.Errorf("db.driver %q must be one of %s", c.DB.Driver, strings.Join(DBDriverOptions(), ", ")))
	}
	if c.Auth.BearerToken == "" && (c.Auth.Username == "") != (c.Auth.Password == "") {
		errs = append(errs, errors.New("auth.username and auth.password must be set together"))
	}

	return errors.Join(errs...)
}

func ValidateListenAddr(addr string) error {
	if addr == "" {
		return errors.New("apiListen is required")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.New("apiListen must be in host:port format")
	}
	if host == "" {
		return errors.New("apiListen host is required")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return errors.New("apiListen port is invalid")
	}

	return nil
}
