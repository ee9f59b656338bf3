package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
)

const customerRoutesYAML = `
routes:
  - method: get
    endpoint: /customer
    query: "SELECT * FROM customer ORDER BY id"
    count: "SELECT count(*) AS total FROM customer"
  - method: get
    endpoint: /customer/:customerId
    query: ["SELECT * FROM customer WHERE id = ?", "params.customerId"]
  - method: post
    endpoint: /customer
    query:
      - ["INSERT INTO customer (firstName, lastName, email) VALUES (?, ?, ?)", "body.firstName", "body.lastName", "body.email"]
      - ["SELECT * FROM customer WHERE id = last_insert_rowid()"]
  - method: get
    endpoint: /ping
    query: ""
`

// writeSQLiteConfig creates a sqlite database with a customer table in a
// temp dir and writes a config pointing at it. extra is appended to the
// config YAML.
func writeSQLiteConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "resquel.db")

	conn, err := dialect.Open(config.DBConfig{Driver: config.DBDriverSQLite, Path: dbPath})
	require.NoError(t, err)
	_, err = conn.Exec(context.Background(),
		"CREATE TABLE customer (id INTEGER PRIMARY KEY AUTOINCREMENT, firstName TEXT, lastName TEXT, email TEXT)", nil)
	require.NoError(t, err)
	_, err = conn.Exec(context.Background(),
		"INSERT INTO customer (firstName, lastName, email) VALUES (?, ?, ?)", []any{"Grace", "Hopper", "grace@example.com"})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	cfg := "apiListen: 127.0.0.1:0\ndb:\n  driver: sqlite\n  path: resquel.db\n" + extra
	cfgPath := filepath.Join(dir, "resquel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

// writeCUE writes a CUE file into dir.
func writeCUE(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// writeRawConfig writes content as a config file in a temp dir.
func writeRawConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "resquel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}
