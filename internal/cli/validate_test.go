package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resquel/internal/compiler"
)

func TestValidateConfigFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("..", "..", "testdata", "resquel.yaml")})

	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ All routes valid (6)")
}

func TestValidateRoutesDirJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{routesDir})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 5, resp.Data.Routes)
}

func TestValidateNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateInvalidRoutes(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "routes.cue", `package routes

route: patch: {
	method:   "PATCH"
	endpoint: "/customer"
	query:    "SELECT 1"
}

route: mixed: {
	method:   "POST"
	endpoint: "/customer/:id"
	query: [["INSERT INTO t VALUES (?)", "params.id"], "SELECT 1"]
}

route: undeclared: {
	method:   "GET"
	endpoint: "/order"
	query: ["SELECT * FROM orders WHERE id = ?", "params.orderId"]
}

route: hooked: {
	method:   "DELETE"
	endpoint: "/order/:id"
	query: ["DELETE FROM orders WHERE id = ?", "params.id"]
	before: "requireAdmin"
}
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "4 error(s)")

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, 0, len(resp.Data.Errors))
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{
		compiler.ErrInvalidMethod,
		compiler.ErrMixedChain,
		compiler.ErrUndeclaredParam,
		compiler.ErrUnknownHook,
	}, codes)
}

func TestValidateDuplicateRoutesText(t *testing.T) {
	cfgPath := writeSQLiteConfig(t, `routes:
  - method: get
    endpoint: /customer/:id
    query: ["SELECT * FROM customer WHERE id = ?", "params.id"]
  - method: get
    endpoint: /customer/:customerId
    query: ["SELECT * FROM customer WHERE id = ?", "params.customerId"]
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), compiler.ErrDuplicateRoute)
}

func TestValidateConfigSettings(t *testing.T) {
	cfgPath := writeSQLiteConfig(t, "failurePolicy: retry\n"+customerRoutesYAML)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), ErrCodeConfig)
	assert.Contains(t, buf.String(), "failurePolicy")
}

func TestValidateVerboseGoesToStderr(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs([]string{routesDir})

	require.NoError(t, cmd.Execute())
	assert.True(t, json.Valid(out.Bytes()))
	assert.Contains(t, diag.String(), "Compiled route: listCustomers GET /customer")
}
