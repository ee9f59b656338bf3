package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"routes": 5})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E005", "routes directory not found", map[string]string{"path": "./routes"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "routes directory not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E009", "database unreachable", map[string]string{"driver": "postgresql"}))
	assert.Contains(t, buf.String(), "Error [E009]: database unreachable")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E009", "database unreachable", map[string]string{"driver": "postgresql"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Compiling %s", "customer.cue")

			assert.Empty(t, out.String(), "verbose output must not corrupt JSON stdout")
			if tt.wantLog {
				assert.Contains(t, diag.String(), "Compiling customer.cue")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestOutputFormatter_RespondIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Respond(CLIResponse{
		Status: "error",
		Data:   ValidationResult{Routes: 2},
		Error:  &CLIError{Code: "E107", Message: "duplicate route"},
	}))

	assert.Contains(t, buf.String(), "\n  \"status\": \"error\"")
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "E107", resp.Error.Code)
}

func TestOutputFormatter_Logger(t *testing.T) {
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}, ErrWriter: diag}

	formatter.Logger().Info("statement executed")
	assert.Empty(t, diag.String())

	formatter.Verbose = true
	formatter.Logger().Debug("statement executed", "request_id", "req-1")
	assert.Contains(t, diag.String(), `"request_id":"req-1"`)
	assert.Contains(t, diag.String(), `"level":"DEBUG"`)

	diag.Reset()
	formatter.Format = "text"
	formatter.Logger().Debug("statement executed")
	assert.Contains(t, diag.String(), "level=DEBUG")
}

func TestCLIResponse_RequestID(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok", RequestID: "req-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","request_id":"req-1"}`, string(data))

	data, err = json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit_error", NewExitError(ExitCommandError, "boom"), ExitCommandError},
		{"wrapped", fmt.Errorf("serve: %w", WrapExitError(ExitFailure, "bad", errors.New("x"))), ExitFailure},
		{"plain", errors.New("plain"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitCommandError, "failed to open database", errors.New("dial tcp: refused"))
	assert.Equal(t, "failed to open database: dial tcp: refused", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "dial tcp: refused")

	assert.Equal(t, "no routes", NewExitError(ExitFailure, "no routes").Error())
}
