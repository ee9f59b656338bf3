package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/route"
	"github.com/roach88/resquel/internal/testutil"
)

type body struct {
	Status    int         `json:"status"`
	Data      any         `json:"data"`
	Rows      []route.Row `json:"rows"`
	Total     *int64      `json:"total"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId"`
}

func customerRoutes(t *testing.T) []route.Spec {
	t.Helper()
	mustParse := func(v any) route.Template {
		tmpl, err := route.ParseTemplate(v)
		require.NoError(t, err)
		return tmpl
	}
	count := route.Raw("SELECT count(*) AS total FROM customer")
	return []route.Spec{
		{Method: "get", Endpoint: "/customer", Query: route.Raw("SELECT * FROM customer ORDER BY id"), Count: &count},
		{Method: "post", Endpoint: "/customer", Query: mustParse([]any{
			[]any{"INSERT INTO customer (firstName, lastName, email) VALUES (?, ?, ?)", "body.firstName", "body.lastName", "body.email"},
			[]any{"SELECT * FROM customer WHERE id = last_insert_rowid()"},
		})},
		{Method: "get", Endpoint: "/customer/:customerId", Query: mustParse([]any{"SELECT * FROM customer WHERE id = ?", "params.customerId"})},
		{Method: "put", Endpoint: "/customer/:customerId", Query: mustParse([]any{
			[]any{"UPDATE customer SET firstName = ?, lastName = ?, email = ? WHERE id = ?", "body.firstName", "body.lastName", "body.email", "params.customerId"},
			[]any{"SELECT * FROM customer WHERE id = ?", "params.customerId"},
		})},
		{Method: "delete", Endpoint: "/customer/:customerId", Query: mustParse([]any{"DELETE FROM customer WHERE id = ?", "params.customerId"})},
		{Method: "get", Endpoint: "/ping"},
	}
}

func openCustomerDB(t *testing.T) dialect.Connector {
	t.Helper()
	conn, err := dialect.Open(config.DBConfig{Driver: config.DBDriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(context.Background(), `CREATE TABLE customer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		firstName TEXT,
		lastName TEXT,
		email TEXT
	)`, nil)
	require.NoError(t, err)
	return conn
}

func newTestHandler(t *testing.T, cfg config.Config, routes []route.Spec, deps Deps) http.Handler {
	t.Helper()
	if deps.TraceIDs == nil {
		deps.TraceIDs = testutil.NewFixedTraceGenerator("req-fixed")
	}
	h, err := NewHandler(cfg, routes, deps)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, target string, payload any) (*httptest.ResponseRecorder, body) {
	t.Helper()
	var reader *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out body
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestServer_CustomerRoundTrip(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	rec, created := do(t, h, http.MethodPost, "/customer", map[string]any{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 200, created.Status)
	assert.Equal(t, "OK", created.Data)
	require.Len(t, created.Rows, 1)
	assert.Equal(t, "Ada", created.Rows[0]["firstName"])
	id := created.Rows[0]["id"]
	require.NotNil(t, id)

	rec, index := do(t, h, http.MethodGet, "/customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, index.Rows, 1)
	assert.Equal(t, "ada@example.com", index.Rows[0]["email"])
	require.NotNil(t, index.Total)
	assert.Equal(t, int64(1), *index.Total)

	rec, updated := do(t, h, http.MethodPut, "/customer/1", map[string]any{
		"firstName": "Augusta", "lastName": "King", "email": "ada@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, updated.Rows, 1)
	assert.Equal(t, "Augusta", updated.Rows[0]["firstName"])

	rec, deleted := do(t, h, http.MethodDelete, "/customer/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deleted.Rows)
	assert.NotNil(t, deleted.Rows)

	// Deleting again is not an error.
	rec, deleted = do(t, h, http.MethodDelete, "/customer/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deleted.Rows)

	_, got := do(t, h, http.MethodGet, "/customer/1", nil)
	assert.Empty(t, got.Rows)
}

func TestServer_NoQueryIsNoContent(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	rec, _ := do(t, h, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestServer_HookOrder(t *testing.T) {
	var stages []string
	hooks := NewRegistry()
	hooks.RegisterBefore("audit", func(ctx context.Context, call route.HookCall) error {
		stages = append(stages, "before")
		return nil
	})
	hooks.RegisterAfter("stamp", func(ctx context.Context, call route.HookCall) (*route.Result, error) {
		stages = append(stages, "after")
		return nil, nil
	})

	conn := testutil.NewRecordingConnector(config.DBDriverSQLite)
	var observed Observation
	routes := []route.Spec{{Method: "GET", Endpoint: "/x", Query: route.Raw("SELECT 1"), Before: "audit", After: "stamp"}}
	h := newTestHandler(t, config.Default(), routes, Deps{
		Connector: &stageConnector{RecordingConnector: conn, stages: &stages},
		Hooks:     hooks,
		Observer:  func(o Observation) { observed = o },
	})

	rec, _ := do(t, h, http.MethodGet, "/x", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"before", "execution", "after"}, stages)
	assert.Equal(t, []string{StageBefore, StageExecution, StageAfter}, observed.Stages)
	assert.Equal(t, "req-fixed", observed.RequestID)
}

type stageConnector struct {
	*testutil.RecordingConnector
	stages *[]string
}

func (c *stageConnector) Exec(ctx context.Context, sqlText string, params []any) (dialect.Raw, error) {
	*c.stages = append(*c.stages, "execution")
	return c.RecordingConnector.Exec(ctx, sqlText, params)
}

func TestServer_AfterHookOverride(t *testing.T) {
	hooks := NewRegistry()
	hooks.RegisterAfter("wrap", func(ctx context.Context, call route.HookCall) (*route.Result, error) {
		out := call.Draft.Result.Clone()
		out.Status = http.StatusCreated
		out.Data = "created"
		return out, nil
	})
	conn := testutil.NewRecordingConnector(config.DBDriverSQLite).OnRows("SELECT 1", route.Row{"n": float64(1)})
	routes := []route.Spec{{Method: "POST", Endpoint: "/x", Query: route.Raw("SELECT 1"), After: "wrap"}}
	h := newTestHandler(t, config.Default(), routes, Deps{Connector: conn, Hooks: hooks})

	rec, out := do(t, h, http.MethodPost, "/x", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", out.Data)
	assert.Equal(t, []route.Row{{"n": float64(1)}}, out.Rows)
}

func TestServer_AfterHookSendsResponse(t *testing.T) {
	routes := []route.Spec{{
		Method:   "GET",
		Endpoint: "/x",
		Query:    route.Raw("SELECT 1"),
		AfterHook: func(ctx context.Context, call route.HookCall) (*route.Result, error) {
			call.Writer.WriteHeader(http.StatusTeapot)
			_, _ = call.Writer.Write([]byte("custom"))
			return nil, nil
		},
	}}
	h := newTestHandler(t, config.Default(), routes, Deps{Connector: testutil.NewRecordingConnector(config.DBDriverSQLite)})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "custom", rec.Body.String())
}

func TestServer_BeforeHookErrorStopsRequest(t *testing.T) {
	conn := testutil.NewRecordingConnector(config.DBDriverSQLite)
	routes := []route.Spec{{
		Method:   "GET",
		Endpoint: "/x",
		Query:    route.Raw("SELECT 1"),
		BeforeHook: func(ctx context.Context, call route.HookCall) error {
			return errors.New("not allowed")
		},
	}}
	h := newTestHandler(t, config.Default(), routes, Deps{Connector: conn})

	rec, out := do(t, h, http.MethodGet, "/x?requestId=abc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "HOOK_ERROR", out.Code)
	assert.Equal(t, "abc", out.RequestID)
	assert.Equal(t, 500, out.Status)
	assert.Contains(t, out.Message, "not allowed")
	assert.Empty(t, conn.Calls())
}

func TestServer_MixedChainIs500WithoutDatabaseCalls(t *testing.T) {
	conn := testutil.NewRecordingConnector(config.DBDriverSQLite)
	tmpl, err := route.ParseTemplate([]any{[]any{"SELECT ?", "query.a"}, "SELECT 2"})
	require.NoError(t, err)
	h := newTestHandler(t, config.Default(), []route.Spec{{Method: "GET", Endpoint: "/x", Query: tmpl}}, Deps{Connector: conn})

	rec, out := do(t, h, http.MethodGet, "/x?a=1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(engine.ErrCodeChainResolution), out.Code)
	assert.Equal(t, "req-fixed", out.RequestID)
	assert.Empty(t, conn.Calls())
}

func TestServer_AbortPolicyLookupFailureIs400(t *testing.T) {
	conn := testutil.NewRecordingConnector(config.DBDriverSQLite)
	cfg := config.Default()
	cfg.FailurePolicy = route.PolicyAbort
	routes := []route.Spec{{
		Method:   "POST",
		Endpoint: "/x",
		Query:    route.Single(route.Prepare("INSERT INTO t VALUES (?)", route.Param("body.missing"))),
	}}
	h := newTestHandler(t, cfg, routes, Deps{Connector: conn})

	rec, out := do(t, h, http.MethodPost, "/x", map[string]any{"present": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(engine.ErrCodeParamLookup), out.Code)
	assert.NotContains(t, out.Message, "INSERT")
}

func TestServer_InvalidBodyIs400(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	req := httptest.NewRequest(http.MethodPost, "/customer", strings.NewReader(`{"firstName":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_BODY")
}

func TestServer_FormBody(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	form := url.Values{"firstName": {"Grace"}, "lastName": {"Hopper"}, "email": {"grace@example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/customer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "grace@example.com")
}

func TestServer_MethodOverride(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})
	do(t, h, http.MethodPost, "/customer", map[string]any{"firstName": "Ada", "lastName": "L", "email": "a@x"})

	req := httptest.NewRequest(http.MethodPost, "/customer/1", nil)
	req.Header.Set("X-HTTP-Method-Override", "DELETE")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, index := do(t, h, http.MethodGet, "/customer", nil)
	assert.Empty(t, index.Rows)
}

func TestServer_Auth(t *testing.T) {
	cfg := config.Default()
	cfg.Auth = config.AuthConfig{Username: "admin", Password: "secret", BearerToken: "tok"}
	h := newTestHandler(t, cfg, customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	rec, out := do(t, h, http.MethodGet, "/customer", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", out.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/customer", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/customer", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/customer", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_HealthAndNotFound(t *testing.T) {
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t)})

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sqlite"`)

	rec, out := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", out.Code)
}

// accessRecords returns the access log records (msg "request") written as
// JSON lines to buf.
func accessRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		if rec["msg"] == "request" {
			records = append(records, rec)
		}
	}
	return records
}

func TestServer_AccessLogCarriesRequestID(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	h := newTestHandler(t, config.Default(), customerRoutes(t), Deps{Connector: openCustomerDB(t), Logger: logger})

	do(t, h, http.MethodGet, "/customer", nil)
	do(t, h, http.MethodGet, "/customer/1?requestId=trace-42", nil)
	do(t, h, http.MethodGet, "/nope?requestId=trace-404", nil)
	do(t, h, http.MethodGet, "/nope", nil)

	records := accessRecords(t, logs)
	require.Len(t, records, 4)
	assert.Equal(t, "req-fixed", records[0]["request_id"], "generated id")
	assert.Equal(t, "trace-42", records[1]["request_id"])
	assert.Equal(t, "trace-404", records[2]["request_id"], "unrouted request keeps the query id")
	assert.NotContains(t, records[3], "request_id")
	assert.Equal(t, float64(http.StatusNotFound), records[3]["status"])
}

func TestNewHandler_Errors(t *testing.T) {
	_, err := NewHandler(config.Default(), nil, Deps{})
	assert.Error(t, err)

	conn := testutil.NewRecordingConnector(config.DBDriverSQLite)
	_, err = NewHandler(config.Default(), []route.Spec{{Method: "GET", Endpoint: "/x", Before: "missing"}}, Deps{Connector: conn})
	assert.ErrorContains(t, err, "unknown before hook")

	dup := []route.Spec{
		{Method: "GET", Endpoint: "/customer/:id"},
		{Method: "GET", Endpoint: "/customer/:customerId"},
	}
	_, err = NewHandler(config.Default(), dup, Deps{Connector: conn})
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	cfg := config.Default()
	srv, err := NewServer(cfg, nil, Deps{Connector: testutil.NewRecordingConnector(config.DBDriverSQLite)})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", srv.Addr)

	cfg.APIListen = "nonsense"
	_, err = NewServer(cfg, nil, Deps{Connector: testutil.NewRecordingConnector(config.DBDriverSQLite)})
	assert.Error(t, err)
}
