package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/roach88/resquel/internal/compiler"
	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/route"
	"github.com/roach88/resquel/internal/server"
	"github.com/roach88/resquel/internal/testutil"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	hooks  *server.Registry
	logger *slog.Logger
}

// WithHooks makes the named hooks in reg available to scenario routes.
func WithHooks(reg *server.Registry) Option {
	return func(o *options) { o.hooks = reg }
}

// WithLogger sends server and executor logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Harness is the test execution engine for one scenario run.
type Harness struct {
	conn     dialect.Connector
	querier  route.Querier
	handler  http.Handler
	observed []server.Observation
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Open an in-memory SQLite database and run the setup SQL
// 2. Validate the routes and build the HTTP handler
// 3. Make each step's request and check its expect clause
// 4. Evaluate assertions against the trace and the database
//
// An error is returned when the scenario cannot run at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.hooks == nil {
		o.hooks = server.NewRegistry()
	}

	dbCfg := config.DBConfig{Driver: config.DBDriverSQLite, Path: ":memory:"}
	conn, err := dialect.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	defer conn.Close()

	ctx := context.Background()
	if err := executeSetup(ctx, conn, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	hookSet := compiler.NewHookSet(o.hooks.BeforeNames(), o.hooks.AfterNames())
	if errs := compiler.Validate(scenario.Routes, hookSet); len(errs) > 0 {
		return nil, fmt.Errorf("invalid routes: %w", errs[0])
	}

	h := &Harness{
		conn:    conn,
		querier: engine.NewExecutor(conn),
		logger:  o.logger,
	}

	cfg := config.Default()
	cfg.DB = dbCfg
	cfg.FailurePolicy = scenario.FailurePolicy.Or(route.PolicyContinue)
	h.handler, err = server.NewHandler(cfg, scenario.Routes, server.Deps{
		Connector: conn,
		Hooks:     o.hooks,
		Logger:    o.logger,
		TraceIDs:  testutil.NewFixedTraceGenerator(scenario.RequestID),
		Observer:  h.observe,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build handler: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{Querier: h.querier, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) observe(obs server.Observation) {
	h.observed = append(h.observed, obs)
}

// executeSetup runs the setup statements in order. Any failure stops the
// scenario.
func executeSetup(ctx context.Context, conn dialect.Connector, setup []string) error {
	for i, stmt := range setup {
		if _, err := conn.Exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	return nil
}

// executeSteps makes each step's request through the handler, records a
// trace event and checks the expect clause.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		req, err := newRequest(ctx, step)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		seen := len(h.observed)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		event := TraceEvent{Step: i, Status: rec.Code}
		if len(h.observed) > seen {
			obs := h.observed[len(h.observed)-1]
			event.Route = obs.Route
			event.RequestID = obs.RequestID
			event.Stages = obs.Stages
			event.Statements = statementEvents(obs.Log)
			if obs.Err != nil {
				event.Error = obs.Err.Error()
			}
		}
		result.AddTrace(event)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, rec) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Request, msg))
			}
		}

		h.logger.Info("step completed",
			"step", i,
			"request", step.Request,
			"route", event.Route,
			"status", rec.Code,
		)
	}
	return nil
}

func newRequest(ctx context.Context, step Step) (*http.Request, error) {
	method, target, err := step.Target()
	if err != nil {
		return nil, err
	}

	var body io.Reader
	contentType := ""
	switch {
	case step.Form != nil:
		vals := url.Values{}
		for k, v := range step.Form {
			vals.Set(k, v)
		}
		body = bytes.NewBufferString(vals.Encode())
		contentType = "application/x-www-form-urlencoded"
	case step.Body != nil:
		b, err := json.Marshal(step.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range step.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// checkExpect compares a recorded response against exp and returns one
// message per mismatch.
func checkExpect(exp *Expect, rec *httptest.ResponseRecorder) []string {
	var msgs []string
	if exp.Status != 0 && rec.Code != exp.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %d, got %d", exp.Status, rec.Code))
	}
	if exp.Code == "" && exp.Rows == nil && exp.Total == nil {
		return msgs
	}

	var resp struct {
		Rows  []map[string]any `json:"rows"`
		Total *int64           `json:"total"`
		Code  string           `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		return append(msgs, fmt.Sprintf("response body is not JSON: %v", err))
	}

	if exp.Code != "" && resp.Code != exp.Code {
		msgs = append(msgs, fmt.Sprintf("expected code %q, got %q", exp.Code, resp.Code))
	}
	if exp.Total != nil {
		switch {
		case resp.Total == nil:
			msgs = append(msgs, fmt.Sprintf("expected total %d, got none", *exp.Total))
		case *resp.Total != *exp.Total:
			msgs = append(msgs, fmt.Sprintf("expected total %d, got %d", *exp.Total, *resp.Total))
		}
	}
	if exp.Rows != nil {
		if len(resp.Rows) != len(exp.Rows) {
			msgs = append(msgs, fmt.Sprintf("expected %d row(s), got %d", len(exp.Rows), len(resp.Rows)))
			return msgs
		}
		for i, want := range exp.Rows {
			if !matchRow(resp.Rows[i], want) {
				msgs = append(msgs, fmt.Sprintf("row %d: expected %v, got %v", i, want, resp.Rows[i]))
			}
		}
	}
	return msgs
}

// jsonValue round-trips v through encoding/json so YAML-decoded
// expectations compare equal to JSON-decoded responses.
func jsonValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
