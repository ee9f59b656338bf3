package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/route"
)

// Executor runs statement chains against one connector.
//
// An Executor holds no per-request state and is safe for concurrent use;
// everything a chain accumulates lives in its RequestContext.
type Executor struct {
	conn   dialect.Connector
	policy route.Policy
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPolicy sets the failure policy used by routes that do not declare
// their own. Default: route.PolicyContinue.
func WithPolicy(p route.Policy) ExecutorOption {
	return func(e *Executor) {
		if p != route.PolicyInherit {
			e.policy = p
		}
	}
}

// WithLogger sets the executor's logger. A nil logger discards output.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an Executor over conn.
func NewExecutor(conn dialect.Connector, opts ...ExecutorOption) *Executor {
	e := &Executor{
		conn:   conn,
		policy: route.PolicyContinue,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Policy returns the executor's default failure policy.
func (e *Executor) Policy() route.Policy {
	return e.policy
}

// Run executes tmpl against rc and returns the route result.
//
// A malformed template fails with CHAIN_RESOLUTION before any statement
// runs; an empty template returns ErrNoQuery. Each statement's outcome is
// recorded in rc.Log. Under the continue policy a failed statement is logged
// and skipped, and the result is that of the last statement that succeeded
// (empty rows if none did). Under the abort policy the first failure is
// returned.
func (e *Executor) Run(ctx context.Context, tmpl route.Template, rc *RequestContext, policy route.Policy) (*route.Result, error) {
	if tmpl.IsEmpty() {
		return nil, ErrNoQuery
	}
	statements, err := tmpl.Statements()
	if err != nil {
		ce := newError(ErrCodeChainResolution, -1, "malformed query template", err)
		ce.RequestID = rc.RequestID
		return nil, ce
	}
	if rc.Log == nil {
		rc.Log = NewChainLog()
	}
	policy = policy.Or(e.policy)

	log := e.logger.With("request_id", rc.RequestID, "route", rc.Route)
	for i, st := range statements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		params, err := e.resolveParams(ctx, st, rc, i)
		if err == nil {
			err = e.execute(ctx, st, params, rc, i)
		}
		if err == nil {
			continue
		}

		var ee *Error
		if errors.As(err, &ee) {
			ee.Statement = i
			ee.RequestID = rc.RequestID
			ee.Query = st.SQL
			ee.Params = params
		}
		rc.Log.Fail(i, st.SQL, params, err)
		log.Error("statement failed",
			"statement", i,
			"query", st.SQL,
			"params", params,
			"policy", string(policy),
			"error", err,
		)
		if policy == route.PolicyAbort {
			return nil, err
		}
	}

	if last := rc.Log.Last(); last != nil {
		return last.Clone(), nil
	}
	return route.NewResult(nil), nil
}

func (e *Executor) resolveParams(ctx context.Context, st route.Prepared, rc *RequestContext, index int) ([]any, error) {
	params := make([]any, 0, len(st.Params))
	for _, ref := range st.Params {
		if ref.Lookup != nil {
			v, err := ref.Lookup(ctx, route.LookupCall{
				Request: rc.Request,
				Draft: route.Draft{
					RequestID: rc.RequestID,
					Route:     rc.Route,
					Result:    rc.Log.Last().Clone(),
				},
				Querier: e,
			})
			if err != nil {
				return params, newError(ErrCodeParamLookup, index, "lookup function failed", err)
			}
			params = append(params, v)
			continue
		}

		v, err := ResolvePath(ref.Path, rc)
		if err != nil {
			return params, err
		}
		params = append(params, v)
	}
	return params, nil
}

func (e *Executor) execute(ctx context.Context, st route.Prepared, params []any, rc *RequestContext, index int) error {
	raw, err := e.conn.Exec(ctx, st.SQL, params)
	if err != nil {
		return newError(ErrCodeQuery, index, "query failed", err)
	}

	rows, ok := dialect.Normalize(e.conn.Driver(), raw)
	if !ok {
		e.logger.Warn("unrecognized driver response shape",
			"request_id", rc.RequestID,
			"driver", string(e.conn.Driver()),
			"type", fmt.Sprintf("%T", raw),
		)
	}

	result := route.NewResult(rows)
	rc.Log.Append(index, st.SQL, params, result)
	e.logger.Debug("statement executed",
		"request_id", rc.RequestID,
		"statement", index,
		"query", st.SQL,
		"rows", len(rows),
	)
	return nil
}

// Total runs a count template as its own chain and returns the first row's
// "total" column. The count chain resolves against rc's body, params and
// query but keeps its own priorResults.
func (e *Executor) Total(ctx context.Context, tmpl route.Template, rc *RequestContext, policy route.Policy) (*int64, error) {
	sub := *rc
	sub.Log = NewChainLog()

	res, err := e.Run(ctx, tmpl, &sub, policy)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	total, ok := asInt64(res.Rows[0]["total"])
	if !ok {
		e.logger.Warn("count query returned no numeric total", "request_id", rc.RequestID)
		return nil, nil
	}
	return &total, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Query runs a sub-query for a lookup function. It implements route.Querier.
func (e *Executor) Query(ctx context.Context, sqlText string, params ...any) ([]route.Row, error) {
	raw, err := e.conn.Exec(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	rows, _ := dialect.Normalize(e.conn.Driver(), raw)
	return rows, nil
}
