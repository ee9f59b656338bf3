package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/route"
)

const maxBodyBytes = 1 << 20

// Stage names reported to an Observer.
const (
	StageBefore    = "before"
	StageExecution = "execution"
	StageAfter     = "after"
)

// Observation describes one finished request. Stages lists the lifecycle
// stages that ran, in order.
type Observation struct {
	RequestID string
	Route     string
	Stages    []string
	Log       *engine.ChainLog
	Result    *route.Result
	Status    int
	Err       error
}

// Observer receives an Observation after each request. It runs on the
// request goroutine and must not block.
type Observer func(Observation)

// Controller runs the request lifecycle for declared routes.
type Controller struct {
	exec     *engine.Executor
	traceIDs engine.TraceIDGenerator
	logger   *slog.Logger
	observer Observer
}

// NewController creates a controller. A nil traceIDs generates UUIDv7 ids;
// a nil logger discards output.
func NewController(exec *engine.Executor, traceIDs engine.TraceIDGenerator, logger *slog.Logger, observer Observer) *Controller {
	if traceIDs == nil {
		traceIDs = engine.UUIDv7Generator{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{exec: exec, traceIDs: traceIDs, logger: logger, observer: observer}
}

// Handler returns the HTTP handler for spec. Hooks must already be bound.
func (c *Controller) Handler(spec route.Spec) http.Handler {
	paramNames := route.ParamNames(spec.Endpoint)
	name := spec.String()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("requestId")
		if requestID == "" {
			requestID = c.traceIDs.Generate()
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		obs := Observation{RequestID: requestID, Route: name}
		rw := newResponseWriter(w)
		rw.requestID = requestID
		log := c.logger.With("request_id", requestID, "method", r.Method, "endpoint", spec.Endpoint)
		log.Info("request received", "route", name)

		c.serve(r.Context(), rw, r, spec, paramNames, log, &obs)

		obs.Status = rw.Status()
		if c.observer != nil {
			c.observer(obs)
		}
	})
}

func (c *Controller) serve(ctx context.Context, w *responseWriter, r *http.Request, spec route.Spec, paramNames []string, log *slog.Logger, obs *Observation) {
	rc, err := engine.NewRequestContext(r, obs.RequestID, obs.Route, paramNames)
	if err != nil {
		c.fail(w, log, obs, err)
		return
	}
	obs.Log = rc.Log
	draft := route.Draft{RequestID: obs.RequestID, Route: obs.Route}

	if spec.BeforeHook != nil {
		obs.Stages = append(obs.Stages, StageBefore)
		if err := spec.BeforeHook(ctx, route.HookCall{Request: r, Writer: w, Draft: draft}); err != nil {
			c.fail(w, log, obs, engine.NewHookError(StageBefore, err))
			return
		}
		if w.Written() {
			log.Warn("response sent by before hook")
			return
		}
	}

	obs.Stages = append(obs.Stages, StageExecution)
	result, err := c.execute(ctx, spec, rc)
	noQuery := errors.Is(err, engine.ErrNoQuery)
	if err != nil && !noQuery {
		c.fail(w, log, obs, err)
		return
	}
	draft.Result = result

	if spec.AfterHook != nil {
		obs.Stages = append(obs.Stages, StageAfter)
		override, err := spec.AfterHook(ctx, route.HookCall{Request: r, Writer: w, Draft: draft})
		if err != nil {
			c.fail(w, log, obs, engine.NewHookError(StageAfter, err))
			return
		}
		if w.Written() {
			log.Warn("response sent by after hook")
			return
		}
		if override != nil {
			result = override
		}
	}

	if result == nil {
		log.Info("no query, sending no content")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if result.Rows == nil {
		result.Rows = []route.Row{}
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	obs.Result = result
	log.Info("sending response", "status", status, "rows", len(result.Rows))
	WriteJSON(w, status, result)
}

func (c *Controller) execute(ctx context.Context, spec route.Spec, rc *engine.RequestContext) (*route.Result, error) {
	var total *int64
	if spec.Count != nil && !spec.Count.IsEmpty() {
		t, err := c.exec.Total(ctx, *spec.Count, rc, spec.FailurePolicy)
		if err != nil {
			return nil, err
		}
		total = t
	}

	result, err := c.exec.Run(ctx, spec.Query, rc, spec.FailurePolicy)
	if err != nil {
		return nil, err
	}
	result.Total = total
	return result, nil
}

func (c *Controller) fail(w *responseWriter, log *slog.Logger, obs *Observation, err error) {
	obs.Err = err
	status, code, message := classify(err)
	log.Error("request failed", "status", status, "code", code, "error", err)
	if w.Written() {
		return
	}
	WriteError(w, status, message, code, obs.RequestID)
}

// classify maps an error to its HTTP status, code and client message.
// Query text and parameters are never part of the message.
func classify(err error) (int, string, string) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		status := http.StatusInternalServerError
		switch ee.Code {
		case engine.ErrCodeInvalidBody, engine.ErrCodeParamLookup:
			status = http.StatusBadRequest
		}
		message := ee.Message
		if ee.Err != nil {
			message += ": " + ee.Err.Error()
		}
		return status, string(ee.Code), message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "REQUEST_CANCELLED", err.Error()
	}
	return http.StatusInternalServerError, "INTERNAL", err.Error()
}
