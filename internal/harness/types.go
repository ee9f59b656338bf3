package harness

import (
	"sort"

	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/route"
)

// TraceEvent records one request made by a scenario step.
type TraceEvent struct {
	Step       int              `json:"step"`
	Route      string           `json:"route"`
	RequestID  string           `json:"request_id,omitempty"`
	Stages     []string         `json:"stages,omitempty"`
	Statements []StatementEvent `json:"statements,omitempty"`
	Status     int              `json:"status"`
	Error      string           `json:"error,omitempty"`
}

// StatementEvent is one statement of a request's chain, successful or not.
type StatementEvent struct {
	Seq    int64       `json:"seq"`
	Index  int         `json:"index"`
	Query  string      `json:"query"`
	Params []any       `json:"params,omitempty"`
	Rows   []route.Row `json:"rows,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}

// statementEvents merges a chain log's entries and failures back into
// execution order.
func statementEvents(log *engine.ChainLog) []StatementEvent {
	if log == nil {
		return nil
	}
	events := make([]StatementEvent, 0, len(log.Entries)+len(log.Failures))
	for _, e := range log.Entries {
		ev := StatementEvent{Seq: e.Seq, Index: e.Index, Query: e.Query, Params: e.Params}
		if e.Result != nil {
			ev.Rows = e.Result.Rows
		}
		events = append(events, ev)
	}
	for _, f := range log.Failures {
		ev := StatementEvent{Seq: f.Seq, Index: f.Index, Query: f.Query, Params: f.Params}
		if f.Err != nil {
			ev.Error = f.Err.Error()
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}
