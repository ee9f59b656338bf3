package route

import (
	"context"
	"net/http"
	"strings"
)

// Method is the HTTP method a route is bound to.
type Method string

// Supported route methods.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// ValidMethods lists the methods a route may declare.
var ValidMethods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete}

// Canonical returns the upper-cased method. Config files commonly use
// lower-case names ("get", "post").
func (m Method) Canonical() Method {
	return Method(strings.ToUpper(strings.TrimSpace(string(m))))
}

// Valid reports whether the method is one of ValidMethods.
func (m Method) Valid() bool {
	c := m.Canonical()
	for _, v := range ValidMethods {
		if c == v {
			return true
		}
	}
	return false
}

// Policy controls what a statement chain does when one statement fails.
type Policy string

const (
	// PolicyInherit defers to the server-wide policy.
	PolicyInherit Policy = ""

	// PolicyContinue logs the failing statement and runs the rest of the chain.
	PolicyContinue Policy = "continue"

	// PolicyAbort stops the chain and surfaces the first statement error.
	PolicyAbort Policy = "abort"
)

// Valid reports whether p is a known policy (the empty policy is valid).
func (p Policy) Valid() bool {
	switch p {
	case PolicyInherit, PolicyContinue, PolicyAbort:
		return true
	default:
		return false
	}
}

// Or returns p, or fallback when p is PolicyInherit.
func (p Policy) Or(fallback Policy) Policy {
	if p == PolicyInherit {
		return fallback
	}
	return p
}

// Spec is one declared endpoint.
//
// Spec values are immutable after load. Before and After name hooks held in
// a registry; BeforeHook and AfterHook are the bound functions and take
// precedence when set programmatically.
type Spec struct {
	Name          string    `yaml:"name,omitempty" json:"name,omitempty"`
	Method        Method    `yaml:"method" json:"method"`
	Endpoint      string    `yaml:"endpoint" json:"endpoint"`
	Query         Template  `yaml:"query" json:"query"`
	Count         *Template `yaml:"count,omitempty" json:"count,omitempty"`
	Before        string    `yaml:"before,omitempty" json:"before,omitempty"`
	After         string    `yaml:"after,omitempty" json:"after,omitempty"`
	FailurePolicy Policy    `yaml:"failurePolicy,omitempty" json:"failurePolicy,omitempty"`

	BeforeHook BeforeFunc `yaml:"-" json:"-"`
	AfterHook  AfterFunc  `yaml:"-" json:"-"`
}

// String renders the route as "METHOD /endpoint".
func (s Spec) String() string {
	return string(s.Method.Canonical()) + " " + s.Endpoint
}

// Row is one record of a result set, keyed by column name.
type Row map[string]any

// Result is the outcome of one statement, and of a route.
//
// The last successful statement's Result becomes the route's result unless
// an after-hook overrides it.
type Result struct {
	Status int    `json:"status"`
	Data   any    `json:"data"`
	Rows   []Row  `json:"rows"`
	Total  *int64 `json:"total,omitempty"`
}

// NewResult wraps rows in a 200/"OK" result. A nil rows slice becomes empty.
func NewResult(rows []Row) *Result {
	if rows == nil {
		rows = []Row{}
	}
	return &Result{Status: http.StatusOK, Data: "OK", Rows: rows}
}

// Clone returns a copy of r whose row slice and total can be changed
// without affecting r. Row maps are shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Rows = append([]Row{}, r.Rows...)
	if r.Total != nil {
		total := *r.Total
		out.Total = &total
	}
	return &out
}

// Draft is the response-in-progress handed to hooks and lookup funcs.
// It is passed by value; hooks change the response by returning a Result.
type Draft struct {
	RequestID string
	Route     string
	Result    *Result
}

// Querier runs a sub-query through the route's database connector and
// returns normalized rows.
type Querier interface {
	Query(ctx context.Context, sqlText string, params ...any) ([]Row, error)
}

// LookupCall is the argument to a LookupFunc.
type LookupCall struct {
	Request *http.Request
	Draft   Draft
	Querier Querier
}

// LookupFunc computes one bind parameter. It may run sub-queries through
// call.Querier; it must return a string.
type LookupFunc func(ctx context.Context, call LookupCall) (string, error)

// HookCall is the argument to before and after hooks.
//
// Writer tracks whether the hook wrote the response; the controller does not
// write again if it did.
type HookCall struct {
	Request *http.Request
	Writer  http.ResponseWriter
	Draft   Draft
}

// BeforeFunc runs before the route's statements. A non-nil error aborts the
// request.
type BeforeFunc func(ctx context.Context, call HookCall) error

// AfterFunc runs after the route's statements. A non-nil Result replaces the
// chain result; a non-nil error aborts the request.
type AfterFunc func(ctx context.Context, call HookCall) (*Result, error)
