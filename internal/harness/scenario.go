package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/resquel/internal/route"
)

// Scenario defines a conformance test scenario: a database, a set of
// routes, and the requests made against them.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup holds SQL statements run in order before the first request.
	Setup []string `yaml:"setup,omitempty"`

	// Routes are the declared endpoints under test.
	Routes []route.Spec `yaml:"routes"`

	// FailurePolicy is the server-wide policy. Empty means continue.
	FailurePolicy route.Policy `yaml:"failure_policy,omitempty"`

	// Steps are the requests, made in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RequestID is the trace id given to every request that does not pass
	// its own requestId. If empty, defaults to "test-request-default".
	RequestID string `yaml:"request_id,omitempty"`
}

// Step is one HTTP request and its optional expectations.
type Step struct {
	// Request is "METHOD /path", e.g. "GET /customer/1?requestId=abc".
	Request string `yaml:"request"`

	// Body is sent as JSON. Ignored when Form is set.
	Body any `yaml:"body,omitempty"`

	// Form is sent as application/x-www-form-urlencoded.
	Form map[string]string `yaml:"form,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	// Expect is checked against the response. If nil, any response passes.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected response.
type Expect struct {
	// Status is the expected HTTP status. Zero skips the check.
	Status int `yaml:"status,omitempty"`

	// Code is the expected error code of an error response.
	Code string `yaml:"code,omitempty"`

	// Rows, when present, must have the same length as the response rows.
	// Each expected row is a subset match against the row at its position.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Total is the expected count total.
	Total *int64 `yaml:"total,omitempty"`
}

// Target splits Request into method and target.
func (s Step) Target() (method, target string, err error) {
	fields := strings.Fields(s.Request)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("request %q must be \"METHOD /path\"", s.Request)
	}
	method = strings.ToUpper(fields[0])
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead, http.MethodOptions:
	default:
		return "", "", fmt.Errorf("request %q: unsupported method %q", s.Request, fields[0])
	}
	if !strings.HasPrefix(fields[1], "/") {
		return "", "", fmt.Errorf("request %q: path must start with /", s.Request)
	}
	return method, fields[1], nil
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a request hit Route (and Status, if set)
	// - "trace_order": Check Routes were hit in order
	// - "trace_count": Check Route was hit exactly Count times
	// - "final_state": Query Table and verify expected values
	Type string `yaml:"type"`

	// Route is the route name, "METHOD /endpoint" as declared.
	Route string `yaml:"route,omitempty"`

	// Status is the expected response status (used by trace_contains).
	Status int `yaml:"status,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of requests (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Routes is the expected route order (used by trace_order).
	Routes []string `yaml:"routes,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
// Route declarations are validated when the scenario runs, against the
// hooks it runs with.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Routes) == 0 {
		return fmt.Errorf("routes list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if !s.FailurePolicy.Valid() {
		return fmt.Errorf("failure_policy %q must be continue or abort", s.FailurePolicy)
	}

	for i, stmt := range s.Setup {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}

	for i, step := range s.Steps {
		if step.Request == "" {
			return fmt.Errorf("steps[%d]: request is required", i)
		}
		if _, _, err := step.Target(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Routes) == 0 {
			return fmt.Errorf("assertions[%d]: routes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
