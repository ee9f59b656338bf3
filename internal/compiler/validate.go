package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/resquel/internal/route"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// Route declaration errors (E101-E109)
	ErrInvalidMethod    = "E101" // method is not GET, POST, PUT or DELETE
	ErrInvalidEndpoint  = "E102" // endpoint is not a valid path pattern
	ErrInvalidTemplate  = "E103" // query or count has a malformed statement
	ErrMixedChain       = "E104" // bare SQL string after a prepared tuple
	ErrInvalidPolicy    = "E105" // failurePolicy is not continue or abort
	ErrUnknownHook      = "E106" // before/after names an unregistered hook
	ErrDuplicateRoute   = "E107" // two routes share a method and path pattern
	ErrUnknownSection   = "E108" // param path starts with an unknown section
	ErrUndeclaredParam  = "E109" // params.x where the endpoint has no :x
	ErrForwardReference = "E110" // priorResults[i] at or after statement i
)

// ValidationError represents a route validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// HookSet lists the hook names routes may refer to. A nil *HookSet skips
// hook checks.
type HookSet struct {
	Before map[string]bool
	After  map[string]bool
}

// NewHookSet builds a HookSet from name lists.
func NewHookSet(before, after []string) *HookSet {
	hs := &HookSet{Before: make(map[string]bool), After: make(map[string]bool)}
	for _, n := range before {
		hs.Before[n] = true
	}
	for _, n := range after {
		hs.After[n] = true
	}
	return hs
}

// Validate validates one route declaration.
// Returns all errors found (does not fail-fast).
// Supports route.Spec and []route.Spec; the slice form also reports
// duplicate patterns.
func Validate(v any, hooks *HookSet) []ValidationError {
	switch val := v.(type) {
	case route.Spec:
		return validateRoute(&val, hooks)
	case *route.Spec:
		return validateRoute(val, hooks)
	case []route.Spec:
		return validateRoutes(val, hooks)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateRoutes(specs []route.Spec, hooks *HookSet) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]int, len(specs))

	for i := range specs {
		spec := &specs[i]
		for _, e := range validateRoute(spec, hooks) {
			e.Field = fmt.Sprintf("routes[%d].%s", i, e.Field)
			errs = append(errs, e)
		}

		pattern, err := spec.MuxPattern()
		if err != nil {
			continue
		}
		key := shapeKey(pattern)
		if prev, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("routes[%d]", i),
				Message: fmt.Sprintf("%s conflicts with routes[%d] (%s)", spec, prev, specs[prev].String()),
				Code:    ErrDuplicateRoute,
			})
			continue
		}
		seen[key] = i
	}
	return errs
}

var wildcardPattern = regexp.MustCompile(`\{[^}]*\}`)

// shapeKey erases wildcard names so /a/{id} and /a/{customerId} collide,
// matching net/http ServeMux conflict rules for same-shape patterns.
func shapeKey(pattern string) string {
	return wildcardPattern.ReplaceAllString(pattern, "{}")
}

// validateRoute validates a single route declaration.
func validateRoute(spec *route.Spec, hooks *HookSet) []ValidationError {
	var errs []ValidationError

	if !spec.Method.Valid() {
		errs = append(errs, ValidationError{
			Field:   "method",
			Message: fmt.Sprintf("method %q must be one of GET, POST, PUT, DELETE", spec.Method),
			Code:    ErrInvalidMethod,
		})
	}

	if _, err := route.MuxPath(spec.Endpoint); err != nil {
		errs = append(errs, ValidationError{
			Field:   "endpoint",
			Message: err.Error(),
			Code:    ErrInvalidEndpoint,
		})
	}

	if !spec.FailurePolicy.Valid() {
		errs = append(errs, ValidationError{
			Field:   "failurePolicy",
			Message: fmt.Sprintf("failurePolicy %q must be continue or abort", spec.FailurePolicy),
			Code:    ErrInvalidPolicy,
		})
	}

	declared := make(map[string]bool)
	for _, name := range route.ParamNames(spec.Endpoint) {
		declared[name] = true
	}
	errs = append(errs, validateTemplate("query", spec.Query, declared)...)
	if spec.Count != nil {
		errs = append(errs, validateTemplate("count", *spec.Count, declared)...)
	}

	if hooks != nil {
		if spec.Before != "" && spec.BeforeHook == nil && !hooks.Before[spec.Before] {
			errs = append(errs, ValidationError{
				Field:   "before",
				Message: fmt.Sprintf("unknown before hook %q", spec.Before),
				Code:    ErrUnknownHook,
			})
		}
		if spec.After != "" && spec.AfterHook == nil && !hooks.After[spec.After] {
			errs = append(errs, ValidationError{
				Field:   "after",
				Message: fmt.Sprintf("unknown after hook %q", spec.After),
				Code:    ErrUnknownHook,
			})
		}
	}

	return errs
}

func validateTemplate(field string, tmpl route.Template, declared map[string]bool) []ValidationError {
	statements, err := tmpl.Statements()
	if err != nil {
		code := ErrInvalidTemplate
		if errors.Is(err, route.ErrMixedChain) {
			code = ErrMixedChain
		}
		return []ValidationError{{Field: field, Message: err.Error(), Code: code}}
	}

	var errs []ValidationError
	for i, st := range statements {
		for j, ref := range st.Params {
			if ref.Lookup != nil {
				continue
			}
			if e, ok := validateParamPath(ref.Path, i, declared); !ok {
				e.Field = fmt.Sprintf("%s[%d].params[%d]", field, i, j)
				errs = append(errs, e)
			}
		}
	}
	return errs
}

var priorIndexPattern = regexp.MustCompile(`^priorResults(?:\[(\d+)\]|\.(\d+))`)

func validateParamPath(path string, statement int, declared map[string]bool) (ValidationError, bool) {
	root := path
	if i := strings.IndexAny(path, ".["); i >= 0 {
		root = path[:i]
	}

	switch root {
	case "body", "data", "query":
		return ValidationError{}, true
	case "params":
		name, _, _ := strings.Cut(strings.TrimPrefix(path, "params."), ".")
		if !strings.HasPrefix(path, "params.") || !declared[name] {
			return ValidationError{
				Message: fmt.Sprintf("%q: endpoint declares no parameter %q", path, name),
				Code:    ErrUndeclaredParam,
			}, false
		}
		return ValidationError{}, true
	case "priorResults":
		m := priorIndexPattern.FindStringSubmatch(path)
		if m == nil {
			return ValidationError{
				Message: fmt.Sprintf("%q: priorResults needs a statement index", path),
				Code:    ErrUnknownSection,
			}, false
		}
		idx, _ := strconv.Atoi(m[1] + m[2])
		if idx >= statement {
			return ValidationError{
				Message: fmt.Sprintf("%q: statement %d can only refer to earlier statements", path, statement),
				Code:    ErrForwardReference,
			}, false
		}
		return ValidationError{}, true
	default:
		return ValidationError{
			Message: fmt.Sprintf("%q: unknown section %q (want body, data, params, query or priorResults)", path, root),
			Code:    ErrUnknownSection,
		}, false
	}
}
