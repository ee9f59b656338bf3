package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/resquel/internal/route"
)

// CompileRoute parses a CUE value into a route.Spec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the route struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`route: getCustomer: { method: "GET", ... }`)
//	spec, err := CompileRoute(v.LookupPath(cue.ParsePath("route.getCustomer")))
//
// The query and count fields accept the same shapes as YAML: a string, a
// [sql, ...params] list, or a list of such lists.
func CompileRoute(v cue.Value) (*route.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &route.Spec{}

	// Route name from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	method, err := requiredString(v, "method")
	if err != nil {
		return nil, err
	}
	spec.Method = route.Method(method)

	endpoint, err := requiredString(v, "endpoint")
	if err != nil {
		return nil, err
	}
	spec.Endpoint = endpoint

	// query is optional; a route without one answers 204
	if qv := v.LookupPath(cue.ParsePath("query")); qv.Exists() {
		tmpl, err := compileTemplate(qv, "query")
		if err != nil {
			return nil, err
		}
		spec.Query = tmpl
	}

	if cv := v.LookupPath(cue.ParsePath("count")); cv.Exists() {
		tmpl, err := compileTemplate(cv, "count")
		if err != nil {
			return nil, err
		}
		spec.Count = &tmpl
	}

	if spec.Before, err = optionalString(v, "before"); err != nil {
		return nil, err
	}
	if spec.After, err = optionalString(v, "after"); err != nil {
		return nil, err
	}
	policy, err := optionalString(v, "failurePolicy")
	if err != nil {
		return nil, err
	}
	spec.FailurePolicy = route.Policy(policy)

	return spec, nil
}

func compileTemplate(v cue.Value, field string) (route.Template, error) {
	var raw any
	if err := v.Decode(&raw); err != nil {
		return route.Template{}, formatCUEError(err)
	}
	tmpl, err := route.ParseTemplate(raw)
	if err != nil {
		return route.Template{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return tmpl, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
