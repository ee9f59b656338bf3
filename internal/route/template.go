package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMixedChain is returned when a statement chain holds a bare SQL string
// after a prepared tuple. Change the bare string to a one-element tuple.
var ErrMixedChain = errors.New("bare SQL string after a prepared statement in chain")

// Form identifies which of the three template shapes a Template holds.
type Form int

const (
	// FormEmpty is a template with no query; the route answers 204.
	FormEmpty Form = iota
	// FormString is a raw SQL string with no parameters.
	FormString
	// FormPrepared is a single [sql, ...params] tuple.
	FormPrepared
	// FormChain is an ordered list of tuples.
	FormChain
)

// String returns the form name used in diagnostics.
func (f Form) String() string {
	switch f {
	case FormEmpty:
		return "empty"
	case FormString:
		return "string"
	case FormPrepared:
		return "prepared"
	case FormChain:
		return "chain"
	default:
		return fmt.Sprintf("Form(%d)", int(f))
	}
}

// ParamRef is one bind parameter reference: a dotted path into the request
// context, or a function.
type ParamRef struct {
	Path   string
	Lookup LookupFunc
}

// Param returns a path reference such as "body.firstName" or
// "priorResults[0].id".
func Param(path string) ParamRef {
	return ParamRef{Path: path}
}

// Lookup returns a function reference.
func Lookup(fn LookupFunc) ParamRef {
	return ParamRef{Lookup: fn}
}

// String renders the reference for logs.
func (r ParamRef) String() string {
	if r.Lookup != nil {
		return "<lookup>"
	}
	return r.Path
}

// Prepared is one SQL statement with its ordered parameter references.
type Prepared struct {
	SQL    string
	Params []ParamRef
}

// Prepare builds a Prepared statement from SQL text and path references.
func Prepare(sqlText string, params ...ParamRef) Prepared {
	return Prepared{SQL: sqlText, Params: params}
}

// Element is one entry of a statement chain as declared. Bare marks an
// entry that was written as a plain string rather than a tuple.
type Element struct {
	Prepared
	Bare bool
}

// Template is a route's query declaration.
//
// A Template is one of: empty, a raw SQL string, a single prepared tuple,
// or a chain of prepared tuples. Use Statements to obtain the executable
// sequence; it enforces the chain shape rule.
type Template struct {
	Form     Form
	SQL      string
	Elements []Element
}

// Raw returns a raw-string template.
func Raw(sqlText string) Template {
	if strings.TrimSpace(sqlText) == "" {
		return Template{Form: FormEmpty}
	}
	return Template{Form: FormString, SQL: sqlText}
}

// Single returns a one-tuple template.
func Single(p Prepared) Template {
	return Template{Form: FormPrepared, Elements: []Element{{Prepared: p}}}
}

// Chain returns a chain template of the given statements.
func Chain(statements ...Prepared) Template {
	elems := make([]Element, len(statements))
	for i, st := range statements {
		elems[i] = Element{Prepared: st}
	}
	return Template{Form: FormChain, Elements: elems}
}

// IsEmpty reports whether the template has no computable query.
func (t Template) IsEmpty() bool {
	switch t.Form {
	case FormEmpty:
		return true
	case FormString:
		return strings.TrimSpace(t.SQL) == ""
	default:
		return len(t.Elements) == 0
	}
}

// ShapeError describes a malformed template.
type ShapeError struct {
	Index  int
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("query element %d: %s", e.Index, e.Reason)
	}
	return "query: " + e.Reason
}

// Unwrap returns the underlying sentinel, if any.
func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Statements normalizes the template into an executable sequence.
//
// A raw string becomes one zero-parameter statement; a prepared tuple
// becomes a one-element sequence; a chain is used as-is after checking that
// no element past index 0 is a bare string. An empty template returns a nil
// slice and no error.
func (t Template) Statements() ([]Prepared, error) {
	if t.IsEmpty() {
		return nil, nil
	}

	switch t.Form {
	case FormString:
		return []Prepared{{SQL: t.SQL}}, nil
	case FormPrepared, FormChain:
		out := make([]Prepared, 0, len(t.Elements))
		for i, el := range t.Elements {
			if el.Bare && i > 0 {
				return nil, &ShapeError{Index: i, Reason: ErrMixedChain.Error(), Err: ErrMixedChain}
			}
			if strings.TrimSpace(el.SQL) == "" {
				return nil, &ShapeError{Index: i, Reason: "statement SQL is empty"}
			}
			out = append(out, el.Prepared)
		}
		return out, nil
	default:
		return nil, &ShapeError{Index: -1, Reason: fmt.Sprintf("unknown template form %s", t.Form)}
	}
}

// ParseTemplate converts a generically decoded value (from YAML, JSON or
// CUE) into a Template.
//
// Accepted shapes:
//
//	"SELECT * FROM customers"
//	["SELECT * FROM customers WHERE id=?", "params.customerId"]
//	[["INSERT ... VALUES (?)", "body.email"], ["SELECT ..."]]
//
// Shape violations inside a chain (a bare string after a tuple) are kept and
// reported by Statements, so a loaded config can still be listed and
// validated. Structural errors (wrong element types) fail here.
func ParseTemplate(v any) (Template, error) {
	switch val := v.(type) {
	case nil:
		return Template{Form: FormEmpty}, nil
	case string:
		return Raw(val), nil
	case []any:
		return parseList(val)
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return parseList(list)
	default:
		return Template{}, &ShapeError{Index: -1, Reason: fmt.Sprintf("unsupported query type %T", v)}
	}
}

func parseList(list []any) (Template, error) {
	if len(list) == 0 {
		return Template{Form: FormEmpty}, nil
	}

	// ["SQL", "param", ...] is a single prepared tuple.
	if _, ok := list[0].(string); ok {
		p, err := parseTuple(list, -1)
		if err != nil {
			return Template{}, err
		}
		return Single(p), nil
	}

	elems := make([]Element, 0, len(list))
	for i, item := range list {
		switch it := item.(type) {
		case string:
			elems = append(elems, Element{Prepared: Prepared{SQL: it}, Bare: true})
		case []any:
			p, err := parseTuple(it, i)
			if err != nil {
				return Template{}, err
			}
			elems = append(elems, Element{Prepared: p})
		default:
			return Template{}, &ShapeError{Index: i, Reason: fmt.Sprintf("chain element must be a string or list, got %T", item)}
		}
	}
	return Template{Form: FormChain, Elements: elems}, nil
}

func parseTuple(tuple []any, index int) (Prepared, error) {
	if len(tuple) == 0 {
		return Prepared{}, &ShapeError{Index: index, Reason: "prepared statement is empty"}
	}
	sqlText, ok := tuple[0].(string)
	if !ok {
		return Prepared{}, &ShapeError{Index: index, Reason: fmt.Sprintf("prepared statement SQL must be a string, got %T", tuple[0])}
	}
	p := Prepared{SQL: sqlText, Params: make([]ParamRef, 0, len(tuple)-1)}
	for j, ref := range tuple[1:] {
		path, ok := ref.(string)
		if !ok {
			return Prepared{}, &ShapeError{Index: index, Reason: fmt.Sprintf("param %d must be a path string, got %T", j, ref)}
		}
		p.Params = append(p.Params, Param(path))
	}
	return p, nil
}

// Value converts the template back into its generic decoded shape.
// Lookup function references render as "<lookup>".
func (t Template) Value() any {
	switch t.Form {
	case FormEmpty:
		return nil
	case FormString:
		return t.SQL
	case FormPrepared:
		if len(t.Elements) == 0 {
			return nil
		}
		return tupleValue(t.Elements[0].Prepared)
	default:
		out := make([]any, len(t.Elements))
		for i, el := range t.Elements {
			if el.Bare {
				out[i] = el.SQL
				continue
			}
			out[i] = tupleValue(el.Prepared)
		}
		return out
	}
}

func tupleValue(p Prepared) []any {
	out := make([]any, 0, len(p.Params)+1)
	out = append(out, p.SQL)
	for _, ref := range p.Params {
		out = append(out, ref.String())
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Template) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseTemplate(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Template) MarshalYAML() (any, error) {
	return t.Value(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Template) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTemplate(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value())
}
