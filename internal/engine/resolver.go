package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/resquel/internal/route"
)

// Context section roots a path may start with.
const (
	rootBody         = "body"
	rootData         = "data"
	rootParams       = "params"
	rootQuery        = "query"
	rootPriorResults = "priorResults"
)

type segment struct {
	name  string
	index int
	isIdx bool
}

func (s segment) String() string {
	if s.isIdx {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.name
}

// tokenize splits "priorResults[0].id" into priorResults, [0], id.
func tokenize(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
		name, rest, _ := strings.Cut(part, "[")
		if name != "" {
			segs = append(segs, segment{name: norm.NFC.String(name)})
		}
		if rest == "" && !strings.Contains(part, "[") {
			continue
		}
		rest = "[" + rest
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("path %q: unexpected %q", path, rest)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated index", path)
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", path, rest[1:end])
			}
			segs = append(segs, segment{index: n, isIdx: true})
			rest = rest[end+1:]
		}
	}
	if segs[0].isIdx {
		return nil, fmt.Errorf("path %q must start with a section name", path)
	}
	return segs, nil
}

// ResolvePath extracts the bind value addressed by path from rc.
//
// The first segment selects the section (body or data, params, query,
// priorResults). A numeric segment ("2" or "[2]") indexes a list. Under
// priorResults, the segment after the statement index addresses the first
// row's column unless it is a row index or "rows".
//
// A missing segment, a nil value, or a value that is neither a string nor a
// number fails with PARAM_LOOKUP_FAILED.
func ResolvePath(path string, rc *RequestContext) (any, error) {
	segs, err := tokenize(path)
	if err != nil {
		return nil, lookupError(path, err.Error())
	}

	var cur any
	rest := segs[1:]
	switch segs[0].name {
	case rootBody, rootData:
		cur = rc.Body
	case rootParams:
		params := make(map[string]any, len(rc.Params))
		for k, v := range rc.Params {
			params[k] = v
		}
		cur = params
	case rootQuery:
		cur = rc.Query
	case rootPriorResults:
		cur, rest, err = priorRows(rc.Log, rest)
		if err != nil {
			return nil, lookupError(path, err.Error())
		}
	default:
		return nil, lookupError(path, fmt.Sprintf("unknown section %q", segs[0].name))
	}

	for _, seg := range rest {
		next, ok := step(cur, seg)
		if !ok {
			return nil, lookupError(path, fmt.Sprintf("segment %s not found", seg))
		}
		cur = next
	}

	v, ok := bindable(cur)
	if !ok {
		return nil, lookupError(path, fmt.Sprintf("value of type %T cannot be bound", cur))
	}
	return v, nil
}

// priorRows resolves the statement index after priorResults and returns the
// remaining segments to walk.
func priorRows(log *ChainLog, segs []segment) (any, []segment, error) {
	if len(segs) == 0 {
		return nil, nil, fmt.Errorf("priorResults needs a statement index")
	}
	idx, ok := asIndex(segs[0])
	if !ok {
		return nil, nil, fmt.Errorf("priorResults needs a statement index, got %s", segs[0])
	}
	rows, ok := log.Rows(idx)
	if !ok {
		return nil, nil, fmt.Errorf("statement %d has no result", idx)
	}
	rest := segs[1:]
	if len(rest) == 0 {
		return rows, rest, nil
	}

	if _, isIdx := asIndex(rest[0]); isIdx {
		return rows, rest, nil
	}
	if rest[0].name == "rows" {
		return rows, rest[1:], nil
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("statement %d returned no rows", idx)
	}
	return rows[0], rest, nil
}

func asIndex(seg segment) (int, bool) {
	if seg.isIdx {
		return seg.index, true
	}
	n, err := strconv.Atoi(seg.name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func step(cur any, seg segment) (any, bool) {
	if idx, ok := asIndex(seg); ok {
		switch list := cur.(type) {
		case []any:
			if idx < len(list) {
				return list[idx], true
			}
			return nil, false
		case []route.Row:
			if idx < len(list) {
				return list[idx], true
			}
			return nil, false
		}
		if seg.isIdx {
			return nil, false
		}
	}

	switch m := cur.(type) {
	case map[string]any:
		return lookupKey(m, seg.name)
	case route.Row:
		return lookupKey(m, seg.name)
	case map[string]string:
		v, ok := m[seg.name]
		return v, ok
	}
	return nil, false
}

func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	// Row maps come from the driver and are not pre-normalized.
	for k, v := range m {
		if norm.NFC.String(k) == key {
			return v, true
		}
	}
	return nil, false
}

// bindable reports whether v may be passed as a bind parameter and returns
// the value to pass. json.Number becomes int64 or float64.
func bindable(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, true
	default:
		return nil, false
	}
}

func lookupError(path, reason string) *Error {
	return newError(ErrCodeParamLookup, -1, fmt.Sprintf("lookup %q: %s", path, reason), nil)
}
