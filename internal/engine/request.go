package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"golang.org/x/text/unicode/norm"
)

// RequestContext is the per-request snapshot statements resolve their
// parameters against.
//
// It is created at request entry, appended to by the executor after each
// successful statement (through Log), and discarded when the response is
// written. A RequestContext is owned by one request goroutine.
type RequestContext struct {
	RequestID string
	Route     string
	Request   *http.Request

	// Body is the decoded request body: a JSON value (numbers as
	// json.Number) or, for form posts, a map of first values.
	Body any

	Params map[string]string
	Query  map[string]any
	Log    *ChainLog
}

// NewRequestContext snapshots r for the route whose endpoint declares
// paramNames.
//
// JSON bodies are decoded with UseNumber; url-encoded forms become a map of
// first values. Object keys are NFC-normalized. A body that cannot be
// decoded yields an INVALID_BODY error.
func NewRequestContext(r *http.Request, requestID, routeName string, paramNames []string) (*RequestContext, error) {
	rc := &RequestContext{
		RequestID: requestID,
		Route:     routeName,
		Request:   r,
		Params:    make(map[string]string, len(paramNames)),
		Query:     make(map[string]any),
		Log:       NewChainLog(),
	}

	for _, name := range paramNames {
		rc.Params[norm.NFC.String(name)] = r.PathValue(name)
	}
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			rc.Query[norm.NFC.String(key)] = vals[0]
		}
	}

	body, err := decodeBody(r)
	if err != nil {
		return nil, NewInvalidBodyError(err)
	}
	rc.Body = body
	return rc, nil
}

func decodeBody(r *http.Request) (any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return map[string]any{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		form := make(map[string]any, len(r.PostForm))
		for key, vals := range r.PostForm {
			if len(vals) > 0 {
				form[norm.NFC.String(key)] = vals[0]
			}
		}
		return form, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}
	return normalizeKeys(body), nil
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return errors.New("request body must contain a single JSON value")
		}
		return err
	}
	return nil
}

// normalizeKeys rewrites every object key of a decoded JSON value to NFC.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[norm.NFC.String(k)] = normalizeKeys(child)
		}
		return out
	case []any:
		for i, child := range val {
			val[i] = normalizeKeys(child)
		}
		return val
	default:
		return v
	}
}
