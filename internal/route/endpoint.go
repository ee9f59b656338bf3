package route

import (
	"fmt"
	"strings"
)

// MuxPattern converts an express-style endpoint ("/customer/:customerId")
// into a net/http ServeMux pattern ("GET /customer/{customerId}").
func (s Spec) MuxPattern() (string, error) {
	path, err := MuxPath(s.Endpoint)
	if err != nil {
		return "", err
	}
	return string(s.Method.Canonical()) + " " + path, nil
}

// MuxPath converts the path part of an endpoint. Segments already written
// as "{name}" are kept.
func MuxPath(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "/") {
		return "", fmt.Errorf("endpoint %q must start with /", endpoint)
	}
	if endpoint == "/" {
		return "/{$}", nil
	}

	segments := strings.Split(strings.TrimSuffix(endpoint, "/"), "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := seg[1:]
		if !validParamName(name) {
			return "", fmt.Errorf("endpoint %q: invalid parameter %q", endpoint, seg)
		}
		segments[i] = "{" + name + "}"
	}
	return strings.Join(segments, "/"), nil
}

// ParamNames returns the path parameter names declared by an endpoint, in
// order.
func ParamNames(endpoint string) []string {
	var names []string
	for _, seg := range strings.Split(endpoint, "/") {
		switch {
		case strings.HasPrefix(seg, ":"):
			names = append(names, seg[1:])
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			names = append(names, strings.TrimSuffix(seg[1:len(seg)-1], "..."))
		}
	}
	return names
}

func validParamName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
