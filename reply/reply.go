// Package reply turns handler results into HTTP replies.
//
// A handler result is first classified into a closed set of kinds (see
// [Result]) and then translated into a [Reply]. The same types travel
// between the host and isolated workers as JSON.
package reply

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	HeaderContentType = "Content-Type"
	HeaderSetCookie   = "Set-Cookie"
)

// Headers maps a header name to its values. On the wire a single value is
// encoded as a string and several values as an array; Set-Cookie is always
// an array.
type Headers map[string][]string

// Get returns the first value of key, matching the name case-insensitively.
func (h Headers) Get(key string) string {
	for k, vs := range h {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Clone returns a deep copy of h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (h Headers) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(h))
	for k, vs := range h {
		switch {
		case strings.EqualFold(k, HeaderSetCookie):
			if vs == nil {
				vs = []string{}
			}
			m[k] = vs
		case len(vs) == 1:
			m[k] = vs[0]
		default:
			m[k] = vs
		}
	}
	return json.Marshal(m)
}

func (h *Headers) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for k, v := range raw {
		vs, err := headerValues(v)
		if err != nil {
			return fmt.Errorf("header %s: %w", k, err)
		}
		out[k] = vs
	}
	*h = out
	return nil
}

// headerValues normalizes a decoded header value (string, number, bool or a
// list of those) into a string slice.
func headerValues(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(x)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64, int, int64, bool:
		return fmt.Sprint(x), nil
	default:
		return "", fmt.Errorf("unsupported header value %T", v)
	}
}

// Reply is the normalized outcome of one successful invocation.
type Reply struct {
	StatusCode int     `json:"statusCode"`
	Headers    Headers `json:"headers"`
	Body       any     `json:"body,omitempty"`
}

// Write sends the reply. A string body is written verbatim; any other
// non-nil body is encoded as JSON.
func (r Reply) Write(w http.ResponseWriter) error {
	var payload []byte
	switch b := r.Body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	case []byte:
		payload = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode reply body: %w", err)
		}
		payload = data
		if r.Headers.Get(HeaderContentType) == "" {
			w.Header().Set(HeaderContentType, "application/json")
		}
	}

	for k, vs := range r.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write reply body: %w", err)
		}
	}
	return nil
}
