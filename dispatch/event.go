package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// MaxBodySize bounds the request body parsed into the event.
const MaxBodySize = 10 << 20

// Event builds the handler event for r: query parameters merged with the
// form or JSON body, body keys winning, plus the request headers and
// cookies under "request". A "request" parameter sent by the client is
// replaced by the host's value.
func Event(r *http.Request) (map[string]any, error) {
	event := values(r.URL.Query())

	body, err := bodyValues(r)
	if err != nil {
		return nil, err
	}
	maps.Copy(event, body)

	headers := make(map[string]any, len(r.Header))
	for k, vs := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	cookies := make(map[string]any)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	event["request"] = map[string]any{
		"headers": headers,
		"cookies": cookies,
	}
	return event, nil
}

// values flattens url.Values: single values become strings, repeated keys
// become lists.
func values(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, vs := range v {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, s := range vs {
				list[i] = s
			}
			out[k] = list
		}
	}
	return out
}

func bodyValues(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil, nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		obj, _ := v.(map[string]any)
		return obj, nil

	case mediaType == "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		return values(r.PostForm), nil

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(MaxBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		if r.MultipartForm == nil {
			return nil, nil
		}
		return values(r.MultipartForm.Value), nil
	}
	return nil, nil
}
