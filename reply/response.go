package reply

import (
	"net/http"
	"strings"
)

// ResponseValue is the explicit response builder handed to handlers. Its
// setters return the receiver so calls can be chained.
type ResponseValue struct {
	statusCode int
	headers    Headers
	body       any
}

// ResponseOptions seeds a ResponseValue.
type ResponseOptions struct {
	StatusCode int            `json:"statusCode"`
	Headers    map[string]any `json:"headers"`
	Body       any            `json:"body"`
}

// NewResponseValue returns a 200 response with an empty cookie list.
func NewResponseValue(opts ResponseOptions) *ResponseValue {
	r := &ResponseValue{
		statusCode: http.StatusOK,
		headers:    Headers{HeaderSetCookie: {}},
		body:       opts.Body,
	}
	if opts.StatusCode != 0 {
		r.statusCode = opts.StatusCode
	}
	if opts.Headers != nil {
		r.SetHeaders(opts.Headers)
	}
	return r
}

func (r *ResponseValue) SetStatusCode(code int) *ResponseValue {
	r.statusCode = code
	return r
}

func (r *ResponseValue) SetBody(body any) *ResponseValue {
	r.body = body
	return r
}

// SetHeaders replaces every header. Set-Cookie stays an array.
func (r *ResponseValue) SetHeaders(headers map[string]any) *ResponseValue {
	next := Headers{}
	for k, v := range headers {
		vs, err := headerValues(v)
		if err != nil {
			continue
		}
		next[k] = vs
	}
	if _, ok := next[HeaderSetCookie]; !ok {
		next[HeaderSetCookie] = []string{}
	}
	r.headers = next
	return r
}

// AppendHeader adds a value to key. A header set twice becomes multi-valued.
func (r *ResponseValue) AppendHeader(key string, value any) *ResponseValue {
	vs, err := headerValues(value)
	if err != nil {
		return r
	}
	r.headers[key] = append(r.headers[key], vs...)
	return r
}

// SetCookie appends a cookie built from key=value and optional attributes
// such as "Max-Age=60" or "HttpOnly".
func (r *ResponseValue) SetCookie(key, value string, attributes []string) *ResponseValue {
	parts := []string{key + "=" + value}
	parts = append(parts, attributes...)
	r.headers[HeaderSetCookie] = append(r.headers[HeaderSetCookie], strings.Join(parts, ";"))
	return r
}

// RemoveCookie appends an expiring cookie for key.
func (r *ResponseValue) RemoveCookie(key string) *ResponseValue {
	return r.SetCookie(key, "", []string{"Max-Age=0"})
}

func (r *ResponseValue) StatusCode() int { return r.statusCode }

func (r *ResponseValue) Body() any { return r.body }

func (r *ResponseValue) Headers() Headers { return r.headers.Clone() }

// Result serializes the response into the KindResponse variant.
func (r *ResponseValue) Result() Result {
	return ResponseResult(r.statusCode, r.headers.Clone(), r.body)
}
