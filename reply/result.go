package reply

import (
	"fmt"
	"net/http"
)

// Kind tags the variant held by a Result.
type Kind int

const (
	KindJSON Kind = iota
	KindText
	KindMarkup
	KindResponse
)

var kindNames = map[Kind]string{
	KindJSON:     "json",
	KindText:     "text",
	KindMarkup:   "markup",
	KindResponse: "response",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown result kind %q", b)
}

// Result is a classified handler result. Exactly one variant is meaningful,
// selected by Kind:
//
//	KindText      Body is the string
//	KindMarkup    Body is the serialized markup document
//	KindResponse  StatusCode, Headers and Body come from a ResponseValue
//	KindJSON      Body is any JSON-encodable value, possibly nil
type Result struct {
	Kind       Kind    `json:"type"`
	StatusCode int     `json:"statusCode,omitempty"`
	Headers    Headers `json:"headers,omitempty"`
	Body       any     `json:"body,omitempty"`
}

func TextResult(s string) Result {
	return Result{Kind: KindText, Body: s}
}

func MarkupResult(doc string) Result {
	return Result{Kind: KindMarkup, Body: doc}
}

func JSONResult(v any) Result {
	return Result{Kind: KindJSON, Body: v}
}

func ResponseResult(status int, headers Headers, body any) Result {
	return Result{Kind: KindResponse, StatusCode: status, Headers: headers, Body: body}
}

// Markup is implemented by markup-builder values. Anything that can render
// itself as a markup document is treated as one.
type Markup interface {
	MarkupString() string
}

// Classify selects the Result variant for a handler value. The checks run
// in priority order: string, markup builder, ResponseValue, anything else.
func Classify(v any) Result {
	switch x := v.(type) {
	case string:
		return TextResult(x)
	case Markup:
		return MarkupResult(x.MarkupString())
	case *ResponseValue:
		return x.Result()
	default:
		return JSONResult(v)
	}
}

// Translate converts a Result into the reply sent to the client.
func Translate(r Result) Reply {
	switch r.Kind {
	case KindText:
		return Reply{
			StatusCode: http.StatusOK,
			Headers:    Headers{HeaderContentType: {"text/plain"}},
			Body:       bodyString(r.Body),
		}
	case KindMarkup:
		return Reply{
			StatusCode: http.StatusOK,
			Headers:    Headers{HeaderContentType: {"text/xml"}},
			Body:       bodyString(r.Body),
		}
	case KindResponse:
		headers := r.Headers.Clone()
		if headers == nil {
			headers = Headers{}
		}
		if _, ok := headers[HeaderSetCookie]; !ok {
			headers[HeaderSetCookie] = []string{}
		}
		status := r.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		return Reply{StatusCode: status, Headers: headers, Body: r.Body}
	default:
		return Reply{
			StatusCode: http.StatusOK,
			Headers:    Headers{HeaderContentType: {"application/json"}},
			Body:       r.Body,
		}
	}
}

func bodyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
