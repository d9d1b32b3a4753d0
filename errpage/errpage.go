// Package errpage renders handler failures for HTTP clients.
//
// Structured errors (name, message, stack) have their stack trimmed to the
// frames of user code and are rendered as an HTML page for browsers or as
// JSON {message, name, stack} for everything else. Non-error values a
// handler failed with are sent unchanged. Every response has status 500.
package errpage

import (
	"encoding/json"
	"html/template"
	"net/http"
	"regexp"
	"strings"

	"github.com/caffeineduck/fnhost/reply"
)

var (
	browserPlatform = regexp.MustCompile(`Mozilla/\d+\.\d+ \((Windows|Macintosh|X11|Linux|iPhone|iPad|iPod|Android)`)
	toolAgents      = []string{"curl/", "wget/", "postmanruntime/", "insomnia/", "httpie/", "python-requests/", "go-http-client/", "node-fetch", "axios/", "okhttp/"}
)

// IsInteractive reports whether userAgent looks like a desktop or mobile
// browser.
func IsInteractive(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, tool := range toolAgents {
		if strings.Contains(lower, tool) {
			return false
		}
	}
	return browserPlatform.MatchString(userAgent)
}

// DefaultHostFrames marks stack frames that belong to the host rather than
// to handler code.
var DefaultHostFrames = []string{"prelude.js", "(native)", "github.com/caffeineduck/fnhost/"}

// SanitizeStack removes host frames from a stack trace. Lines that are not
// frames (the error headline) are kept.
func SanitizeStack(stack string, hostFrames ...string) string {
	if len(hostFrames) == 0 {
		hostFrames = DefaultHostFrames
	}
	lines := strings.Split(stack, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isFrame(line) && containsAny(line, hostFrames) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}

func isFrame(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "at ")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Body is the JSON rendering of a structured error.
type Body struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Stack   string `json:"stack"`
}

// Write renders herr for the client that sent r.
func Write(w http.ResponseWriter, r *http.Request, herr *reply.HandlerError) error {
	if !herr.Structured {
		return writeValue(w, herr.Value)
	}

	body := Body{Message: herr.Message, Name: herr.Name, Stack: SanitizeStack(herr.Stack)}
	if body.Name == "" {
		body.Name = "Error"
	}

	if IsInteractive(r.UserAgent()) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		return page.Execute(w, body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	return json.NewEncoder(w).Encode(body)
}

// WriteError renders a host-side failure, such as a transport error, the
// same way as a handler error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) error {
	return Write(w, r, reply.NewHandlerError(err))
}

func writeValue(w http.ResponseWriter, v any) error {
	if s, ok := v.(string); ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, err := w.Write([]byte(s))
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, err = w.Write(data)
	return err
}

var page = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}}: {{.Message}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #1f2328; }
h1 { color: #cf222e; font-size: 1.4rem; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; border-radius: 6px; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p>{{.Message}}</p>
{{if .Stack}}<pre>{{.Stack}}</pre>{{end}}
</body>
</html>
`))
