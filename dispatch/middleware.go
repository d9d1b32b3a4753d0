package dispatch

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/caffeineduck/fnhost/errpage"
	"github.com/caffeineduck/fnhost/internal/logger"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// requestID reuses an upstream request ID or generates one, stores it in the
// context for log records and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// recoverer turns a panic in request handling into an error page.
func (d *Dispatcher) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := string(debug.Stack())
			d.log.ErrorContext(r.Context(), "panic serving request", "panic", rec, "stack", stack)
			herr := &reply.HandlerError{Name: "Error", Message: fmt.Sprint(rec), Stack: stack, Structured: true}
			if err := errpage.Write(w, r, herr); err != nil {
				d.log.ErrorContext(r.Context(), "write error page", "error", err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (d *Dispatcher) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		d.log.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
