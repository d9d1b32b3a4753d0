package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/fnhost/hostfunc"
)

// Host calls are framed on stderr as \x00FNHOST:{json}\x00 and answered with
// one JSON line on stdin.
const (
	protocolPrefix = "\x00FNHOST:"
	protocolSuffix = "\x00"
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// protocolHandler sits on the module's stderr. Plain output is kept for
// diagnostics; frames trigger host calls.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	mu          sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		start := strings.Index(content, protocolPrefix)
		if start == -1 {
			// A trailing NUL may open a frame split across writes.
			keep := 0
			if partialPrefix(content) {
				keep = len(content) - strings.LastIndex(content, "\x00")
			}
			p.realStderr.WriteString(content[:len(content)-keep])
			p.buf.Reset()
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		p.realStderr.WriteString(content[:start])

		body := content[start+len(protocolPrefix):]
		end := strings.Index(body, protocolSuffix)
		if end == -1 {
			p.buf.Reset()
			p.buf.WriteString(content[start:])
			break
		}

		p.buf.Reset()
		p.buf.WriteString(body[end+len(protocolSuffix):])

		var req callRequest
		if err := json.Unmarshal([]byte(body[:end]), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		p.respond(p.handleCall(req))
	}

	return len(data), nil
}

// partialPrefix reports whether content ends with a strict prefix of the
// frame marker.
func partialPrefix(content string) bool {
	i := strings.LastIndex(content, "\x00")
	if i == -1 {
		return false
	}
	return strings.HasPrefix(protocolPrefix, content[i:])
}

func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(callResponse{Error: err.Error()})
	}
	go p.stdinWriter.Write(append(data, '\n'))
}

func (p *protocolHandler) handleCall(req callRequest) callResponse {
	result, err := p.registry.Call(p.ctx, req.Fn, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// Stderr returns the module's non-protocol stderr output.
func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
