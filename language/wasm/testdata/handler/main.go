//go:build wasip1

// Example WebAssembly handler. It greets the event's name, reading the
// greeting through the env_get host function.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o hello.wasm .
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

var stdin = bufio.NewReader(os.Stdin)

func call(fn string, args map[string]any) (any, error) {
	frame, _ := json.Marshal(map[string]any{"fn": fn, "args": args})
	fmt.Fprintf(os.Stderr, "\x00FNHOST:%s\x00", frame)

	line, err := stdin.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data  any    `json:"data"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Data, nil
}

func fail(err error) {
	out, _ := json.Marshal(map[string]any{"error": map[string]string{"name": "Error", "message": err.Error()}})
	fmt.Println(string(out))
}

func main() {
	line, err := stdin.ReadBytes('\n')
	if err != nil {
		fail(err)
		return
	}
	var in struct {
		Event map[string]any `json:"event"`
		Path  string         `json:"path"`
	}
	if err := json.Unmarshal(line, &in); err != nil {
		fail(err)
		return
	}

	greeting, err := call("env_get", map[string]any{"key": "GREETING"})
	if err != nil {
		fail(err)
		return
	}
	if greeting == "" {
		greeting = "Hello"
	}
	call("debug_log", map[string]any{"message": "greeting", "args": []any{in.Path}})

	out, _ := json.Marshal(map[string]any{"result": map[string]any{
		"type": "text",
		"body": fmt.Sprintf("%s %v", greeting, in.Event["name"]),
	}})
	fmt.Println(string(out))
}
