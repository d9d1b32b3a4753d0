package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/spf13/cobra"
)

// ErrFunctionFailed is returned by invoke when the handler failed.
var ErrFunctionFailed = errors.New("function failed")

var invokeCmd = &cobra.Command{
	Use:   "invoke <route>",
	Short: "Run one function without starting the server",
	Long: `Run the function mapped to <route> once and print its reply.

The event is built from --event (a JSON object) and --data key=value pairs;
--data wins on conflicts.

  fnhost invoke /hello --data name=Ada
  fnhost invoke /sms --event '{"Body":"hi","From":"+15550100"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringArrayP("data", "D", nil, "Event field key=value (repeatable)")
	invokeCmd.Flags().String("event", "", "Event as a JSON object")
	invokeCmd.Flags().Bool("isolated", false, "Run in a separate worker process")
	invokeCmd.Flags().Duration("timeout", 0, "Invocation timeout (0 disables)")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	event, err := invokeEvent(cmd)
	if err != nil {
		return err
	}

	p, err := openProject(cmd, false)
	if err != nil {
		return err
	}
	defer p.Close()

	strategy, _ := p.strategy()
	return invokeRoute(cmd.Context(), cmd.OutOrStdout(), p, strategy, args[0], event)
}

func invokeEvent(cmd *cobra.Command) (map[string]any, error) {
	event := map[string]any{}
	if raw, _ := cmd.Flags().GetString("event"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("invalid --event: %w", err)
		}
	}
	data, _ := cmd.Flags().GetStringArray("data")
	for _, kv := range data {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --data %q (want key=value)", kv)
		}
		event[k] = v
	}
	return event, nil
}

// invokeRoute runs the function at path and prints the outcome to w.
func invokeRoute(ctx context.Context, w io.Writer, p *project, strategy executor.Strategy, path string, event map[string]any) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	table := p.store.Load()
	res, ok := table.Lookup(path)
	if !ok {
		return fmt.Errorf("no route %s", path)
	}
	if res.Kind != resource.Function {
		return fmt.Errorf("%s is an asset, not a function", path)
	}

	outcome, err := strategy.Invoke(ctx, executor.Request{
		FunctionPath: res.FilePath,
		Event:        event,
		Config:       p.scope(table),
		Path:         res.RoutePath,
	})
	if err != nil {
		return err
	}
	return printOutcome(w, outcome)
}

func printOutcome(w io.Writer, outcome reply.Outcome) error {
	if outcome.Err != nil {
		fmt.Fprintln(w, outcome.Err.Error())
		if outcome.Err.Stack != "" {
			fmt.Fprintln(w, outcome.Err.Stack)
		}
		return ErrFunctionFailed
	}
	if outcome.Reply == nil {
		return ErrFunctionFailed
	}

	r := outcome.Reply
	fmt.Fprintf(w, "%d\n", r.StatusCode)
	for _, k := range slices.Sorted(maps.Keys(r.Headers)) {
		for _, v := range r.Headers[k] {
			fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintln(w)

	switch b := r.Body.(type) {
	case nil:
	case string:
		fmt.Fprintln(w, b)
	default:
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}
