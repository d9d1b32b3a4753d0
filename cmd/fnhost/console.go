package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for invoking functions",
	Long: `Start an interactive console that invokes the project's functions.

Enter a route, optionally followed by a JSON event:

  > /hello
  > /sms {"Body": "hi"}

Commands:
  routes    list the current routes
  reload    rediscover the project
  exit      leave the console (or Ctrl+D)

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().String("history", "", "History file path (default: ~/.fnhost_history)")
	consoleCmd.Flags().Bool("isolated", false, "Run each invocation in a separate worker process")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".fnhost_history")
	}

	p, err := openProject(cmd, true)
	if err != nil {
		return err
	}
	defer p.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "fnhost console (type 'exit' to quit, Ctrl+D to exit)")
	strategy, globals := p.strategy()
	c := &console{project: p, strategy: strategy, globals: globals, out: cmd.OutOrStdout()}

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if done := c.exec(cmd, line); done {
			return nil
		}
	}
}

type console struct {
	project  *project
	strategy executor.Strategy
	globals  *scope.Globals
	out      io.Writer
}

// exec handles one console line and reports whether the console should
// exit.
func (c *console) exec(cmd *cobra.Command, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "exit", "quit":
		return true
	case "routes":
		printRoutes(c.out, c.project.store.Load(), c.project.cfg.PublicURL())
		return false
	case "reload":
		if err := c.reload(); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		return false
	}

	path, rawEvent, _ := strings.Cut(line, " ")
	event := map[string]any{}
	if rawEvent = strings.TrimSpace(rawEvent); rawEvent != "" {
		if err := json.Unmarshal([]byte(rawEvent), &event); err != nil {
			fmt.Fprintf(c.out, "Error: invalid event: %v\n", err)
			return false
		}
	}
	err := invokeRoute(cmd.Context(), c.out, c.project, c.strategy, path, event)
	if err != nil && !errors.Is(err, ErrFunctionFailed) {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *console) reload() error {
	resources, err := resource.Discover(c.project.opts)
	if err != nil {
		return err
	}
	t, err := c.project.store.Rebuild(resources)
	if err != nil {
		return err
	}
	c.project.reloaded(t, c.globals)
	fmt.Fprintf(c.out, "%d routes (generation %d)\n", t.Len(), t.Generation())
	return nil
}
