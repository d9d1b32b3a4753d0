package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeineduck/fnhost/config"
	"github.com/caffeineduck/fnhost/dispatch"
	"github.com/caffeineduck/fnhost/route"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/caffeineduck/fnhost/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local function host",
	Long: `Start an HTTP server that serves every function and asset of the project.

Functions run in the host process by default. With --isolated each request
runs in a fresh worker process. With --live (the default) the route table is
rebuilt whenever files are added to or removed from the project.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().String("base-url", "", "Public URL of the host (default: http://localhost:<port>)")
	serveCmd.Flags().Bool("isolated", false, "Run each invocation in a separate worker process")
	serveCmd.Flags().Bool("live", true, "Reload routes when files change")
	serveCmd.Flags().Duration("timeout", 0, "Invocation timeout (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd, true)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	strategy, globals := p.strategy()
	index := dispatch.IndexPath
	if p.cfg.LegacyMode {
		index = dispatch.LegacyIndexPath
	}
	handler := dispatch.New(p.store, strategy, p.scope, dispatch.WithLogger(p.log), dispatch.WithIndexPath(index))

	ln, err := net.Listen("tcp", p.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	mode := "in-process"
	if p.cfg.Isolated {
		mode = "isolated"
	}
	p.log.Info("fnhost listening", "addr", ln.Addr().String(), "url", p.cfg.PublicURL(), "mode", mode, "routes", p.store.Load().Len())
	printRoutes(cmd.OutOrStdout(), p.store.Load(), p.cfg.PublicURL())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if p.cfg.Live {
		w := watch.New(p.store, p.opts,
			watch.WithLogger(p.log),
			watch.OnReload(func(t *route.Table) { p.reloaded(t, globals) }),
		)
		g.Go(func() error { return w.Run(ctx) })
	}

	return g.Wait()
}

// reloaded refreshes the in-process registry after the watcher published
// a new table.
func (p *project) reloaded(t *route.Table, globals *scope.Globals) {
	p.refreshRoots()
	if globals != nil {
		globals.SetRegistry(scope.RegistryFromTable(t, p.assetsRoot()))
	}
}
