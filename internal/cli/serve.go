package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scbrown/storyrun/internal/server"
	"github.com/scbrown/storyrun/internal/store"
)

var serveAddr string

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server exposing the story store",
	Long: `Start an HTTP server that wraps the local store and exposes it over
HTTP. Remote clients read and write stories without direct access to the
data directory.

The server provides a JSON API at /api/v1/ with endpoints for the story
tree, stories, tests, sections, notes and templates. A health check is
available at /api/v1/health. Notes are attributed to the X-Sr-Author
request header.

Use sr config to set store_mode=remote and remote_url to point other sr
instances at this server.`,
	Example: `  # Start server on default port
  sr serve

  # Serve a SQLite store on a custom address
  sr serve --store sqlite --addr localhost:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if storeMode == string(store.ModeRemote) {
			return fmt.Errorf("sr serve needs a local store; got store mode %q", storeMode)
		}
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		srv := server.New(s, server.WithLogger(logger))

		// Listen first so we can report the actual address.
		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", serveAddr, err)
		}
		fmt.Fprintf(os.Stderr, "sr serve listening on %s\n", ln.Addr())
		logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("data_dir", dataDir))

		// Graceful shutdown on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Serve(ln)
		})
		g.Go(func() error {
			<-gctx.Done()
			fmt.Fprintln(os.Stderr, "shutting down...")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7273", "address to listen on (host:port)")
	rootCmd.AddCommand(serveCmd)
}
