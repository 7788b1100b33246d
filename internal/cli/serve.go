package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/topicgraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	docs, err := b.documents()
	if err != nil {
		return fmt.Errorf("serve needs a writable backend: %w", err)
	}
	sess, err := b.openSession(b.cfg.Cache.ReadThrough, true)
	if err != nil {
		return err
	}

	srv := server.New(docs, sess, VersionString(), b.logger.Named("http"),
		server.WithAllowedOrigins(b.cfg.Server.AllowedOrigins...))
	addr := b.cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "topicgraph serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  backend: %s\n", b.cfg.Remote.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		b.logger.Error("server error", zap.Error(err))
		return err
	}
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
