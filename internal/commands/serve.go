package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fumbl3b/harryAi/internal/api"
	"github.com/fumbl3b/harryAi/internal/config"
)

const shutdownTimeout = 10 * time.Second

const serveLong = `Serve the chat API:

  POST   /api/chat        complete a caller-supplied history
  POST   /api/message     send a message to the server's conversation
  GET    /api/messages    current conversation and turn state
  DELETE /api/messages    clear the conversation
  GET    /api/transcript  recorded turns (when transcript_path is set)`

// NewServeCmd builds the serve command. It reads --config and --debug from
// the persistent flags registered by AddGlobalFlags on it or a parent.
func NewServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the chat over HTTP",
		Long:         serveLong,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, logger, NewDependencies())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8100)")
	return cmd
}

// Serve runs the HTTP API until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, logger *zap.Logger, deps *Dependencies) (err error) {
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}
	return serve(ctx, ln, cfg, logger, deps)
}

func serve(ctx context.Context, ln net.Listener, cfg config.Config, logger *zap.Logger, deps *Dependencies) (err error) {
	a, err := newApp(cfg, logger, deps)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	var transcript api.Transcript
	if a.transcript != nil {
		transcript = a.transcript
	}

	mux := http.NewServeMux()
	api.NewHandler(a.ctrl, a.client, transcript, logger.Named("api")).Routes(mux)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("Starting server", zap.String("addr", ln.Addr().String()), zap.String("model", a.client.Model()))

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
