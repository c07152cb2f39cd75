package main

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
	"go.uber.org/zap"

	"github.com/example/leafscan/internal/config"
	"github.com/example/leafscan/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "leafscan",
		Short:         "Plant leaf disease scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), predictCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, dotenv := config.Load()
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if !dotenv {
		logger.Debug("no .env file loaded")
	}
	return cfg, logger, nil
}

// runServer serves until the listener fails or a shutdown signal arrives,
// then lets in-flight scans finish for up to drainTimeout. A nil listener
// listens on server.Addr and nil signals subscribes to SIGINT and SIGTERM.
func runServer(server *http.Server, listener net.Listener, drainTimeout time.Duration, signals <-chan os.Signal, logger *zap.Logger) error {
	if listener == nil {
		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", server.Addr, err)
		}
		listener = ln
	}
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()
	logger.Info("leafscan listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig, ok := <-signals:
		if ok {
			logger.Info("draining in-flight scans", zap.String("signal", sig.String()), zap.Duration("timeout", drainTimeout))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
