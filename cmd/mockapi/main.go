package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/site-outages-etl/internal/config"
	"github.com/couchcryptid/site-outages-etl/internal/mockapi"
	"github.com/couchcryptid/site-outages-etl/internal/observability"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr      string
		failFirst int
	)

	cmd := &cobra.Command{
		Use:           "mockapi",
		Short:         "Serve a local copy of the outages API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg)

			srv, err := mockapi.NewServer(addr, mockapi.Config{APIKey: cfg.APIKey, FailFirst: failFirst}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				return fmt.Errorf("mock api: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("mock api shutdown: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", sharedcfg.EnvOrDefault("MOCK_API_ADDR", ":8081"), "listen address")
	cmd.Flags().IntVar(&failFirst, "fail-first", 0, "answer the first N API requests with 503")
	return cmd
}
