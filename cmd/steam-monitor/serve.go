package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/steam-monitor/pkg/logging"
	"github.com/Sternrassler/steam-monitor/pkg/refresh"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the auto refresh timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, serve)
		},
	}

	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Bool("auto", true, "refresh all apps on refresh.interval")
	_ = opts.viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = opts.viper.BindPFlag("refresh.auto", cmd.Flags().Lookup("auto"))

	return cmd
}

func serve(ctx context.Context, a *app) error {
	logger := logging.NewLogger("server")

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           newServer(ctx, a).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	autoDone := make(chan struct{})
	if a.cfg.Refresh.Auto {
		auto := refresh.NewAutoRefresher(a.orchestrator, a.cfg.Refresh.Interval)
		go func() {
			defer close(autoDone)
			auto.Run(ctx)
		}()
	} else {
		close(autoDone)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("apps", a.set.Len()).
			Bool("auto_refresh", a.cfg.Refresh.Auto).
			Msg("Starting steam-monitor server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Sessions see the cancelled context and stop after their current round.
	<-autoDone
	a.orchestrator.Wait()
	return nil
}
