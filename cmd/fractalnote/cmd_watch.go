package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"fractalnote/internal/service"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream store changes as JSON lines until interrupted",
		Long: `Print one JSON object per change of the store's version token, including
changes made by other processes. With --metrics-listen the process also
serves Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("debounce") {
				debounce = a.cfg.Watch.Debounce.Duration()
			}
			if !cmd.Flags().Changed("metrics-listen") {
				listen = a.cfg.Metrics.Listen
			}

			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				if listen != "" {
					stop := a.serveMetrics(listen)
					defer stop()
				}

				events := make(chan service.Event, 100)
				notes.Events().Subscribe(events)
				defer notes.Events().Unsubscribe(events)

				errc := make(chan error, 1)
				go func() { errc <- notes.Watch(ctx, debounce) }()

				a.log.Info().Dur("debounce", debounce).Msg("watching store")
				enc := json.NewEncoder(a.out)
				for {
					select {
					case ev := <-events:
						if err := enc.Encode(ev); err != nil {
							return err
						}
					case err := <-errc:
						return err
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "coalesce bursts of writes (default from config)")
	cmd.Flags().StringVar(&listen, "metrics-listen", "", "serve Prometheus metrics on this address")
	return cmd
}

// serveMetrics exposes the process registry until the returned func is called
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.log.Info().Str("addr", addr).Msg("serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(a.err, "metrics server shutdown: %v\n", err)
		}
	}
}
