// Package metrics exposes Prometheus collectors for render calls, generation
// outcomes and bot commands, plus an HTTP endpoint to scrape them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// RenderRequests counts render service calls by operation and HTTP status
	// ("error" when no response was received).
	RenderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_requests_total",
			Help: "Total number of render service requests.",
		},
		[]string{"op", "status"},
	)

	// Generations counts finished generation attempts by outcome.
	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_generations_total",
			Help: "Generation attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// PollAttempts observes how many status polls a generation needed.
	PollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_poll_attempts",
			Help:    "Status polls issued per polling loop.",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		},
	)

	// Commands counts bot commands by name.
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Bot commands received.",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(RenderRequests, Generations, PollAttempts, Commands)
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
