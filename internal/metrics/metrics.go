// ABOUTME: Prometheus counters for signals, refreshes, and chat dispatches
// ABOUTME: Serves /metrics from its own registry when enabled in config

package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// SignalsPublished counts bus signals by topic.
	SignalsPublished = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventbot",
		Name:      "signals_published_total",
		Help:      "Lifecycle signals published on the bus, by topic.",
	}, []string{"topic"})

	// RefreshesStarted counts scoreboard refresh passes by trigger kind.
	RefreshesStarted = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventbot",
		Name:      "refreshes_total",
		Help:      "Scoreboard refresh passes started, by forced flag.",
	}, []string{"forced"})

	// StatFetchFailures counts per-account hiscores lookup failures.
	StatFetchFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "eventbot",
		Name:      "stat_fetch_failures_total",
		Help:      "Hiscores lookups that resolved to no result.",
	})

	// MessagesSent counts chat messages sent, including chunks.
	MessagesSent = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "eventbot",
		Name:      "messages_sent_total",
		Help:      "Chat messages sent to the platform, chunks included.",
	})

	// ForcedRefreshesDropped counts forced refreshes dropped by the throttle.
	ForcedRefreshesDropped = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "eventbot",
		Name:      "forced_refreshes_dropped_total",
		Help:      "Forced refresh requests dropped inside the cool-down window.",
	})
)

// Registry returns the bot's metrics registry.
func Registry() *prometheus.Registry {
	return registry
}

// Serve runs an HTTP listener exposing the registry at the given path until
// ctx is cancelled. Errors are logged, not returned; metrics are best-effort.
func Serve(ctx context.Context, addr, path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics listener failed", "error", err)
	}
}
