package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric a triage run exposes, on its own
// dedicated registry rather than the global default (so embedding this
// module in another process never collides with its metrics). Grounded on
// octoreflex/internal/observability.Metrics's shape: one struct field per
// metric, a constructor that builds and registers them all, and a
// ServeMetrics that mounts /metrics and /healthz on a dedicated mux.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal          prometheus.Counter
	CandidatesObserved  prometheus.Counter
	DecisionsTotal      *prometheus.CounterVec // labels: class, action
	PreCheckBlocksTotal *prometheus.CounterVec // labels: check
	ActionsAppliedTotal *prometheus.CounterVec // labels: action
	ActionsBlockedTotal *prometheus.CounterVec // labels: action
	FDRRejectionsTotal  prometheus.Counter
	AuditEntriesTotal   prometheus.Counter
	ScanDuration        prometheus.Histogram

	startTime time.Time
}

// NewMetrics constructs and registers every PT metric on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	const ns = "process_triage"

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scan", Name: "total",
			Help: "Total number of scan ticks completed.",
		}),
		CandidatesObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scan", Name: "candidates_observed_total",
			Help: "Total number of process candidates observed across all scans.",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "decision", Name: "total",
			Help: "Total decisions made, by predicted class and chosen action.",
		}, []string{"class", "action"}),
		PreCheckBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "precheck", Name: "blocks_total",
			Help: "Total pre-check failures, by check name.",
		}, []string{"check"}),
		ActionsAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "action", Name: "applied_total",
			Help: "Total actions carried out, by action kind.",
		}, []string{"action"}),
		ActionsBlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "action", Name: "blocked_total",
			Help: "Total actions blocked by a pre-check or guardrail, by action kind.",
		}, []string{"action"}),
		FDRRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "decision", Name: "fdr_rejections_total",
			Help: "Total candidates rejected by multiple-testing control before reaching the planner.",
		}),
		AuditEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "audit", Name: "entries_total",
			Help: "Total audit log entries written.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "scan", Name: "duration_seconds",
			Help:    "Wall-clock duration of a single scan tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.CandidatesObserved,
		m.DecisionsTotal,
		m.PreCheckBlocksTotal,
		m.ActionsAppliedTotal,
		m.ActionsBlockedTotal,
		m.FDRRejectionsTotal,
		m.AuditEntriesTotal,
		m.ScanDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP server on addr, serving GET
// /metrics and GET /healthz. Blocks until ctx is cancelled or the server
// fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("config: metrics server on %s: %w", addr, err)
	}
	return nil
}

// Registry exposes the underlying registry for tests that want to scrape
// it directly without starting an HTTP server.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
