package metrics

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saworbit/pathkeeper/pkg/shortpath"
)

const namespace = "pathkeeper"

var (
	// Registry is a dedicated Prometheus registry for all pathkeeper metrics.
	Registry = prometheus.NewRegistry()

	// ExpandTotal counts expansions by the entry gate branch that handled them.
	ExpandTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expand_total",
			Help:      "Total number of path expansions",
		},
		[]string{"path"}, // platform_noop | fast_path | walked
	)

	// ExpandDuration measures whole-path expansion latency.
	ExpandDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expand_duration_ms",
			Help:      "Duration of path expansions in milliseconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"path"},
	)

	// ComponentTotal counts per-component outcomes.
	ComponentTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_total",
			Help:      "Path components handled, by outcome",
		},
		[]string{"outcome"}, // skipped | matched | no_match | no_identity | list_failed
	)

	// JournalEventsTotal counts filesystem events journaled by the recorder.
	JournalEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_events_total",
			Help:      "Filesystem events written to the journal",
		},
		[]string{"op"},
	)

	// FilesTracked reports the number of distinct canonical paths recorded.
	FilesTracked = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_tracked_total",
			Help:      "Number of distinct canonical paths recorded",
		},
	)

	// StoreSavedBytesTotal accumulates bytes not written thanks to dedup and compression.
	StoreSavedBytesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_saved_bytes_total",
			Help:      "Cumulative bytes saved by content addressing and compression",
		},
	)

	// AgentInfo exposes static information about the running binary.
	AgentInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_info",
			Help:      "Static information about the running binary",
		},
		[]string{"os", "arch", "version", "short_names"},
	)

	// Up is a liveness gauge.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the process is running and healthy",
		},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// SetAgentInfo publishes a single info metric for the running binary.
func SetAgentInfo(version string, shortNames bool) {
	if version == "" {
		version = "dev"
	}
	sn := "false"
	if shortNames {
		sn = "true"
	}
	AgentInfo.WithLabelValues(runtime.GOOS, runtime.GOARCH, version, sn).Set(1)
}

// ObserveExpand records a finished expansion.
func ObserveExpand(start time.Time, route string) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	ExpandDuration.WithLabelValues(route).Observe(elapsed)
	ExpandTotal.WithLabelValues(route).Inc()
}

// ObserveComponent counts a component outcome.
func ObserveComponent(outcome string) {
	ComponentTotal.WithLabelValues(outcome).Inc()
}

// ObserveJournalEvent counts a journaled filesystem event.
func ObserveJournalEvent(op string) {
	if op == "" {
		op = "write"
	}
	JournalEventsTotal.WithLabelValues(op).Inc()
}

// ObserveStoreSavings adds the difference between the original size and the
// bytes actually stored.
func ObserveStoreSavings(originalBytes, storedBytes int64) {
	if originalBytes <= 0 || storedBytes < 0 || storedBytes >= originalBytes {
		return
	}
	StoreSavedBytesTotal.Add(float64(originalBytes - storedBytes))
}

// SetFilesTracked reports the number of tracked canonical paths.
func SetFilesTracked(count int) {
	if count < 0 {
		count = 0
	}
	FilesTracked.Set(float64(count))
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// ExpandObserver feeds shortpath outcomes into the registry.
type ExpandObserver struct{}

func (ExpandObserver) ObserveComponent(o shortpath.Outcome) {
	ObserveComponent(o.String())
}

func (ExpandObserver) ObserveExpand(route shortpath.Route, start time.Time) {
	ObserveExpand(start, route.String())
}

// Serve starts the /metrics HTTP endpoint on addr and stops it when ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("prometheus endpoint listening", zap.String("component", "metrics"), zap.String("addr", addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
