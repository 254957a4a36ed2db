// Package watchd runs the build pipeline on a cron schedule and exposes its
// health and metrics over HTTP, so an operator can run hibpguard as a
// long-lived service instead of a Task Scheduler entry.
package watchd

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rlabolle/hibppwdflt/pkg/build"
)

const (
	routeHealthz = "/healthz"
	routeMetrics = "/metrics"
)

// Builder is the subset of *build.Pipeline a Daemon drives on its
// schedule. Run returns the number of suffix entries written on success.
type Builder interface {
	Run(ctx context.Context) (uint32, error)
}

// metrics holds the Prometheus collectors registered against a private
// registry, mirroring the teacher's SetupPrometheusMetrics shape but
// registering collectors this package owns directly instead of exporting
// an OpenTelemetry meter provider.
type metrics struct {
	buildsTotal    *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	entriesWritten prometheus.Gauge
	lastBuildUnix  prometheus.Gauge
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hibpguard_builds_total",
			Help: "Number of completed build attempts, labeled by outcome.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hibpguard_build_duration_seconds",
			Help:    "Wall-clock duration of a build run.",
			Buckets: prometheus.DefBuckets,
		}),
		entriesWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hibpguard_entries_written",
			Help: "Total suffix entries in the most recently written CHDB.",
		}),
		lastBuildUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hibpguard_last_build_timestamp_seconds",
			Help: "Unix timestamp of the last successful build.",
		}),
	}

	reg.MustRegister(m.buildsTotal, m.buildDuration, m.entriesWritten, m.lastBuildUnix)

	return m
}

// Daemon schedules recurring builds and serves /healthz and /metrics.
type Daemon struct {
	builder Builder
	cron    *cron.Cron
	metrics *metrics
	router  *chi.Mux

	mu            sync.RWMutex
	lastBuildTime time.Time
	lastBuildErr  error
}

// New constructs a Daemon. schedule is an already-parsed cron.Schedule
// (any robfig/cron parser will do); loc may be nil for the local timezone.
func New(builder Builder, schedule cron.Schedule, loc *time.Location) *Daemon {
	var opts []cron.Option
	if loc != nil {
		opts = append(opts, cron.WithLocation(loc))
	}

	reg := prometheus.NewRegistry()

	d := &Daemon{
		builder: builder,
		cron:    cron.New(opts...),
		metrics: newMetrics(reg),
	}

	d.router = createRouter(d, reg)
	d.cron.Schedule(schedule, cron.FuncJob(d.runOnce))

	return d
}

// ServeHTTP implements http.Handler.
func (d *Daemon) ServeHTTP(w http.ResponseWriter, r *http.Request) { d.router.ServeHTTP(w, r) }

// Start starts the cron scheduler in its own goroutine and runs one build
// immediately, matching the teacher's GetHealthChecker().Trigger() pattern
// of not waiting for the first scheduled tick before becoming useful.
func (d *Daemon) Start(ctx context.Context) {
	d.runOnceWithContext(ctx)
	d.cron.Start()
}

// Stop stops the scheduler without waiting; the returned context is done
// once any in-flight scheduled build has finished.
func (d *Daemon) Stop() context.Context { return d.cron.Stop() }

func (d *Daemon) runOnce() { d.runOnceWithContext(context.Background()) }

func (d *Daemon) runOnceWithContext(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("watchd: starting scheduled build")

	start := time.Now()
	entries, err := d.builder.Run(ctx)
	elapsed := time.Since(start)

	d.metrics.buildDuration.Observe(elapsed.Seconds())

	d.mu.Lock()
	d.lastBuildTime = start
	d.lastBuildErr = err
	d.mu.Unlock()

	if err != nil {
		d.metrics.buildsTotal.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("watchd: scheduled build failed")

		return
	}

	d.metrics.buildsTotal.WithLabelValues("success").Inc()
	d.metrics.lastBuildUnix.Set(float64(start.Unix()))
	d.metrics.entriesWritten.Set(float64(entries))
	logger.Info().Dur("elapsed", elapsed).Uint32("entries", entries).Msg("watchd: scheduled build complete")
}

func createRouter(d *Daemon, reg *prometheus.Registry) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get(routeHealthz, d.getHealthz)
	router.Handle(routeMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return router
}

func (d *Daemon) getHealthz(w http.ResponseWriter, _ *http.Request) {
	d.mu.RLock()
	last := d.lastBuildTime
	err := d.lastBuildErr
	d.mu.RUnlock()

	if last.IsZero() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no build has run yet")) //nolint:errcheck

		return
	}

	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("last build failed: " + err.Error())) //nolint:errcheck

		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("last build " + last.Format(time.RFC3339) + //nolint:errcheck
		", age " + time.Since(last).String()))
}

var _ Builder = (*build.Pipeline)(nil)
