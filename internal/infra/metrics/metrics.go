package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "stockwatch"

// Prometheus implements usecase.Metrics on its own registry.
type Prometheus struct {
	Registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	cycles           *prometheus.CounterVec
	triggered        prometheus.Counter
	deliveries       *prometheus.CounterVec
}

func New() *Prometheus {
	p := &Prometheus{
		Registry: prometheus.NewRegistry(),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Price provider requests by result (ok or failure kind).",
			},
			[]string{"provider", "result"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Duration of evaluation cycles.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "runs_total",
				Help:      "Evaluation cycles by outcome.",
			},
			[]string{"success"},
		),
		triggered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "triggered_total",
				Help:      "Alerts that moved from armed to suppressed.",
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "deliveries_total",
				Help:      "Alert deliveries by outcome.",
			},
			[]string{"success"},
		),
	}

	p.Registry.MustRegister(
		p.providerRequests,
		p.cycleDuration,
		p.cycles,
		p.triggered,
		p.deliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ProviderRequest(provider, result string) {
	p.providerRequests.WithLabelValues(provider, result).Inc()
}

func (p *Prometheus) CycleFinished(duration time.Duration, err error) {
	p.cycleDuration.Observe(duration.Seconds())
	p.cycles.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

func (p *Prometheus) AlertsTriggered(n int) {
	p.triggered.Add(float64(n))
}

func (p *Prometheus) Delivery(ok bool) {
	p.deliveries.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
