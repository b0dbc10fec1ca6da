// Package metrics exports live-channel metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/service"
)

const namespace = "im_live_notify"

// Interface guard
var _ service.Recorder = (*Recorder)(nil)

var statuses = []model.ConnectionStatus{
	model.StatusIdle,
	model.StatusConnecting,
	model.StatusConnected,
	model.StatusReconnecting,
	model.StatusDisconnected,
	model.StatusError,
}

type Recorder struct {
	registry *prometheus.Registry

	status     *prometheus.GaugeVec
	retries    prometheus.Counter
	retryDelay prometheus.Histogram
	delivered  prometheus.Counter
	duplicates prometheus.Counter
	stale      prometheus.Counter
	unread     prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current connection status, 0 otherwise.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts.",
		}),
		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnection attempts.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Notifications inserted into the local cache from the live channel.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_duplicate_total",
			Help:      "Live deliveries dropped because the id was already cached.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_episodes_total",
			Help:      "Heartbeat timeouts that marked the channel stale.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_notifications",
			Help:      "Unread notifications in the local cache.",
		}),
	}

	r.registry.MustRegister(
		r.status, r.retries, r.retryDelay, r.delivered, r.duplicates, r.stale, r.unread,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Status(s model.ConnectionStatus) {
	for _, st := range statuses {
		v := 0.0
		if st == s {
			v = 1
		}
		r.status.WithLabelValues(st.String()).Set(v)
	}
}

func (r *Recorder) RetryScheduled(_ int, delay time.Duration) {
	r.retries.Inc()
	r.retryDelay.Observe(delay.Seconds())
}

func (r *Recorder) Delivered()   { r.delivered.Inc() }
func (r *Recorder) Duplicate()   { r.duplicates.Inc() }
func (r *Recorder) Stale()       { r.stale.Inc() }
func (r *Recorder) Unread(n int) { r.unread.Set(float64(n)) }

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("[METRICS] serving", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
