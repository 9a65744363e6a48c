package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	LocationAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_location_updates_accepted_total",
		Help: "Location samples accepted by the tracking rate limiter",
	})
	LocationDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_location_updates_dropped_total",
		Help: "Location samples dropped because they arrived inside the tracking interval",
	})
	LocationForwardErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_location_forward_errors_total",
		Help: "Failures forwarding accepted samples, by forwarder",
	}, []string{"forwarder"})
	TrackingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_tracking_active",
		Help: "1 while a location watch is running",
	})
	TransportMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_transport_messages_total",
		Help: "Inbound transport messages delivered to listeners, by type",
	}, []string{"type"})
	TransportDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_transport_messages_dropped_total",
		Help: "Inbound transport messages dropped, by reason",
	}, []string{"reason"})
	TransportReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_transport_reconnect_attempts_total",
		Help: "Reconnect attempts scheduled by the transport client",
	})
	TransportOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_transport_open",
		Help: "1 while the transport connection is open",
	})
	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_backend_request_seconds",
		Help:    "Latency of managed backend calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// ObserveBackend records the latency of one backend operation.
func ObserveBackend(op string, start time.Time) {
	BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// NewMetricsServer exposes /metrics and /healthz on addr.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// MetricsService runs the metrics server under the service registry.
type MetricsService struct {
	server *http.Server
	logger zerolog.Logger
}

func NewMetricsService(addr string, logger zerolog.Logger) *MetricsService {
	return &MetricsService{server: NewMetricsServer(addr), logger: logger}
}

func (m *MetricsService) Start() error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error().Err(err).Str("addr", m.server.Addr).Msg("Metrics server stopped")
		}
	}()
	m.logger.Info().Str("addr", m.server.Addr).Msg("Metrics server started")
	return nil
}

func (m *MetricsService) Stop() error {
	return m.server.Close()
}
