package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/logging"
	"tally/internal/session"
)

const namespace = "tally"

var engineStates = []string{"idle", "processing", "paused", "completed", "stopped"}

// Metrics holds the ingestion collectors.
type Metrics struct {
	registry *prometheus.Registry

	bytesRead    prometheus.Counter
	chunks       prometheus.Counter
	records      prometheus.Counter
	saves        *prometheus.CounterVec
	saveFailures *prometheus.CounterVec
	progress     prometheus.Gauge
	state        *prometheus.GaugeVec
	balance      *prometheus.GaugeVec
	balanceCount *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Bytes read from ledger files.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_total",
			Help: "Chunks processed.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_total",
			Help: "Records folded into balances.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_saves_total",
			Help: "Checkpoints persisted, by kind.",
		}, []string{"kind"}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_failures_total",
			Help: "Checkpoint writes that failed, by kind.",
		}, []string{"kind"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "progress_percent",
			Help: "Completion of the current run.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "engine_state",
			Help: "1 for the current engine state, 0 otherwise.",
		}, []string{"state"}),
		balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_balance_total",
			Help: "Accumulated total per currency in the session ledger.",
		}, []string{"currency"}),
		balanceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_balance_records",
			Help: "Records folded per currency in the session ledger.",
		}, []string{"currency"}),
	}
	m.registry.MustRegister(m.bytesRead, m.chunks, m.records, m.saves, m.saveFailures, m.progress, m.state,
		m.balance, m.balanceCount)
	m.StateChanged("idle")
	return m
}

func (m *Metrics) ChunkProcessed(bytes int) {
	m.chunks.Inc()
	m.bytesRead.Add(float64(bytes))
}

func (m *Metrics) RecordsFolded(n int) { m.records.Add(float64(n)) }

func (m *Metrics) Progress(percent float64) { m.progress.Set(percent) }

func (m *Metrics) CheckpointSaved(kind string) { m.saves.WithLabelValues(kind).Inc() }

func (m *Metrics) CheckpointFailed(kind string) { m.saveFailures.WithLabelValues(kind).Inc() }

// StateChanged marks state as the only active engine state.
func (m *Metrics) StateChanged(state string) {
	for _, s := range engineStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// ObserveSession mirrors the session ledger balances. Currencies missing from
// st are dropped so a cleared ledger reads empty.
func (m *Metrics) ObserveSession(st session.State) {
	m.balance.Reset()
	m.balanceCount.Reset()
	for _, b := range st.Balances {
		m.balance.WithLabelValues(b.Currency).Set(b.Total.InexactFloat64())
		m.balanceCount.WithLabelValues(b.Currency).Set(float64(b.Count))
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server exposes /metrics on a TCP address.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
	done     chan struct{}
}

// Listen binds addr and prepares a server for m.
func Listen(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		done:     make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the HTTP server in the background.
func (s *Server) Serve() {
	s.logger.Info("metrics listening", logging.String("addr", s.Addr()))
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
}

// Close shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
