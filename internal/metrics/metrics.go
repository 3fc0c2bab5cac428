package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracking metrics
	ReconcileTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_reconcile_ticks_total",
			Help: "Usage reconciliation ticks by outcome",
		},
		[]string{"outcome"},
	)

	RecordsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_usage_records_written_total",
			Help: "Daily usage records upserted by the reconciler",
		},
	)

	RecordsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_usage_records_pruned_total",
			Help: "Daily usage records removed by retention",
		},
	)

	// Enforcement metrics
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_enforcement_decisions_total",
			Help: "Enforcement decisions by action",
		},
		[]string{"action"},
	)

	EnforcementErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_enforcement_errors_total",
			Help: "Enforcement ticks skipped because of an error",
		},
	)

	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screentime_tick_duration_seconds",
			Help:    "Duration of one loop tick in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"loop"},
	)

	// Lifecycle metrics
	LoopRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "screentime_loop_running",
			Help: "Whether a loop is running (1) or stopped (0)",
		},
		[]string{"loop"},
	)

	LoopIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "screentime_loop_idle",
			Help: "Whether a running loop is idle because usage access was denied",
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(
		ReconcileTicks,
		RecordsWritten,
		RecordsPruned,
		Decisions,
		EnforcementErrors,
		TickDuration,
		LoopRunning,
		LoopIdle,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // set under systemd socket activation
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
