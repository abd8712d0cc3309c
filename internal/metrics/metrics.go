// Package metrics exposes wardenbot's prometheus collectors and the
// optional /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_updates_total",
		Help: "Inbound updates by gate decision.",
	}, []string{"decision"})

	DiscoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_discoveries_total",
		Help: "First-contact registrations by result.",
	}, []string{"result"})

	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_resolutions_total",
		Help: "Operator decisions by action and result.",
	}, []string{"action", "result"})

	JobsExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_jobs_executed_total",
		Help: "Job executions by terminal result.",
	}, []string{"result"})

	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_scheduler_ticks_total",
		Help: "Scheduler ticks by outcome.",
	}, []string{"result"})
)

// Server serves /metrics and /healthz on a dedicated listener.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

func NewServer(addr string, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

// Start runs the listener in the background; listen failures are logged,
// not fatal (a broken metrics port should not take the bot down).
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("metrics listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
