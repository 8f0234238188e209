package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/session"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type Server struct {
	session  *session.Session
	settings runtimeSettingsStore
	hub      *Hub
	metrics  http.Handler
	now      func() time.Time

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

// WithMetrics serves the registry on /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer builds the API around sess. It takes over the history manager's
// update callbacks to feed the event stream.
func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session: sess,
		hub:     NewHub(),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	manager := sess.History()
	manager.OnHistoryUpdate(func(entries []history.Entry) {
		s.hub.Publish(Event{Type: EventHistory, Data: entries})
	})
	manager.OnLiveBufferUpdate(func(buf history.LiveBuffer) {
		s.hub.Publish(Event{Type: EventLive, Data: newLiveResponse(buf)})
	})

	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/captions", s.handleCaptions)
	s.mux.HandleFunc("/ws/captions", s.handleCaptionSocket)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/history/finalize", s.handleFinalize)
	s.mux.HandleFunc("/api/history/export", s.handleExport)
	s.mux.HandleFunc("/api/live", s.handleLive)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/stream", s.handleStream)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}
