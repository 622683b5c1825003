package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"casa-relay/lib/logger"
	a "casa-relay/modules/aggregate"
	"casa-relay/modules/fees"
	"casa-relay/modules/relay"
	start_status "casa-relay/modules/start-status"

	"github.com/chebyrash/promise"
	"github.com/rs/cors"
)

// ===== constants =====

const (
	shutdownTimeout = 5 * time.Second
	// requestTimeout bounds one relay, measured from arrival. It is detached
	// from the client connection so a hang-up cannot abort a broadcast.
	requestTimeout = 2 * time.Minute
)

// ===== types =====

type Server struct {
	pipeline *relay.Pipeline
	fees     *fees.Metrics
	addr     string
	log      *slog.Logger

	server *http.Server
	bound  atomic.Pointer[string]
	status start_status.StartStatus
}

// ===== interface assertion =====

var _ a.Plugin = &Server{}
var _ start_status.Starter = &Server{}

// ===== implementing the a.Plugin interface =====

// New serves the relay on addr. feeMetrics may be nil when no fee chains are
// configured.
func New(pipeline *relay.Pipeline, feeMetrics *fees.Metrics, addr string, log *slog.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		fees:     feeMetrics,
		addr:     addr,
		log:      logger.Or(log, "api"),
		status:   start_status.New(),
	}
}

func (s *Server) Init() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /call", callHandler(s.pipeline, s.log))
	mux.HandleFunc("GET /health", healthHandler())
	mux.HandleFunc("GET /status", statusHandler(s.pipeline, s.fees))

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           corsAllowAll().Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler is the full routing stack, CORS included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Started implements start_status.Starter. It resolves once the listener
// is bound.
func (s *Server) Started() *promise.Promise[any] {
	return s.status.Started()
}

// Addr is the bound listen address once Started has resolved, the
// configured one before that.
func (s *Server) Addr() string {
	if b := s.bound.Load(); b != nil {
		return *b
	}
	return s.addr
}

func (s *Server) Start() *promise.Promise[any] {
	return promise.New(func(resolve func(any), reject func(error)) {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			s.status.TriggerStartFailure(err)
			reject(err)
			return
		}
		bound := ln.Addr().String()
		s.bound.Store(&bound)
		s.log.Info("relay listening", "addr", bound)
		s.status.TriggerStart()

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			reject(err)
			return
		}
		resolve(nil)
	})
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.log.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.log.Info("http server shut down")
	return nil
}

func corsAllowAll() *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
}
