// Package server exposes experiment results over HTTP. The dataset is
// loaded from the configured source per request, labeled for the
// requested experiment and day, and run through the validity checks
// and the decision engine.
package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/expjudge/expjudge/internal/checks"
	"github.com/expjudge/expjudge/internal/pipeline"
	"github.com/expjudge/expjudge/internal/source"
)

// dayLayout is the wire format of the day query parameter. The hour is
// accepted and ignored; analysis granularity is the calendar date.
const dayLayout = "2006-01-02 15"

type Server struct {
	src       source.Source
	pipe      *pipeline.Pipeline
	params    checks.Params
	port      int
	sameDay   bool
	log       *zap.Logger
	router    *http.ServeMux
	startTime time.Time
}

func New(src source.Source, pipe *pipeline.Pipeline, params checks.Params, port int, sameDay bool, log *zap.Logger) *Server {
	srv := &Server{
		src:       src,
		pipe:      pipe,
		params:    params,
		port:      port,
		sameDay:   sameDay,
		log:       log,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /experiment/{id}/result", s.handleExperimentResult)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.router)
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}
