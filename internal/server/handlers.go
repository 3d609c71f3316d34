package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/expjudge/expjudge/internal/checks"
	"github.com/expjudge/expjudge/internal/decision"
	"github.com/expjudge/expjudge/internal/report"
)

type HealthResponse struct {
	Status        string `json:"status"`
	EventsCount   int    `json:"events_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	events, err := s.src.Events(r.Context())
	if err != nil {
		s.log.Error("loading events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		EventsCount:   len(events),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleExperimentResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rawDay := r.URL.Query().Get("day")
	if rawDay == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "day parameter required"})
		return
	}
	day, err := time.Parse(dayLayout, rawDay)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "day must be formatted as YYYY-MM-DD HH"})
		return
	}

	events, err := s.src.Events(r.Context())
	if err != nil {
		s.log.Error("loading events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	outcomes := s.pipe.LabelExperiment(events, id, day, s.sameDay)

	bundle := checks.Run(outcomes, s.params)
	result, err := decision.DetermineWinner(outcomes)
	if errors.Is(err, decision.ErrNoData) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Experiment not found"})
		return
	}
	if err != nil {
		s.log.Error("deciding winner", zap.String("experiment", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, report.Build(id, outcomes, bundle, result))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
