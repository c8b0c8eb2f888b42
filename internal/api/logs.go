package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gpio-remote/internal/audit"
)

// maxListLimit caps GET /log?limit=N.
const maxListLimit = 1000

// logRequest is the POST /log body.
type logRequest struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	User    string `json:"user"`
}

// logInserted is the POST /log success body.
type logInserted struct {
	Message string       `json:"message"`
	Data    audit.Record `json:"data"`
}

// handleInsertLog stores one audit record.
func (s *Server) handleInsertLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidBody)
		return
	}

	rec, err := s.logs.Insert(r.Context(), audit.Record{
		Topic:   req.Topic,
		Message: req.Message,
		User:    req.User,
	})
	switch {
	case errors.Is(err, audit.ErrMissingFields):
		writeBadRequest(w, msgMissingFields)
		return
	case err != nil:
		s.logger.Error("inserting log failed", "error", err)
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, logInserted{Message: "Log inserted", Data: rec})
}

// handleListLogs returns records newest-first. An empty store yields [].
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.logs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing logs failed", "error", err)
		writeInternalError(w, err.Error())
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
