package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/cinema-bridge/internal/journal"
	"github.com/mattjoyce/cinema-bridge/internal/outcome"
	"github.com/mattjoyce/cinema-bridge/internal/protocol"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Channel:        s.config.Channel,
		Method:         s.config.Method,
		JournalEnabled: s.journal != nil,
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCall handles POST /channels/{channel}.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || name != s.config.Channel {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	call, err := protocol.DecodeCall(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "call body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := s.handler.HandleCall(r.Context(), *call)
	respondJSON(w, StatusFor(reply), reply)
}

// handleDispatches handles GET /dispatches?limit=N.
func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "journal not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list dispatches", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, DispatchesResponse{Dispatches: entries, Count: len(entries)})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config))
}

// StatusFor maps a reply onto an HTTP status code.
func StatusFor(reply protocol.Reply) int {
	switch reply.Status {
	case protocol.StatusOK:
		return http.StatusOK
	case protocol.StatusNotImplemented:
		return http.StatusNotImplemented
	}
	if reply.Error == nil {
		return http.StatusInternalServerError
	}

	switch kind := outcome.Kind(reply.Error.Code); {
	case kind.Validation():
		return http.StatusUnprocessableEntity
	case kind == outcome.KindDispatch, kind == outcome.KindExec:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
