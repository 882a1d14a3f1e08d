package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/delegent/internal/agent"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/memory"
)

const maxQueryBody = 64 << 10

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Uptime  string `json:"uptime"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is returned by POST /v1/query.
type QueryResponse struct {
	Answer string `json:"answer"`
	Steps  int    `json:"steps"`
}

// HistoryResponse is returned by GET /v1/history.
type HistoryResponse struct {
	Turns []memory.Turn `json:"turns"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/ws", s.handleWS)
}

// withJSONFallback serves mux and rewrites the bodies of its own 404 and
// 405 replies as JSON. The mux still picks the status and the Allow header.
func withJSONFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		fw := &fallbackWriter{header: http.Header{}}
		h.ServeHTTP(fw, r)
		for k, v := range fw.header {
			if k == "Content-Type" || k == "X-Content-Type-Options" {
				continue
			}
			w.Header()[k] = v
		}
		switch fw.status {
		case 0, http.StatusNotFound:
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "not found",
				"path":  r.URL.Path,
			})
		default:
			writeError(w, fw.status, strings.ToLower(http.StatusText(fw.status)))
		}
	})
}

// fallbackWriter records the status and headers of a mux fallback reply
// and drops its plain-text body.
type fallbackWriter struct {
	header http.Header
	status int
}

func (f *fallbackWriter) Header() http.Header { return f.header }

func (f *fallbackWriter) WriteHeader(status int) {
	if f.status == 0 {
		f.status = status
	}
}

func (f *fallbackWriter) Write(b []byte) (int, error) {
	if f.status == 0 {
		f.status = http.StatusOK
	}
	return len(b), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Backend: s.backend,
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.answer(r.Context(), query)
	if err != nil {
		s.log.Warn().Str("requestId", RequestID(r.Context())).Err(err).Msg("query failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: res.Answer, Steps: len(res.Steps)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if s.memory == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Turns: []memory.Turn{}})
		return
	}

	turns, err := s.memory.Turns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if limit > 0 {
		turns = memory.Last(turns, limit)
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Turns: turns})
}

// statusFor maps a run error to an HTTP status.
func statusFor(err error) int {
	switch {
	case llm.IsModelError(err):
		return http.StatusBadGateway
	case errors.Is(err, agent.ErrIterationLimit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
