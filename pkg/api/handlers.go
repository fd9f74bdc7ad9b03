package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethpandaops/ctesttrace/pkg/convert"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConvert turns a posted log body into a trace. The orphans query
// parameter ("fail" or "drop") overrides the server policy.
func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	policy := s.policy

	switch r.URL.Query().Get("orphans") {
	case "":
	case trace.OrphanFail.String():
		policy = trace.OrphanFail
	case trace.OrphanDrop.String():
		policy = trace.OrphanDrop
	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{`orphans must be "fail" or "drop"`})

		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxBody)

	res, err := convert.Convert(r.Context(), body, convert.Options{Policy: policy})
	if err != nil {
		var (
			orphan  *trace.OrphanedFinishError
			tooBig  *http.MaxBytesError
			status  = http.StatusBadRequest
			message = err.Error()
		)

		switch {
		case errors.As(err, &orphan):
			status = http.StatusUnprocessableEntity
		case errors.As(err, &tooBig):
			status = http.StatusRequestEntityTooLarge
			message = "log exceeds maximum body size"
		}

		writeJSON(w, status, errorResponse{message})

		return
	}

	data, err := res.Marshal()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	s.log.WithField("tests", len(res.Records)).
		WithField("lanes", res.Stats.Lanes).
		Debug("Converted posted log")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleListTraces lists the trace files available locally.
func (s *server) handleListTraces(w http.ResponseWriter, _ *http.Request) {
	if s.local == nil {
		writeJSON(w, http.StatusOK, []string{})

		return
	}

	names, err := s.local.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing traces"})

		return
	}

	writeJSON(w, http.StatusOK, names)
}

// handleGetTrace serves a stored trace, trying the local directory first
// and then the remote fetcher.
func (s *server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	if !isAllowedPath(name) {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid trace path"})

		return
	}

	if s.local != nil {
		if err := s.local.ServeFile(w, r, name); err == nil {
			return
		}
	}

	if s.fetcher != nil {
		data, err := s.fetcher.GetTrace(r.Context(), name)
		if err != nil {
			s.log.WithError(err).WithField("trace", name).
				Warn("Failed to fetch remote trace")
			writeJSON(w, http.StatusBadGateway, errorResponse{"fetching trace"})

			return
		}

		if data != nil {
			contentType := "application/octet-stream"
			if strings.HasSuffix(name, ".json") {
				contentType = "application/json"
			}

			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(http.StatusOK)

			if r.Method != http.MethodHead {
				_, _ = w.Write(data)
			}

			return
		}
	}

	writeJSON(w, http.StatusNotFound, errorResponse{"trace not found"})
}
