package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/masking"
	"github.com/raaihank/pii-masker/internal/privacy"
	"github.com/raaihank/pii-masker/internal/websocket"
)

// maxRecordsPerRequest bounds the size of a /v1/records batch
const maxRecordsPerRequest = 1000

type maskValueRequest struct {
	Value *string `json:"value"`
}

type maskRecordsRequest struct {
	Records []map[string]*string `json:"records"`
}

type maskRecordsResponse struct {
	Results []privacy.RecordResult `json:"results"`
	Masked  int                    `json:"masked"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleMaskValue masks a single value of the kind named in the path
func (s *Server) handleMaskValue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	kind, err := masking.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req maskValueRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.masker.ProcessValue(r.Context(), kind, req.Value)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	masked := 0
	if result.Masked {
		masked = 1
	}
	s.broadcastMask(r, []privacy.Finding{{Kind: kind, Masked: result.Masked}}, masked, start)

	writeJSON(w, http.StatusOK, result)
}

// handleMaskRecords masks the configured fields of each record
func (s *Server) handleMaskRecords(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req maskRecordsRequest
	if !s.decode(w, r, &req) {
		return
	}

	if len(req.Records) > maxRecordsPerRequest {
		writeError(w, http.StatusRequestEntityTooLarge, "too many records")
		return
	}

	resp := maskRecordsResponse{Results: make([]privacy.RecordResult, 0, len(req.Records))}
	var findings []privacy.Finding
	for _, record := range req.Records {
		result := s.masker.ProcessRecord(r.Context(), privacy.SourceAPI, record)
		resp.Results = append(resp.Results, result)
		resp.Masked += result.MaskedCount()
		findings = append(findings, result.Findings...)
	}

	if len(findings) > 0 {
		s.logger.WithRequestID(getRequestID(r.Context())).Info("Records masked",
			zap.Int("records", len(req.Records)),
			zap.Int("findings", len(findings)),
			zap.Int("masked", resp.Masked),
		)
		s.broadcastMask(r, findings, resp.Masked, start)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "pii-masker",
		"version":         Version,
		"privacy_enabled": s.masker.Enabled(),
		"enabled_rules":   s.masker.GetEnabledRules(),
		"field_rules":     len(s.masker.FieldRules()),
		"stats_backend":   s.config.Stats.Backend,
	})
}

// handleStats returns the masking counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.recorder.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to read stats", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) broadcastMask(r *http.Request, findings []privacy.Finding, masked int, start time.Time) {
	requestID := getRequestID(r.Context())
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeMask,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.MaskEvent{
			RequestID:    requestID,
			Path:         r.URL.Path,
			ClientIP:     websocket.ClientIP(r, s.config.Server.TrustProxy),
			Findings:     findings,
			Masked:       masked,
			ProcessingMS: float64(time.Since(start).Microseconds()) / 1000,
		},
	})
}

// decode reads a JSON body, writing an error response on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.logger.WithRequestID(getRequestID(r.Context())).Debug("Invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
