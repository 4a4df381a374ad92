package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"notlarim/internal/msggen"
	"notlarim/internal/store"
	"notlarim/pkg/logx"
)

// userIDHeader carries the authenticated user, set by the proxy that
// terminates app authentication in front of this service.
const userIDHeader = "X-User-ID"

type generateRequest struct {
	EventID        string `json:"eventId"`
	RuleSetID      string `json:"ruleSetId"`
	AdditionalNote string `json:"additionalNote,omitempty"`
	MessageType    string `json:"messageType,omitempty"` // kısa | orta | uzun
}

type generateResponse struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type sheetsResponse struct {
	Success bool               `json:"success"`
	JobID   string             `json:"jobId"`
	Data    map[string][]sheet `json:"data"`
}

type sheet = map[string]string

type driveResponse struct {
	Success bool     `json:"success"`
	JobID   string   `json:"jobId"`
	Files   []string `json:"files"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.EventID == "" || req.RuleSetID == "" {
		writeError(w, http.StatusBadRequest, "eventId and ruleSetId are required")
		return
	}

	res, err := s.generator.Generate(r.Context(), msggen.Request{
		UserID:         userID,
		EventID:        req.EventID,
		RuleSetID:      req.RuleSetID,
		AdditionalNote: req.AdditionalNote,
		MessageType:    req.MessageType,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Etkinlik veya kural seti bulunamadı.")
		return
	case errors.Is(err, msggen.ErrNoAPIKey):
		writeError(w, http.StatusPreconditionFailed, "OpenAI API anahtarı yapılandırılmamış.")
		return
	case err != nil:
		s.log.Warn("generate failed", logx.String("user", userID), logx.Err(err))
		writeError(w, http.StatusBadGateway, "message generation failed")
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{MessageID: res.MessageID, Content: res.Content})
}

func (s *Service) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	res, err := s.exporter.ToSheets(r.Context(), userID)
	if err != nil {
		s.log.Warn("sheets export failed", logx.String("user", userID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	data := make(map[string][]sheet, len(res.Tabs))
	for name, rows := range res.Tabs {
		out := make([]sheet, len(rows))
		for i, row := range rows {
			out[i] = row
		}
		data[name] = out
	}
	writeJSON(w, http.StatusOK, sheetsResponse{Success: true, JobID: res.JobID, Data: data})
}

func (s *Service) handleExportDrive(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	res, err := s.exporter.ToDrive(r.Context(), userID)
	if err != nil {
		s.log.Warn("drive export failed", logx.String("user", userID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, driveResponse{Success: true, JobID: res.JobID, Files: res.Files})
}

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Giriş yapmanız gerekiyor.")
	}
	return userID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
