package server

import (
	"net/http"
	"strings"
	"time"

	"littlefidan/internal/entitlement"
)

type downloadResponse struct {
	Granted   bool               `json:"granted"`
	Reason    entitlement.Reason `json:"reason,omitempty"`
	Remaining int                `json:"remaining"`
	ExpiresAt time.Time          `json:"expiresAt,omitzero"`
	URL       string             `json:"url,omitempty"`
	FileName  string             `json:"fileName,omitempty"`
}

// handleDownload serves GET /api/downloads/{fileID} and
// GET /api/downloads/{fileID}/status. Authentication is optional; anonymous
// callers reach free and preview files only.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
	fileID, sub, _ := strings.Cut(rest, "/")
	if fileID == "" || (sub != "" && sub != "status") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	userID := ""
	if user, ok := s.authorize(r); ok {
		userID = user.ID
	}

	if sub == "status" {
		decision, err := s.app.CheckDownload(r.Context(), userID, fileID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, downloadResponse{
			Granted:   decision.Granted,
			Reason:    decision.Reason,
			Remaining: decision.Remaining,
			ExpiresAt: decision.ExpiresAt,
		})
		return
	}

	if !s.allowRate(w, r, s.apiLimiter, "too many download requests") {
		return
	}
	result, err := s.app.Download(r.Context(), userID, fileID)
	if err != nil {
		s.audit(r, "api.download", "fail", "file_id", fileID, "reason", err.Error())
		s.writeAppError(w, err)
		return
	}
	decision := result.Decision
	if !decision.Granted {
		s.audit(r, "api.download", "denied", "file_id", fileID, "user_id", userID, "reason", string(decision.Reason))
		writeJSON(w, denialStatus(decision.Reason), downloadResponse{
			Reason:    decision.Reason,
			Remaining: decision.Remaining,
			ExpiresAt: decision.ExpiresAt,
		})
		return
	}
	s.audit(r, "api.download", "success", "file_id", fileID, "user_id", userID)
	writeJSON(w, http.StatusOK, downloadResponse{
		Granted:   true,
		Remaining: decision.Remaining,
		ExpiresAt: decision.ExpiresAt,
		URL:       result.URL,
		FileName:  result.File.Name,
	})
}

func denialStatus(reason entitlement.Reason) int {
	switch reason {
	case entitlement.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case entitlement.ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}
