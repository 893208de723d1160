package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/domain"
)

// handleListApprovals отдает живые (не истекшие) заявки на апрув.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	pending := []*domain.PendingApproval{}
	err := s.store.ScanAll(r.Context(), func(app *domain.PendingApproval) bool {
		pending = append(pending, app)
		return true
	})
	if err != nil {
		s.logger.Error("list approvals failed", zap.Error(err))
		http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(pending),
		"approvals": pending,
	})
}
