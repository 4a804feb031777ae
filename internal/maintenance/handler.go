package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"booking-api/internal/observability"
)

type lockoutCleaner interface {
	ClearExpiredLockouts(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// CleanupHandler is triggered by the platform scheduler. It stays hidden
// (404) unless a cron secret is configured.
type CleanupHandler struct {
	repo       lockoutCleaner
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(repo lockoutCleaner, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.repo.ClearExpiredLockouts(r.Context(), h.now().UTC(), h.batchSize)
	if err != nil {
		h.logger.Error("lockout_cleanup_failed", map[string]any{"error": err.Error()})
		observability.CaptureError("maintenance.cleanup", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("lockout_cleanup_completed", map[string]any{"cleared_lockouts": cleared})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"clearedLockouts": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
