package leaderboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// HTTPHandler exposes REST endpoints for leaderboard queries. Reads always
// come from the persisted snapshot, never from a live recompute.
type HTTPHandler struct {
	svc    *SnapshotService
	logger zerolog.Logger
}

// NewHTTPHandler constructs a leaderboard HTTP handler.
func NewHTTPHandler(svc *SnapshotService, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// HandleGet responds with the current snapshot for a game.
// Route: GET /v1/games/{access_code}/leaderboard?limit=20
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/games/")
	accessCode, ok := strings.CutSuffix(strings.TrimSuffix(path, "/"), "/leaderboard")
	if !ok || accessCode == "" || strings.Contains(accessCode, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	snap := h.svc.GetSnapshot(r.Context(), accessCode)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(snap) {
			snap = snap[:limit]
		}
	}
	if snap == nil {
		snap = Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		AccessCode string   `json:"accessCode"`
		Entries    Snapshot `json:"entries"`
	}{AccessCode: accessCode, Entries: snap}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write leaderboard response")
	}
}
