package gameplay

import (
	"net/http"

	"github.com/quizforge/gamecore/internal/server"
	httperrors "github.com/quizforge/gamecore/pkg/http/errors"
)

// HandleWebSocket upgrades the HTTP connection to a WebSocket. Authentication
// happens upstream (gateway); the authenticated identity arrives in headers.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Missing user identity")
		return
	}
	username := r.Header.Get("X-Username")
	if username == "" {
		username = r.URL.Query().Get("username")
	}
	avatarEmoji := r.Header.Get("X-Avatar-Emoji")

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, userID, username, avatarEmoji)
}
