package rest

import (
	"net/http"
	"strconv"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/logging"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SpotifyToken handles GET /api/spotify-token. It hands the browser a
// catalog token for preview playback.
func (h *Handler) SpotifyToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get Spotify token"})
		return
	}

	tok, err := h.tokens.FetchToken(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", domain.KindOf(err).String()).Msg("failed to fetch spotify token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get Spotify token"})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	})
}

// RecentAnalyses handles GET /api/analyses?limit=N
func (h *Handler) RecentAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.analyses == nil {
		writeErrorWithCode(w, http.StatusNotImplemented, "Analysis log is disabled.", "STORAGE_DISABLED")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.analyses.Recent(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to read analysis log")
		writeError(w, http.StatusInternalServerError, domain.MessageForStatus(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: records})
}
