package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/logging"
)

// apiResponse is the envelope of every /api/analyze reply.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorWithCode(w, status, message, codeForStatus(status))
}

func writeErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, apiResponse{Success: false, Error: message, Code: code})
}

// writeDomainError reports err with the message keyed by its status. Wrapped
// details stay in the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Str("kind", domain.KindOf(err).String()).Msg("request failed")

	message := domain.MessageForStatus(status)
	if domain.StatusOf(err) == status {
		message = domain.PublicMessage(err)
	}
	writeError(w, status, message)
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded) && domain.KindOf(err) == domain.KindInternal:
		return http.StatusGatewayTimeout
	default:
		return domain.StatusOf(err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusConflict:
		return "SUPERSEDED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnsupportedMediaType:
		return "UNSUPPORTED_MEDIA_TYPE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusBadGateway:
		return "UPSTREAM_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "UPSTREAM_TIMEOUT"
	default:
		return "INTERNAL"
	}
}
