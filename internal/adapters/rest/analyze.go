package rest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/services"
	"github.com/StarfishJ/SceneSound/internal/logging"
)

// analyzeJSONRequest is the JSON form of POST /api/analyze. Image is base64,
// optionally as a data URL.
type analyzeJSONRequest struct {
	Text      string `json:"text" validate:"required_without=Image"`
	Image     string `json:"image" validate:"required_without=Text"`
	ImageType string `json:"imageType" validate:"omitempty,startswith=image/"`
}

type analyzeData struct {
	RequestID string                    `json:"requestId"`
	Scenes    []domain.SceneObservation `json:"scenes"`
	Styles    []string                  `json:"styles"`
	Playlist  []domain.Track            `json:"playlist"`
	Degraded  bool                      `json:"degraded"`
}

// Analyze handles POST /api/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	const op = "rest.Analyze"

	// 1. Decode the request, multipart or JSON
	in, err := h.decodeAnalyze(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	// 2. Latest request wins within a session
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	var token string
	if sessionID != "" {
		ctx, token = h.sessions.Begin(ctx, sessionID)
		defer h.sessions.End(sessionID, token)
	}

	// 3. Call the service
	res, err := h.svc.Analyze(ctx, in)
	if sessionID != "" && !h.sessions.IsCurrent(sessionID, token) {
		logging.Ctx(r.Context()).Info().Str("session", sessionID).Msg("discarding superseded result")
		writeDomainError(w, r, fmt.Errorf("%s: session %s: %w", op, sessionID, domain.ErrSuperseded))
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	// 4. Return the response
	playlist := res.Playlist
	if playlist == nil {
		playlist = []domain.Track{}
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: analyzeData{
			RequestID: res.RequestID,
			Scenes:    res.Scenes,
			Styles:    domain.StyleNames(res.Styles),
			Playlist:  playlist,
			Degraded:  res.Degraded,
		},
	})
}

func (h *Handler) decodeAnalyze(r *http.Request) (services.AnalyzeInput, error) {
	const op = "rest.Analyze"

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		var err error
		if mediaType, _, err = mime.ParseMediaType(ct); err != nil {
			return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, fmt.Errorf("content type: %w", err))
		}
	}

	switch mediaType {
	case "multipart/form-data":
		return h.decodeMultipart(r)
	case "application/json", "":
		return h.decodeJSON(r)
	default:
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusUnsupportedMediaType, fmt.Errorf("content type %q", mediaType))
	}
}

func (h *Handler) decodeMultipart(r *http.Request) (services.AnalyzeInput, error) {
	const op = "rest.Analyze"

	if err := r.ParseMultipartForm(h.opts.MaxBodyBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.AnalyzeInput{}, domain.Validation(op, http.StatusRequestEntityTooLarge, err)
		}
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	in := services.AnalyzeInput{Text: r.FormValue("text")}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, fmt.Errorf("image field: %w", err))
	}
	defer file.Close()

	if err := checkDeclaredType(op, header.Header.Get("Content-Type")); err != nil {
		return services.AnalyzeInput{}, err
	}
	if in.Image, err = io.ReadAll(file); err != nil {
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, fmt.Errorf("read image: %w", err))
	}
	return in, nil
}

func (h *Handler) decodeJSON(r *http.Request) (services.AnalyzeInput, error) {
	const op = "rest.Analyze"

	var req analyzeJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.AnalyzeInput{}, domain.Validation(op, http.StatusRequestEntityTooLarge, err)
		}
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
	}
	if err := h.validate.Struct(req); err != nil {
		status := http.StatusBadRequest
		if failedOn(err, "ImageType") {
			status = http.StatusUnsupportedMediaType
		}
		return services.AnalyzeInput{}, domain.Validation(op, status, err)
	}

	in := services.AnalyzeInput{Text: req.Text}
	if req.Image == "" {
		return in, nil
	}

	image, declared, err := decodeImageField(req.Image)
	if err != nil {
		return services.AnalyzeInput{}, domain.Validation(op, http.StatusBadRequest, err)
	}
	if declared == "" {
		declared = req.ImageType
	}
	if err := checkDeclaredType(op, declared); err != nil {
		return services.AnalyzeInput{}, err
	}
	in.Image = image
	return in, nil
}

func failedOn(err error, field string) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == field {
			return true
		}
	}
	return false
}

// decodeImageField accepts plain base64 or a "data:image/png;base64,..." URL
// and returns the bytes and the media type declared by the URL, if any.
func decodeImageField(field string) ([]byte, string, error) {
	field = strings.TrimSpace(field)
	declared := ""
	if rest, ok := strings.CutPrefix(field, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("image data url is not base64")
		}
		declared = strings.TrimSuffix(meta, ";base64")
		field = payload
	}

	data, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(field); err != nil {
			return nil, "", fmt.Errorf("image is not valid base64: %w", err)
		}
	}
	return data, declared, nil
}

// checkDeclaredType rejects uploads whose declared type is not an image.
// The actual bytes are checked again by the image preparer.
func checkDeclaredType(op, declared string) error {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" || strings.HasPrefix(declared, "image/") {
		return nil
	}
	return domain.Validation(op, http.StatusUnsupportedMediaType, fmt.Errorf("declared type %q", declared))
}
