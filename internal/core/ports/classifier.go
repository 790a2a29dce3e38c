package ports

import (
	"context"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

// ImageClassifier infers scenes from image bytes. text is an optional hint
// forwarded to the backend. Implementations return observations tagged
// domain.SourceImage, ordered by probability descending; an empty slice means
// the backend recognised nothing.
type ImageClassifier interface {
	Classify(ctx context.Context, image []byte, contentType, text string) ([]domain.SceneObservation, error)
}
