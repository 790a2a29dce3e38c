package ports

import (
	"context"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

// TokenSource obtains catalog access tokens. Every call returns a fresh token.
type TokenSource interface {
	FetchToken(ctx context.Context) (domain.AccessToken, error)
}

// TrackCatalog searches the music catalog. A rejected token is reported as
// domain.ErrTokenRejected so the caller can refresh and retry once.
type TrackCatalog interface {
	SearchTracks(ctx context.Context, token domain.AccessToken, style string, limit int) ([]domain.Track, error)
}
