package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/worker"
)

// FetcherOptions configures a TrackFetcher. Zero PerStyleLimit, Concurrency
// and Policy.MaxSize take defaults. A zero Policy.MinSize is kept and turns
// off the refill of deferred tracks.
type FetcherOptions struct {
	PerStyleLimit int
	Concurrency   int
	Policy        domain.CurationPolicy
}

// TrackFetcher runs one catalog search per style tag and curates the merged
// results into a playlist.
type TrackFetcher struct {
	tokens  ports.TokenSource
	catalog ports.TrackCatalog
	opts    FetcherOptions
}

func NewTrackFetcher(tokens ports.TokenSource, catalog ports.TrackCatalog, opts FetcherOptions) *TrackFetcher {
	if opts.PerStyleLimit <= 0 {
		opts.PerStyleLimit = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Policy.MaxSize <= 0 {
		opts.Policy.MaxSize = domain.DefaultMaxPlaylistSize
	}
	return &TrackFetcher{tokens: tokens, catalog: catalog, opts: opts}
}

// Fetch returns the curated playlist for tags. Failed searches are logged and
// skipped; if every search fails the playlist is empty. Only a failure to
// obtain the access token is returned as an error.
func (f *TrackFetcher) Fetch(ctx context.Context, tags []domain.StyleTag) ([]domain.Track, error) {
	if len(tags) == 0 {
		return []domain.Track{}, nil
	}

	token, err := f.tokens.FetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: fetch token: %w", err)
	}
	shared := &sharedToken{source: f.tokens, current: token}

	results := worker.Gather(ctx, tags, f.opts.Concurrency, func(ctx context.Context, tag domain.StyleTag) ([]domain.Track, error) {
		return f.search(ctx, shared, tag)
	})

	var merged []domain.Track
	for i, r := range results {
		if r.Err != nil {
			logging.Ctx(ctx).Warn().Err(r.Err).Str("style", tags[i].Name).Msg("style search failed, skipping")
			continue
		}
		merged = append(merged, r.Value...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return domain.Curate(merged, f.opts.Policy), nil
}

func (f *TrackFetcher) search(ctx context.Context, shared *sharedToken, tag domain.StyleTag) ([]domain.Track, error) {
	token := shared.get()
	tracks, err := f.catalog.SearchTracks(ctx, token, tag.Name, f.opts.PerStyleLimit)
	if errors.Is(err, domain.ErrTokenRejected) {
		token, err = shared.refresh(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		tracks, err = f.catalog.SearchTracks(ctx, token, tag.Name, f.opts.PerStyleLimit)
	}
	if err != nil {
		return nil, err
	}

	for i := range tracks {
		tracks[i].Style = tag.Name
	}
	return tracks, nil
}

// sharedToken lets concurrent searches of one request share a single token
// refresh.
type sharedToken struct {
	source ports.TokenSource

	mu        sync.Mutex
	current   domain.AccessToken
	refreshed bool
	err       error
}

func (s *sharedToken) get() domain.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// refresh replaces stale with a new token. Only the first caller contacts the
// token source; later callers receive its outcome.
func (s *sharedToken) refresh(ctx context.Context, stale domain.AccessToken) (domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshed {
		return s.current, s.err
	}
	s.refreshed = true

	token, err := s.source.FetchToken(ctx)
	if err != nil {
		s.err = err
		return stale, err
	}
	s.current = token
	return token, nil
}
