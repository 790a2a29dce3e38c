package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/imageprep"
)

type fakeImages struct {
	mu    sync.Mutex
	obs   []domain.SceneObservation
	err   error
	calls int
}

func (f *fakeImages) Classify(ctx context.Context, image []byte, contentType, text string) ([]domain.SceneObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.obs, f.err
}

type fakePreparer struct {
	err   error
	calls int
}

func (f *fakePreparer) Prepare(data []byte) (imageprep.Image, error) {
	f.calls++
	if f.err != nil {
		return imageprep.Image{}, f.err
	}
	return imageprep.Image{Data: data, ContentType: "image/jpeg"}, nil
}

// fakeCatalog serves tracksPerStyle distinct tracks for every style unless the
// style is listed in failing. Tokens are handed out from tokens, then as
// "tok-N". When validToken is set every other token is rejected.
type fakeCatalog struct {
	mu             sync.Mutex
	tracksPerStyle int
	failing        map[string]error
	tokens         []string
	validToken     string
	issued         []string
	tokenErr       error
	searches       []string
}

func (f *fakeCatalog) FetchToken(ctx context.Context) (domain.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return domain.AccessToken{}, f.tokenErr
	}
	n := len(f.issued)
	tok := fmt.Sprintf("tok-%d", n)
	if n < len(f.tokens) {
		tok = f.tokens[n]
	}
	f.issued = append(f.issued, tok)
	return domain.AccessToken{AccessToken: tok, TokenType: "Bearer", ExpiresIn: 3600}, nil
}

func (f *fakeCatalog) SearchTracks(ctx context.Context, token domain.AccessToken, style string, limit int) ([]domain.Track, error) {
	f.mu.Lock()
	f.searches = append(f.searches, style)
	f.mu.Unlock()

	if f.validToken != "" && token.AccessToken != f.validToken {
		return nil, domain.ErrTokenRejected
	}
	if err, ok := f.failing[style]; ok {
		return nil, err
	}

	n := min(f.tracksPerStyle, limit)
	out := make([]domain.Track, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Track{
			ID:     fmt.Sprintf("%s-%d", style, i),
			Name:   fmt.Sprintf("%s song %d", style, i),
			Artist: fmt.Sprintf("%s artist %d", style, i),
			Album:  fmt.Sprintf("%s album %d", style, i),
		})
	}
	return out, nil
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeCatalog) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issued)
}

type fakeLog struct {
	mu      sync.Mutex
	records []domain.AnalysisRecord
}

func (f *fakeLog) Record(ctx context.Context, rec domain.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLog) Recent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnalysisRecord(nil), f.records...), nil
}
