package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

const maxSearchLimit = 50

// SearchTracks runs a genre search for style and returns up to limit tracks
// in catalog order. A rejected token yields domain.ErrTokenRejected.
func (c *Client) SearchTracks(ctx context.Context, token domain.AccessToken, style string, limit int) ([]domain.Track, error) {
	const op = "spotify.SearchTracks"
	style = strings.TrimSpace(style)
	if style == "" {
		return nil, domain.Internal(op, errors.New("empty style"))
	}
	limit = min(max(limit, 1), maxSearchLimit)

	searchURL, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, domain.Internal(op, fmt.Errorf("invalid search url: %w", err))
	}
	query := searchURL.Query()
	query.Set("q", genreQuery(style))
	query.Set("type", "track")
	query.Set("limit", strconv.Itoa(limit))
	if c.market != "" {
		query.Set("market", c.market)
	}
	searchURL.RawQuery = query.Encode()

	resp, err := c.doRequestWithRetry(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", bearer(token))
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("spotify adapter: search %q: %w", style, domain.ErrTokenRejected)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.FromUpstreamStatus(op, resp.StatusCode, fmt.Errorf("search %q: status %d: %s", style, resp.StatusCode, body))
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.Permanent(op, fmt.Errorf("search decode error: %w", err))
	}
	if body.Tracks == nil || body.Tracks.Items == nil {
		return nil, domain.Permanent(op, errors.New("search response has no tracks.items"))
	}

	tracks := make([]domain.Track, 0, len(body.Tracks.Items))
	for _, item := range body.Tracks.Items {
		if t, ok := mapTrackToDomain(item); ok {
			tracks = append(tracks, t)
		}
		if len(tracks) == limit {
			break
		}
	}
	return tracks, nil
}

// genreQuery builds the search expression. Multi-word styles are quoted so
// that "tropical house" is searched as one genre.
func genreQuery(style string) string {
	if strings.ContainsAny(style, " \t") {
		return `genre:"` + strings.ReplaceAll(style, `"`, "") + `"`
	}
	return "genre:" + style
}

func bearer(token domain.AccessToken) string {
	kind := token.TokenType
	if kind == "" || strings.EqualFold(kind, "bearer") {
		kind = "Bearer"
	}
	return kind + " " + token.AccessToken
}
