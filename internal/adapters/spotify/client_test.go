package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

const searchBody = `{
  "tracks": {
    "items": [
      {
        "id": "t1",
        "name": "Island Breeze",
        "artists": [{"id": "a1", "name": "Kygo"}, {"id": "a2", "name": "Guest"}],
        "album": {"name": "Cloud Nine", "images": [{"url": "https://img/large", "width": 640, "height": 640}, {"url": "https://img/small", "width": 64, "height": 64}]},
        "preview_url": "https://p.scdn.co/mp3-preview/t1",
        "external_urls": {"spotify": "https://open.spotify.com/track/t1"}
      },
      {
        "id": "",
        "name": "No Id",
        "artists": [],
        "album": {"name": ""},
        "preview_url": null,
        "external_urls": {}
      },
      {
        "id": "t3",
        "name": "Sunset Drive",
        "artists": [{"id": "a3", "name": "Thomas Jack"}],
        "album": {"name": "Tropical", "images": []},
        "preview_url": null,
        "external_urls": {"spotify": "https://open.spotify.com/track/t3"}
      }
    ],
    "total": 3
  }
}`

func newTestClient(url string) *Client {
	return NewClient(Options{
		BaseURL:     url,
		Market:      "US",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})
}

var testToken = domain.AccessToken{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600}

func TestSearchTracks_MapsResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("q"); got != `genre:"tropical house"` {
			t.Errorf("q = %s", got)
		}
		if q.Get("type") != "track" || q.Get("limit") != "10" || q.Get("market") != "US" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, searchBody)
	}))
	defer ts.Close()

	got, err := newTestClient(ts.URL).SearchTracks(context.Background(), testToken, "tropical house", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.Track{
		{
			ID:            "t1",
			Name:          "Island Breeze",
			Artist:        "Kygo, Guest",
			Album:         "Cloud Nine",
			AlbumImageURL: "https://img/large",
			PreviewURL:    "https://p.scdn.co/mp3-preview/t1",
			ExternalURL:   "https://open.spotify.com/track/t1",
		},
		{
			ID:          "t3",
			Name:        "Sunset Drive",
			Artist:      "Thomas Jack",
			Album:       "Tropical",
			ExternalURL: "https://open.spotify.com/track/t3",
		},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tracks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("track %d:\n got %+v\nwant %+v", i, got[i], want[i])
		}
	}
}

func TestSearchTracks_Errors(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		body         string
		wantAttempts int32
		wantRejected bool
		wantKind     domain.ErrorKind
		wantTracks   int
	}{
		{
			name:         "retries 503 then succeeds",
			statuses:     []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK},
			body:         searchBody,
			wantAttempts: 3,
			wantTracks:   2,
		},
		{
			name:         "exhausts retries on 500",
			statuses:     []int{http.StatusInternalServerError},
			wantAttempts: 3,
			wantKind:     domain.KindUpstreamTransient,
		},
		{
			name:         "401 rejects token without retry",
			statuses:     []int{http.StatusUnauthorized},
			wantAttempts: 1,
			wantRejected: true,
		},
		{
			name:         "404 is permanent",
			statuses:     []int{http.StatusNotFound},
			wantAttempts: 1,
			wantKind:     domain.KindUpstreamPermanent,
		},
		{
			name:         "body without tracks is malformed",
			statuses:     []int{http.StatusOK},
			body:         `{"artists": {"items": []}}`,
			wantAttempts: 1,
			wantKind:     domain.KindUpstreamPermanent,
		},
		{
			name:         "invalid json is malformed",
			statuses:     []int{http.StatusOK},
			body:         `{"tracks": `,
			wantAttempts: 1,
			wantKind:     domain.KindUpstreamPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(attempts.Add(1))
				status := tt.statuses[min(n, len(tt.statuses))-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					fmt.Fprint(w, tt.body)
				}
			}))
			defer ts.Close()

			got, err := newTestClient(ts.URL).SearchTracks(context.Background(), testToken, "jazz", 10)

			if a := attempts.Load(); a != tt.wantAttempts {
				t.Fatalf("attempts = %d, want %d", a, tt.wantAttempts)
			}
			switch {
			case tt.wantRejected:
				if !errors.Is(err, domain.ErrTokenRejected) {
					t.Fatalf("err = %v, want ErrTokenRejected", err)
				}
			case tt.wantTracks > 0:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(got) != tt.wantTracks {
					t.Fatalf("tracks = %d, want %d", len(got), tt.wantTracks)
				}
			default:
				if err == nil {
					t.Fatal("expected error")
				}
				if k := domain.KindOf(err); k != tt.wantKind {
					t.Fatalf("kind = %s, want %s (err: %v)", k, tt.wantKind, err)
				}
			}
		})
	}
}

func TestSearchTracks_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(ts.URL).SearchTracks(ctx, testToken, "jazz", 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGenreQuery(t *testing.T) {
	tests := map[string]string{
		"jazz":           "genre:jazz",
		"hip-hop":        "genre:hip-hop",
		"tropical house": `genre:"tropical house"`,
		"r&b":            "genre:r&b",
	}
	for in, want := range tests {
		if got := genreQuery(in); got != want {
			t.Errorf("genreQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
