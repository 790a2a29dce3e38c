package spotify

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/StarfishJ/SceneSound/internal/core/ports"
)

const (
	defaultBaseURL     = "https://api.spotify.com/v1"
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

// Options configures a Client. Zero fields take defaults.
type Options struct {
	BaseURL     string
	Market      string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// RatePerSecond and Burst pace outbound calls. RatePerSecond <= 0 disables pacing.
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
}

// Client is an HTTP client for the Spotify Web API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	market      string
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

// compile-time interface assertion
var _ ports.TrackCatalog = (*Client)(nil)

// NewClient constructs a new Spotify client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(1, opts.Burst))
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		market:      opts.Market,
		limiter:     limiter,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.Backoff,
	}
}
