package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/metrics"
	"github.com/StarfishJ/SceneSound/internal/retry"
)

const defaultTokenURL = "https://accounts.spotify.com/api/token"

// AuthOptions configures an Authenticator.
type AuthOptions struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	HTTPClient   *http.Client
}

// Authenticator performs the client-credentials grant. It holds no token
// state: every FetchToken call returns a new token.
type Authenticator struct {
	cfg         clientcredentials.Config
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

var _ ports.TokenSource = (*Authenticator)(nil)

func NewAuthenticator(opts AuthOptions) *Authenticator {
	if opts.TokenURL == "" {
		opts.TokenURL = defaultTokenURL
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

	return &Authenticator{
		cfg: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient:  httpClient,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
}

// FetchToken requests a new access token. Bad credentials are permanent;
// 5xx and transport failures are retried.
func (a *Authenticator) FetchToken(ctx context.Context) (domain.AccessToken, error) {
	const op = "spotify.FetchToken"
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	policy := retry.Policy{
		MaxAttempts: a.maxAttempts,
		Backoff:     retry.Exponential(a.backoff),
		Retryable:   domain.IsTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Int("max_attempts", a.maxAttempts).
				Dur("backoff", delay).Msg("spotify adapter: token request failed, retrying")
		},
	}

	tok, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (*oauth2.Token, error) {
		start := time.Now()
		tok, err := a.cfg.Token(ctx)
		if err != nil {
			metrics.RecordUpstreamAttempt("spotify_token", "error", time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, tokenError(op, err)
		}
		metrics.RecordUpstreamAttempt("spotify_token", "ok", time.Since(start))
		return tok, nil
	})
	if err != nil {
		return domain.AccessToken{}, err
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return domain.AccessToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   expiresIn,
		Expiry:      tok.Expiry,
	}, nil
}

func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return domain.Permanent(op, fmt.Errorf("credentials rejected (%d): %w", status, err))
		}
		return domain.FromUpstreamStatus(op, status, err)
	}
	return transportError(op, err)
}
