// Package classifier provides an adapter for the scene recognition service.
// It uploads an image to the service's /analyze endpoint and parses the ranked
// scene labels into domain SceneObservations.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/metrics"
	"github.com/StarfishJ/SceneSound/internal/retry"
)

const (
	defaultBaseURL         = "http://localhost:5000"
	defaultTimeout         = 30 * time.Second
	defaultMaxAttempts     = 3
	defaultBackoff         = time.Second
	defaultTopK            = 5
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second

	breakerName = "classifier"
)

// Options configures a Client. Zero fields take defaults, except Backoff:
// zero retries without delay and only a negative value takes the default.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	TopK        int
	// BreakerFailures consecutive transient failures open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	topK        int
	breaker     *gobreaker.CircuitBreaker[[]domain.SceneObservation]
}

var _ ports.ImageClassifier = (*Client)(nil)

type sceneScore struct {
	Scene       string  `json:"scene"`
	Probability float64 `json:"probability"`
}

type analyzeResponse struct {
	Success bool         `json:"success"`
	Scenes  []sceneScore `json:"scenes"`
	Error   string       `json:"error,omitempty"`
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = defaultBreakerCooldown
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Deadlines are set per attempt from opts.Timeout.
		httpClient = &http.Client{}
	}

	metrics.ClassifierBreakerState.Set(stateToFloat(gobreaker.StateClosed))
	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]domain.SceneObservation](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only an unreachable backend counts against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("classifier adapter: circuit breaker state change")
			metrics.ClassifierBreakerState.Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		topK:        opts.TopK,
		breaker:     breaker,
	}
}

// Classify uploads image (and the optional text hint) and returns at most
// TopK observations ordered by probability descending. 502, 504 and
// transport failures are retried with linear backoff; every other non-2xx
// status is returned at once.
func (c *Client) Classify(ctx context.Context, image []byte, contentType, text string) ([]domain.SceneObservation, error) {
	const op = "classifier.Classify"
	if len(image) == 0 {
		return nil, domain.Validation(op, http.StatusBadRequest, errors.New("empty image"))
	}

	body, formType, err := encodeForm(image, contentType, text)
	if err != nil {
		return nil, domain.Internal(op, fmt.Errorf("encode form: %w", err))
	}

	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Backoff:     retry.Linear(c.backoff),
		Retryable:   retryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.maxAttempts).
				Dur("backoff", delay).Msg("classifier adapter: retrying analyze request")
		},
	}

	obs, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) ([]domain.SceneObservation, error) {
		obs, err := c.breaker.Execute(func() ([]domain.SceneObservation, error) {
			return c.analyze(ctx, op, body, formType)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.Transient(op, http.StatusBadGateway, err)
		}
		return obs, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("classifier adapter: request canceled: %w", ctxErr)
		}
		return nil, err
	}
	return obs, nil
}

// analyze performs a single attempt under its own timeout.
func (c *Client) analyze(ctx context.Context, op string, body []byte, formType string) ([]domain.SceneObservation, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Internal(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamAttempt(breakerName, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(op, attemptCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordUpstreamAttempt(breakerName, "error", elapsed)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(op, attemptCtx, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := statusError(op, resp.StatusCode, raw)
		outcome := "error"
		if domain.IsTransient(err) {
			outcome = "retry"
		}
		metrics.RecordUpstreamAttempt(breakerName, outcome, elapsed)
		return nil, err
	}
	metrics.RecordUpstreamAttempt(breakerName, "ok", elapsed)

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.Permanent(op, fmt.Errorf("decode response: %w", err))
	}
	return c.observations(op, parsed)
}

func (c *Client) observations(op string, parsed analyzeResponse) ([]domain.SceneObservation, error) {
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, domain.Permanent(op, fmt.Errorf("backend error: %s", msg))
	}
	if parsed.Scenes == nil {
		return nil, domain.Permanent(op, errors.New("response has no scenes"))
	}

	obs := make([]domain.SceneObservation, 0, len(parsed.Scenes))
	for i, s := range parsed.Scenes {
		label := strings.TrimSpace(s.Scene)
		if label == "" {
			return nil, domain.Permanent(op, fmt.Errorf("scene %d has an empty label", i))
		}
		if s.Probability < 0 || s.Probability > 1 {
			return nil, domain.Permanent(op, fmt.Errorf("scene %q has probability %v outside [0,1]", label, s.Probability))
		}
		obs = append(obs, domain.SceneObservation{Scene: label, Probability: s.Probability, Source: domain.SourceImage})
	}

	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Probability > obs[j].Probability
	})
	if len(obs) > c.topK {
		obs = obs[:c.topK]
	}
	return obs, nil
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return domain.IsTransient(err)
}

// statusError maps a non-200 reply. Only 502 and 504 are retryable: other
// 5xx mean the backend processed the request and failed.
func statusError(op string, status int, body []byte) error {
	detail := fmt.Errorf("status %d: %s", status, backendMessage(body))
	switch {
	case status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return domain.Transient(op, status, detail)
	case status >= http.StatusInternalServerError:
		return domain.Permanent(op, detail)
	default:
		return domain.FromUpstreamStatus(op, status, detail)
	}
}

func backendMessage(body []byte) string {
	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return strings.TrimSpace(string(body))
}

func transportError(op string, attemptCtx context.Context, err error) error {
	var ne net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return domain.Transient(op, http.StatusGatewayTimeout, err)
	}
	return domain.Transient(op, http.StatusBadGateway, err)
}

func encodeForm(image []byte, contentType, text string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, uploadName(contentType)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}

	if text = strings.TrimSpace(text); text != "" {
		if err := w.WriteField("text", text); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// uploadName gives the part a filename; the backend rejects unnamed files.
func uploadName(contentType string) string {
	switch contentType {
	case "image/png":
		return "upload.png"
	case "image/gif":
		return "upload.gif"
	case "image/webp":
		return "upload.webp"
	default:
		return "upload.jpg"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
