package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errTerminal  = errors.New("terminal")
)

type delayedErr struct{ d time.Duration }

func (e delayedErr) Error() string              { return "slow down" }
func (e delayedErr) RetryAfter() time.Duration { return e.d }

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		errs         []error
		wantAttempts int
		wantErr      error
		wantExhaust  bool
	}{
		{
			name:         "succeeds first time",
			maxAttempts:  3,
			errs:         []error{nil},
			wantAttempts: 1,
		},
		{
			name:         "retries transient then succeeds",
			maxAttempts:  3,
			errs:         []error{errTransient, errTransient, nil},
			wantAttempts: 3,
		},
		{
			name:         "stops on terminal error",
			maxAttempts:  3,
			errs:         []error{errTransient, errTerminal},
			wantAttempts: 2,
			wantErr:      errTerminal,
		},
		{
			name:         "exhausts attempts",
			maxAttempts:  3,
			errs:         []error{errTransient},
			wantAttempts: 3,
			wantErr:      errTransient,
			wantExhaust:  true,
		},
		{
			name:         "non-positive max attempts runs once",
			maxAttempts:  0,
			errs:         []error{errTransient},
			wantAttempts: 1,
			wantErr:      errTransient,
			wantExhaust:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			p := Policy{
				MaxAttempts: tt.maxAttempts,
				Backoff:     Linear(time.Millisecond),
				Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
			}
			v, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
				attempts++
				assert.Equal(t, attempts, attempt)
				e := tt.errs[min(attempt, len(tt.errs))-1]
				if e != nil {
					return 0, e
				}
				return 42, nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 42, v)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var exhausted *ExhaustedError
			assert.Equal(t, tt.wantExhaust, errors.As(err, &exhausted))
		})
	}
}

func TestBackoff(t *testing.T) {
	lin := Linear(time.Second)
	assert.Equal(t, time.Second, lin(1))
	assert.Equal(t, 2*time.Second, lin(2))

	exp := Exponential(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, exp(1))
	assert.Equal(t, 400*time.Millisecond, exp(3))
}

func TestDo_HonoursDelayerAndOnRetry(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 2,
		Backoff:     Linear(time.Hour),
		OnRetry:     func(_ int, d time.Duration, _ error) { delays = append(delays, d) },
	}

	_, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (struct{}, error) {
		if attempt == 1 {
			return struct{}{}, delayedErr{d: time.Millisecond}
		}
		return struct{}{}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond}, delays)
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	_, err := Do(ctx, Policy{MaxAttempts: 5, Backoff: Linear(time.Hour)}, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errTransient)
}
