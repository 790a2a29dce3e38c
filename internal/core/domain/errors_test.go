package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestFromUpstreamStatus(t *testing.T) {
	tests := []struct {
		status     int
		wantKind   ErrorKind
		wantStatus int
	}{
		{status: http.StatusBadGateway, wantKind: KindUpstreamTransient, wantStatus: http.StatusBadGateway},
		{status: http.StatusGatewayTimeout, wantKind: KindUpstreamTransient, wantStatus: http.StatusGatewayTimeout},
		{status: http.StatusServiceUnavailable, wantKind: KindUpstreamTransient, wantStatus: http.StatusBadGateway},
		{status: http.StatusTooManyRequests, wantKind: KindRateLimited, wantStatus: http.StatusTooManyRequests},
		{status: http.StatusRequestEntityTooLarge, wantKind: KindUpstreamPermanent, wantStatus: http.StatusRequestEntityTooLarge},
		{status: http.StatusUnsupportedMediaType, wantKind: KindUpstreamPermanent, wantStatus: http.StatusUnsupportedMediaType},
		{status: http.StatusForbidden, wantKind: KindUpstreamPermanent, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromUpstreamStatus("test", tt.status, nil)
			if err.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", err.Kind, tt.wantKind)
			}
			if err.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", err.Status, tt.wantStatus)
			}
		})
	}
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	inner := errors.New("dial tcp 10.0.0.3:5000: connection refused")
	err := fmt.Errorf("service: classify: %w", Transient("classifier", http.StatusBadGateway, inner))

	if KindOf(err) != KindUpstreamTransient || !IsTransient(err) {
		t.Fatalf("kind = %s", KindOf(err))
	}
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("status = %d", StatusOf(err))
	}
	msg := PublicMessage(err)
	if strings.Contains(msg, "10.0.0.3") {
		t.Fatalf("public message leaks internals: %q", msg)
	}
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error lost")
	}
}

func TestStatusOf_Defaults(t *testing.T) {
	if got := StatusOf(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("status = %d", got)
	}
	if got := StatusOf(fmt.Errorf("x: %w", ErrSuperseded)); got != http.StatusConflict {
		t.Fatalf("status = %d", got)
	}
}
