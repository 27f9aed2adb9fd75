package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dermascan/dermascan/internal/metrics"
	"github.com/dermascan/dermascan/internal/model"
)

type fakeLimiter struct {
	result *model.RateLimitResult
	err    error
	gotIP  string
	calls  int
}

func (f *fakeLimiter) CheckIPRateLimit(_ context.Context, ip string, _, _ int) (*model.RateLimitResult, error) {
	f.calls++
	f.gotIP = ip
	return f.result, f.err
}

func TestRateLimitIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		enabled        bool
		limiter        *fakeLimiter
		wantStatus     int
		wantRetryAfter string
		wantCalls      int
	}{
		{
			name:       "disabled passes through",
			enabled:    false,
			limiter:    &fakeLimiter{},
			wantStatus: http.StatusOK,
			wantCalls:  0,
		},
		{
			name:       "allowed",
			enabled:    true,
			limiter:    &fakeLimiter{result: &model.RateLimitResult{Allowed: true, Remaining: 2, Limit: 3}},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:    "limited",
			enabled: true,
			limiter: &fakeLimiter{result: &model.RateLimitResult{
				Allowed: false, Limit: 3, RetryAfter: 5200 * time.Millisecond,
			}},
			wantStatus:     http.StatusTooManyRequests,
			wantRetryAfter: "6",
			wantCalls:      1,
		},
		{
			name:    "fails open",
			enabled: true,
			limiter: &fakeLimiter{
				result: &model.RateLimitResult{Allowed: true},
				err:    errors.New("connection refused"),
			},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := metrics.NewInMemory()
			handler := RateLimitIP(RateLimitConfig{
				Logger:  logger,
				Limiter: tt.limiter,
				Metrics: rec,
				Enabled: tt.enabled,
				RPM:     10,
				Burst:   3,
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
			req.RemoteAddr = "198.51.100.4:52311"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetryAfter)
			}
			if tt.limiter.calls != tt.wantCalls {
				t.Errorf("limiter calls = %d, want %d", tt.limiter.calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 && tt.limiter.gotIP != "198.51.100.4" {
				t.Errorf("ip = %q, want port stripped", tt.limiter.gotIP)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Snapshot().RateLimited != 1 {
				t.Error("rate limited counter not incremented")
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()
	tests := map[time.Duration]int{
		0:                       1,
		300 * time.Millisecond:  1,
		time.Second:             1,
		1001 * time.Millisecond: 2,
		6 * time.Second:         6,
	}
	for in, want := range tests {
		if got := retryAfterSeconds(in); got != want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", in, got, want)
		}
	}
}
