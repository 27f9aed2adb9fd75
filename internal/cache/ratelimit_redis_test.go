package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dermascan/dermascan/internal/testutil"
)

func newRedisCache(t *testing.T) *Cache {
	t.Helper()
	url := testutil.RequireEnv(t, "TEST_REDIS_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, url)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("FlushRedis() error = %v", err)
	}
	return c
}

func TestCheckIPRateLimit_Burst(t *testing.T) {
	c := newRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 10, 3)
		if err != nil {
			t.Fatalf("request %d: error = %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 10, 3)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth request should be limited")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 6*time.Second {
		t.Errorf("RetryAfter = %v, want (0, 6s]", res.RetryAfter)
	}

	other, err := c.CheckIPRateLimit(ctx, "203.0.113.8", 10, 3)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if !other.Allowed {
		t.Error("a different client should have its own bucket")
	}
}

func TestCheckIPRateLimit_FailOpen(t *testing.T) {
	c := newRedisCache(t)
	_ = c.Close()

	res, err := c.CheckIPRateLimit(context.Background(), "203.0.113.9", 10, 3)
	if err == nil {
		t.Error("expected an error from a closed client")
	}
	if !res.Allowed {
		t.Error("request should be allowed when Redis fails")
	}
}
