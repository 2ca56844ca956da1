package cache

import (
	"context"
	"testing"

	"listinglens/internal/domain"
)

func TestStatusCacheDisabledIsMissNotError(t *testing.T) {
	c := NewStatusCache(nil)

	status, ok, err := c.Get(context.Background(), "w1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok || status != "" {
		t.Fatalf("expected a miss, got %q", status)
	}

	if err := c.Set(context.Background(), "w1", domain.WorkCompleted); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := c.Invalidate(context.Background(), "w1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
}

func TestStatusCacheNilReceiver(t *testing.T) {
	var c *StatusCache
	if _, ok, err := c.Get(context.Background(), "w1"); err != nil || ok {
		t.Fatalf("nil cache Get = (%v, %v)", ok, err)
	}
}
