package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wrapcommand/escalation-service/internal/model"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*StatusCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewStatusCache("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create status cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func blocked() model.EscalationStatusResult {
	return model.EscalationStatusResult{
		Status:        model.EscalationStatusBlocked,
		Missing:       []string{"Email not sent"},
		HasEscalation: true,
		Requirements:  model.Requirements{QuoteHandled: true, FilesReviewed: true},
		Summary:       "Blocked: Email not sent",
	}
}

func TestNewStatusCache_BadURL(t *testing.T) {
	if _, err := NewStatusCache("not-a-url", time.Minute); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestStatusCache_SetAndGet(t *testing.T) {
	c, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "shop-1", "conv-1", 3, blocked()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "shop-1", "conv-1", 3)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if !reflect.DeepEqual(*got, blocked()) {
		t.Errorf("Get() = %+v, want %+v", *got, blocked())
	}
}

func TestStatusCache_StaleSequenceIsMiss(t *testing.T) {
	c, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "shop-1", "conv-1", 3, blocked()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, ok, err := c.Get(ctx, "shop-1", "conv-1", 4)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit for newer sequence, want miss")
	}
}

func TestStatusCache_MissingKey(t *testing.T) {
	c, _ := setupTestRedis(t, time.Hour)

	_, ok, err := c.Get(context.Background(), "shop-1", "nope", 0)
	if err != nil || ok {
		t.Errorf("Get() = ok %v, err %v; want miss without error", ok, err)
	}
}

func TestStatusCache_TenantScopedKeys(t *testing.T) {
	c, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "shop-a", "conv-1", 1, blocked()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "shop-b", "conv-1", 1); ok {
		t.Error("other tenant hit cached entry")
	}
}

func TestStatusCache_Expiry(t *testing.T) {
	c, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "shop-1", "conv-1", 1, blocked()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := s.TTL("escalation:status:shop-1:conv-1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	s.FastForward(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "shop-1", "conv-1", 1); ok {
		t.Error("Get() hit after expiry, want miss")
	}
}

func TestStatusCache_CorruptEntry(t *testing.T) {
	c, s := setupTestRedis(t, time.Hour)

	if err := s.Set("escalation:status:shop-1:conv-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := c.Get(context.Background(), "shop-1", "conv-1", 0); err == nil {
		t.Error("Get() on corrupt entry: want error")
	}
}
