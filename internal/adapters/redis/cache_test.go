package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	redisad "parchment/internal/adapters/redis"
	"parchment/internal/domain"
)

func newTestCache(t *testing.T) *redisad.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	return redisad.New(mr.Addr(), "", 0)
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	in := []domain.Place{{ID: "p1", Name: "Onyx", City: "Seoul", Category: domain.CategoryCafe, Status: domain.StatusPublished}}
	if err := c.Set(ctx, "places:published", in, 60); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out []domain.Place
	ok, err := c.Get(ctx, "places:published", &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(out) != 1 || out[0].ID != "p1" || out[0].Category != domain.CategoryCafe {
		t.Fatalf("unexpected value: %+v", out)
	}
}

func TestCache_MissAndDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var out []domain.Region
	ok, err := c.Get(ctx, "regions:all", &out)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "regions:all", []domain.Region{{ID: "r1"}}, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Del(ctx, "regions:all"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, _ = c.Get(ctx, "regions:all", &out)
	if ok {
		t.Fatalf("expected miss after del")
	}
}
