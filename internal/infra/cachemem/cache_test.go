package cachemem

import (
	"context"
	"testing"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

func TestGetAfterPut(t *testing.T) {
	ctx := context.Background()
	c := New()

	result := domain.VerificationResult{EnvelopeDigest: "abc"}
	if err := c.Put(ctx, "abc", result, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.EnvelopeDigest != "abc" {
		t.Fatalf("digest = %s", got.EnvelopeDigest)
	}

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("unknown key must miss")
	}
}

func TestEntriesExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })

	if err := c.Put(ctx, "abc", domain.VerificationResult{EnvelopeDigest: "abc"}, time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "abc"); !ok {
		t.Fatal("entry expired early")
	}

	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "abc"); ok {
		t.Fatal("entry outlived its ttl")
	}
	// Expired entries are evicted, not resurrected.
	if _, ok, _ := c.Get(ctx, "abc"); ok {
		t.Fatal("expired entry came back")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })

	if err := c.Put(ctx, "abc", domain.VerificationResult{EnvelopeDigest: "abc"}, 0); err != nil {
		t.Fatal(err)
	}
	now = now.Add(1000 * time.Hour)
	if _, ok, _ := c.Get(ctx, "abc"); !ok {
		t.Fatal("zero-ttl entry must persist")
	}
}
