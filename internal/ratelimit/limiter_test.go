package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDomainLimiter_Allow(t *testing.T) {
	dl := NewDomainLimiter(1, 2)

	if !dl.Allow("https://images.example/a.jpg") {
		t.Error("first request denied")
	}
	if !dl.Allow("https://images.example/b.jpg") {
		t.Error("second request within burst denied")
	}
	if dl.Allow("https://images.example/c.jpg") {
		t.Error("request beyond burst allowed")
	}
}

func TestDomainLimiter_PerDomain(t *testing.T) {
	dl := NewDomainLimiter(1, 1)

	if !dl.Allow("https://one.example/a.jpg") {
		t.Error("first domain denied")
	}
	// A different host has its own bucket.
	if !dl.Allow("https://two.example/a.jpg") {
		t.Error("second domain shares the first domain's bucket")
	}
}

func TestDomainLimiter_WaitHonorsContext(t *testing.T) {
	dl := NewDomainLimiter(0.001, 1)
	_ = dl.Allow("https://slow.example/a.jpg")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := dl.Wait(ctx, "https://slow.example/b.jpg")
	if err == nil {
		t.Error("Wait succeeded despite exhausted bucket")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not respect context deadline")
	}
}
