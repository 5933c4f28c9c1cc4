package cache

import (
	"testing"
	"time"
)

func TestTTLExpiry(t *testing.T) {
	t.Parallel()
	c := NewTTL[string](time.Hour)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Set("k", "v")
	if got, ok := c.Get("k"); !ok || got != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}

	current = current.Add(time.Hour + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry survived past its TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after expiry read, want 0", c.Len())
	}
}

func TestTTLOverwriteResetsClock(t *testing.T) {
	t.Parallel()
	c := NewTTL[int](time.Minute)
	current := time.Unix(0, 0)
	c.now = func() time.Time { return current }

	c.Set("k", 1)
	current = current.Add(50 * time.Second)
	c.Set("k", 2)
	current = current.Add(30 * time.Second)

	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Fatalf("Get = %d, %v; want 2, true after rewrite", got, ok)
	}
}

func TestTTLDelete(t *testing.T) {
	t.Parallel()
	c := NewTTL[int](time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("deleted entry still present")
	}
}
