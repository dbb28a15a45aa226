package cache

import (
	"testing"
	"time"
)

func TestCacheRoundTrip(t *testing.T) {
	c := New(4)
	key := Key("https://example.test/counter")

	if _, hit := c.Get(key, time.Minute); hit {
		t.Fatal("hit on empty cache")
	}

	c.Set(key, []byte(`{"count":1}`))

	payload, hit := c.Get(key, time.Minute)
	if !hit {
		t.Fatal("expected hit after Set")
	}
	if string(payload) != `{"count":1}` {
		t.Errorf("payload = %s", payload)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(4)
	key := Key("https://example.test/counter")
	c.Set(key, []byte("x"))

	time.Sleep(15 * time.Millisecond)
	if _, hit := c.Get(key, 10*time.Millisecond); hit {
		t.Error("hit on entry older than maxAge")
	}
	// Entry is still there under a longer maxAge.
	if _, hit := c.Get(key, time.Minute); !hit {
		t.Error("entry should survive maxAge expiry of another lookup")
	}
}

func TestCacheZeroMaxAgeNeverHits(t *testing.T) {
	c := New(4)
	key := Key("u")
	c.Set(key, []byte("x"))
	if _, hit := c.Get(key, 0); hit {
		t.Error("maxAge 0 must bypass the cache")
	}
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	c := New(2)
	c.Set(Key("a"), []byte("1"))
	c.Set(Key("b"), []byte("2"))
	c.Set(Key("c"), []byte("3"))

	c.mu.RLock()
	n := len(c.store)
	c.mu.RUnlock()
	if n != 2 {
		t.Errorf("store holds %d entries, want 2", n)
	}
	if _, hit := c.Get(Key("c"), time.Minute); !hit {
		t.Error("latest entry must survive eviction")
	}
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	if Key("a") != Key("a") {
		t.Error("Key not deterministic")
	}
	if Key("a") == Key("b") {
		t.Error("distinct URLs collide")
	}
}
