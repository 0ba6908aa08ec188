package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func newTestCache(t *testing.T, clock *fakeClock) *TokenCache {
	t.Helper()
	cache := NewTokenCache()
	cache.dir = t.TempDir()
	cache.now = clock.Now
	return cache
}

func TestDeriveCacheKey(t *testing.T) {
	// 1. Known digests: start URL when no session name, session name otherwise
	if got := DeriveCacheKey("https://acme.awsapps.com/start", ""); got != "40169cea58ca6cbf23fb27b2542923fb5f524af0" {
		t.Errorf("start URL key = %s", got)
	}
	if got := DeriveCacheKey("https://acme.awsapps.com/start", "acme-dev"); got != "e6aec71ba9a3e85ac56135f8643900667a0e22d5" {
		t.Errorf("session name key = %s", got)
	}

	// 2. Deterministic across calls
	if DeriveCacheKey("https://x/start", "") != DeriveCacheKey("https://x/start", "") {
		t.Error("key derivation is not deterministic")
	}

	// 3. Always 40 lowercase hex characters
	key := DeriveCacheKey("anything", "")
	if len(key) != 40 {
		t.Errorf("key length = %d, want 40", len(key))
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Errorf("key contains non-hex character %q", r)
		}
	}
}

func TestTokenCacheFileRoundTrip(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	startURL := "https://acme.awsapps.com/start"
	expiresAt := clock.Now().Add(1 * time.Hour).UnixMilli()
	if err := cache.Write(startURL, "", "token-abc", "us-east-1", expiresAt); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// 1. File exists under the derived key with owner-only permissions
	path := filepath.Join(cache.dir, DeriveCacheKey(startURL, "")+".json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("cache file mode = %v, want 0600", info.Mode().Perm())
	}

	// 2. Read returns the token while it is still valid
	result := cache.ReadFile(startURL, "")
	if result == nil {
		t.Fatal("expected cache hit")
	}
	if result.AccessToken != "token-abc" || result.Region != "us-east-1" || result.StartURL != startURL {
		t.Errorf("unexpected token: %+v", result)
	}
	if result.ExpiresAt != expiresAt {
		t.Errorf("ExpiresAt = %d, want %d", result.ExpiresAt, expiresAt)
	}
}

func TestTokenCacheExpiredFileIsMiss(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	startURL := "https://acme.awsapps.com/start"
	expiresAt := clock.Now().Add(30 * time.Minute).UnixMilli()
	if err := cache.Write(startURL, "", "token-abc", "us-east-1", expiresAt); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	clock.Advance(31 * time.Minute)
	if result := cache.ReadFile(startURL, ""); result != nil {
		t.Errorf("expired token returned from file cache: %+v", result)
	}
}

func TestTokenCacheMalformedFileIsMiss(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	startURL := "https://acme.awsapps.com/start"
	path := filepath.Join(cache.dir, DeriveCacheKey(startURL, "")+".json")

	// 1. Garbage JSON
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if cache.ReadFile(startURL, "") != nil {
		t.Error("malformed file treated as hit")
	}

	// 2. Valid JSON with missing fields
	if err := os.WriteFile(path, []byte(`{"region":"us-east-1"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if cache.ReadFile(startURL, "") != nil {
		t.Error("field-less file treated as hit")
	}

	// 3. Unparseable expiry timestamp
	if err := os.WriteFile(path, []byte(`{"accessToken":"x","expiresAt":"not-a-time"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if cache.ReadFile(startURL, "") != nil {
		t.Error("bad expiry treated as hit")
	}

	// 4. Missing file entirely
	if cache.ReadFile("https://other.awsapps.com/start", "") != nil {
		t.Error("missing file treated as hit")
	}
}

func TestTokenCacheMemoryExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(t, clock)

	startURL := "https://acme.awsapps.com/start"
	cache.PutMemory(&DeviceAuthResult{
		AccessToken: "token-abc",
		ExpiresAt:   clock.Now().Add(10 * time.Minute).UnixMilli(),
		StartURL:    startURL,
	})

	if cache.Memory(startURL) == nil {
		t.Fatal("expected memory hit before expiry")
	}

	clock.Advance(10*time.Minute + time.Second)
	if result := cache.Memory(startURL); result != nil {
		t.Errorf("expired token returned from memory: %+v", result)
	}

	// Unknown start URL is a plain miss
	if cache.Memory("https://unknown/start") != nil {
		t.Error("unknown start URL returned a token")
	}
}
