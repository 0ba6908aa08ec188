package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DeriveCacheKey returns the cache file base name for an SSO session. The AWS
// CLI keys its token cache on sha1(sessionName) when a named sso-session is
// configured and sha1(startUrl) otherwise; matching that lets both tools share
// tokens.
func DeriveCacheKey(startURL, sessionName string) string {
	source := startURL
	if sessionName != "" {
		source = sessionName
	}
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// TokenCache stores SSO access tokens in two layers: a process-wide map keyed
// by start URL and the AWS CLI's on-disk cache under ~/.aws/sso/cache. Reads
// never return an expired token from either layer.
type TokenCache struct {
	mu  sync.Mutex
	mem map[string]*DeviceAuthResult

	// overridable for tests
	dir string
	now func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{
		mem: make(map[string]*DeviceAuthResult),
		now: time.Now,
	}
}

func (c *TokenCache) cacheDir() (string, error) {
	if c.dir != "" {
		return c.dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aws", "sso", "cache"), nil
}

// Memory returns the in-memory token for startURL, or nil if absent or expired.
func (c *TokenCache) Memory(startURL string) *DeviceAuthResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := c.mem[startURL]
	if !result.Valid(c.now()) {
		return nil
	}
	return result
}

// PutMemory stores a completed device authorization in the fast layer.
func (c *TokenCache) PutMemory(result *DeviceAuthResult) {
	if result == nil || result.StartURL == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[result.StartURL] = result
}

// ReadFile consults the on-disk cache for the session identified by
// startURL/sessionName. Any failure to read, parse, or validate the file is a
// cache miss, never an error: the caller falls through to a fresh device
// authorization.
func (c *TokenCache) ReadFile(startURL, sessionName string) *DeviceAuthResult {
	dir, err := c.cacheDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(dir, DeriveCacheKey(startURL, sessionName)+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		Log.Debug().Str("path", path).Msg("token cache miss: no file")
		return nil
	}
	var token CachedToken
	if err := json.Unmarshal(data, &token); err != nil {
		Log.Debug().Str("path", path).Err(err).Msg("token cache miss: malformed file")
		return nil
	}
	if token.AccessToken == "" || token.ExpiresAt == "" {
		return nil
	}
	expiresAt, err := time.Parse(time.RFC3339, token.ExpiresAt)
	if err != nil {
		Log.Debug().Str("path", path).Err(err).Msg("token cache miss: bad expiry")
		return nil
	}
	if !expiresAt.After(c.now()) {
		Log.Debug().Str("path", path).Time("expiresAt", expiresAt).Msg("token cache miss: expired")
		return nil
	}
	return &DeviceAuthResult{
		AccessToken: token.AccessToken,
		ExpiresAt:   expiresAt.UnixMilli(),
		Region:      token.Region,
		StartURL:    startURL,
	}
}

// Write persists a freshly issued token to the on-disk cache (owner-only
// permissions) and primes the memory layer. expiresAt is epoch milliseconds.
func (c *TokenCache) Write(startURL, sessionName, accessToken, region string, expiresAt int64) error {
	dir, err := c.cacheDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	token := CachedToken{
		AccessToken: accessToken,
		ExpiresAt:   time.UnixMilli(expiresAt).UTC().Format(time.RFC3339),
		Region:      region,
		StartURL:    startURL,
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, DeriveCacheKey(startURL, sessionName)+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	c.PutMemory(&DeviceAuthResult{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		Region:      region,
		StartURL:    startURL,
	})
	return nil
}
