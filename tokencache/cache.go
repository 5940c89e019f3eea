package tokencache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DefikitTeam/claude-code-container-sub005/logging"
)

// DefaultExpiryBuffer is the lead time subtracted from a credential's expiry
// so it is proactively refreshed before it would actually expire.
const DefaultExpiryBuffer = 5 * time.Minute

// ErrEmptyKey is returned by GetToken for a blank key.
var ErrEmptyKey = errors.New("tokencache: key must not be empty")

// Credential is a short-lived secret scoped to one key. Values are exposed
// by copy only; the cache owns the stored instance and replaces it wholesale
// on refresh.
type Credential struct {
	Token     string
	ExpiresAt int64 // epoch milliseconds
	Key       string
}

// Generator produces a fresh credential for a key. It is injected at
// construction and invoked at most once per key at any time; failures
// propagate to callers uncached.
type Generator func(ctx context.Context, key string) (Credential, error)

// Options configures a Cache.
type Options struct {
	// ExpiryBuffer is subtracted from the stored expiry when deciding
	// whether a cached credential is still usable.
	ExpiryBuffer time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// Logger receives cache maintenance events.
	Logger logging.Logger
}

// Cache caches credentials per key with expiry-aware reuse and deduplicated
// concurrent generation. All methods are safe for concurrent use; requests
// for distinct keys never block each other.
type Cache struct {
	gen    Generator
	buffer time.Duration
	now    func() time.Time
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is either a settled credential or an in-flight generation. ready is
// closed once cred/err are populated; waiters read them only after that.
type entry struct {
	pending bool
	ready   chan struct{}
	cred    Credential
	err     error
}

// New constructs a Cache around the injected generator.
func New(gen Generator, optFns ...func(o *Options)) *Cache {
	opts := Options{
		ExpiryBuffer: DefaultExpiryBuffer,
		Now:          time.Now,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Cache{
		gen:     gen,
		buffer:  opts.ExpiryBuffer,
		now:     opts.Now,
		logger:  opts.Logger,
		entries: make(map[string]*entry),
	}
}

// GetToken returns a valid credential for key, generating one on a miss.
// Concurrent callers for the same key collapse into a single generation:
// later callers await the in-flight attempt and share its outcome. A failed
// generation is never cached, so the next call starts fresh.
func (c *Cache) GetToken(ctx context.Context, key string) (Credential, error) {
	if strings.TrimSpace(key) == "" {
		return Credential{}, ErrEmptyKey
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.pending {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return Credential{}, ctx.Err()
			case <-e.ready:
			}
			if e.err != nil {
				return Credential{}, e.err
			}
			return e.cred, nil
		}
		if c.validLocked(e.cred.ExpiresAt) {
			cred := e.cred
			c.mu.Unlock()
			return cred, nil
		}
		// Stale entry; fall through and regenerate.
	}

	e := &entry{pending: true, ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	cred, err := c.gen(ctx, key)
	cred.Key = key

	c.mu.Lock()
	e.cred, e.err, e.pending = cred, err, false
	if err != nil && c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	close(e.ready)

	if err != nil {
		return Credential{}, err
	}
	c.logger.Debug("token generated", "key", key)
	return cred, nil
}

// IsValid reports whether a credential with the given expiry would still be
// usable for key right now, applying the expiry buffer. The boundary case
// now+buffer == expiresAt counts as invalid and forces regeneration.
func (c *Cache) IsValid(key string, expiresAt int64) bool {
	if strings.TrimSpace(key) == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked(expiresAt)
}

// Invalidate unconditionally removes the entry for key. The next GetToken
// regenerates.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.logger.Debug("token invalidated", "key", key)
}

// RefreshExpired evicts every settled entry whose raw expiry (no buffer) is
// at or before now and returns the number evicted. Intended for periodic
// maintenance, not the request path.
func (c *Cache) RefreshExpired() int {
	nowMs := c.now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if e.pending {
			continue
		}
		if e.cred.ExpiresAt <= nowMs {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cache entries, including in-flight generations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs RefreshExpired on the given interval until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.RefreshExpired(); n > 0 {
					c.logger.Debug("token sweep evicted entries", "count", n)
				}
			}
		}
	}()
}

func (c *Cache) validLocked(expiresAt int64) bool {
	return c.now().Add(c.buffer).UnixMilli() < expiresAt
}
