package profiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/untreu2/divine-state/internal/logging"
	"github.com/untreu2/divine-state/internal/nostr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingFetcher = errors.New("profiles: fetcher is required")

// Fetcher retrieves profiles from the relay layer in one batched request.
type Fetcher interface {
	FetchProfiles(ctx context.Context, pubkeys []nostr.Pubkey) ([]Profile, error)
}

const defaultTTL = 30 * time.Minute

type cacheEntry struct {
	profile Profile
	expires time.Time
}

// CacheConfig describes the dependencies for the profile cache accessor.
type CacheConfig struct {
	Fetcher Fetcher
	// Database is optional; when present, cached profiles are persisted and
	// looked up locally before any relay fetch.
	Database *gorm.DB
	TTL      time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Cache is the profile cache accessor consumed by the feed reducers. It keeps
// an in-memory map with TTL expiry; a gorm-backed table, when configured,
// survives restarts and is consulted before issuing relay fetches.
type Cache struct {
	fetcher Fetcher
	db      *gorm.DB
	ttl     time.Duration
	clock   func() time.Time
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[nostr.Pubkey]cacheEntry
}

// NewCache constructs the accessor.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		fetcher: cfg.Fetcher,
		db:      cfg.Database,
		ttl:     ttl,
		clock:   clock,
		logger:  logging.OrNop(cfg.Logger),
		entries: make(map[nostr.Pubkey]cacheEntry),
	}, nil
}

// HasProfile reports whether an unexpired profile is cached for the pubkey.
func (c *Cache) HasProfile(pubkey nostr.Pubkey) bool {
	_, ok := c.Profile(pubkey)
	return ok
}

// Profile returns the cached profile for the pubkey, if present and unexpired.
func (c *Cache) Profile(pubkey nostr.Pubkey) (Profile, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pubkey]
	c.mu.RUnlock()
	if !ok || c.clock().After(entry.expires) {
		return Profile{}, false
	}
	return entry.profile, true
}

// FetchMultipleProfiles resolves the provided pubkeys into the cache. Already
// cached pubkeys are skipped; the remainder is looked up in the local store
// and, still missing, fetched from the relay layer in a single batched call.
func (c *Cache) FetchMultipleProfiles(ctx context.Context, pubkeys []nostr.Pubkey) error {
	missing := c.missing(pubkeys)
	if len(missing) == 0 {
		return nil
	}

	missing = c.loadPersisted(missing)
	if len(missing) == 0 {
		return nil
	}

	fetched, err := c.fetcher.FetchProfiles(ctx, missing)
	if err != nil {
		return fmt.Errorf("profiles: batched fetch failed: %w", err)
	}
	now := c.clock()
	c.mu.Lock()
	for _, profile := range fetched {
		c.entries[profile.Pubkey] = cacheEntry{profile: profile, expires: now.Add(c.ttl)}
	}
	c.mu.Unlock()
	c.persist(fetched)
	return nil
}

// Put stores a profile directly, bypassing the fetcher. Used when profiles
// arrive as a side effect of other relay traffic.
func (c *Cache) Put(profile Profile) {
	c.mu.Lock()
	c.entries[profile.Pubkey] = cacheEntry{profile: profile, expires: c.clock().Add(c.ttl)}
	c.mu.Unlock()
	c.persist([]Profile{profile})
}

// missing returns the deduplicated subset of pubkeys with no live cache entry.
func (c *Cache) missing(pubkeys []nostr.Pubkey) []nostr.Pubkey {
	now := c.clock()
	seen := make(map[nostr.Pubkey]struct{}, len(pubkeys))
	missing := make([]nostr.Pubkey, 0, len(pubkeys))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, pubkey := range pubkeys {
		if pubkey == "" {
			continue
		}
		if _, dup := seen[pubkey]; dup {
			continue
		}
		seen[pubkey] = struct{}{}
		if entry, ok := c.entries[pubkey]; ok && now.Before(entry.expires) {
			continue
		}
		missing = append(missing, pubkey)
	}
	return missing
}

// loadPersisted promotes locally persisted profiles into the in-memory map
// and returns the pubkeys that remain unresolved.
func (c *Cache) loadPersisted(pubkeys []nostr.Pubkey) []nostr.Pubkey {
	if c.db == nil {
		return pubkeys
	}
	raw := make([]string, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		raw = append(raw, pubkey.String())
	}
	var records []Record
	if err := c.db.Where("pubkey IN ?", raw).Find(&records).Error; err != nil {
		c.logger.Warn("profile cache lookup failed", zap.Error(err))
		return pubkeys
	}
	found := make(map[nostr.Pubkey]struct{}, len(records))
	now := c.clock()
	c.mu.Lock()
	for _, record := range records {
		profile := record.profile()
		c.entries[profile.Pubkey] = cacheEntry{profile: profile, expires: now.Add(c.ttl)}
		found[profile.Pubkey] = struct{}{}
	}
	c.mu.Unlock()

	remaining := make([]nostr.Pubkey, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		if _, ok := found[pubkey]; !ok {
			remaining = append(remaining, pubkey)
		}
	}
	return remaining
}

// persist writes profiles to the local store, best effort.
func (c *Cache) persist(fetched []Profile) {
	if c.db == nil || len(fetched) == 0 {
		return
	}
	for _, profile := range fetched {
		record := recordFromProfile(profile)
		err := c.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
		if err != nil {
			c.logger.Warn("profile cache persist failed",
				zap.String("pubkey", record.Pubkey),
				zap.Error(err))
		}
	}
}
