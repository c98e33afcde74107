package profiles

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/untreu2/divine-state/internal/nostr"
)

type recordingFetcher struct {
	mu       sync.Mutex
	requests [][]nostr.Pubkey
	profiles map[nostr.Pubkey]Profile
	err      error
}

func (f *recordingFetcher) FetchProfiles(ctx context.Context, pubkeys []nostr.Pubkey) ([]Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]nostr.Pubkey, len(pubkeys))
	copy(batch, pubkeys)
	f.requests = append(f.requests, batch)
	if f.err != nil {
		return nil, f.err
	}
	result := make([]Profile, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		if profile, ok := f.profiles[pubkey]; ok {
			result = append(result, profile)
		}
	}
	return result, nil
}

func (f *recordingFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func mustPubkey(t *testing.T, seed string) nostr.Pubkey {
	t.Helper()
	pubkey, err := nostr.NewPubkey(strings.Repeat(seed, 64/len(seed)))
	if err != nil {
		t.Fatalf("pubkey from seed %q: %v", seed, err)
	}
	return pubkey
}

func newTestCache(t *testing.T, fetcher Fetcher, clock func() time.Time) *Cache {
	t.Helper()
	cache, err := NewCache(CacheConfig{Fetcher: fetcher, Clock: clock})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestFetchMultipleProfilesSkipsCachedPubkeys(t *testing.T) {
	known := mustPubkey(t, "a")
	unknown := mustPubkey(t, "b")
	fetcher := &recordingFetcher{profiles: map[nostr.Pubkey]Profile{
		known:   {Pubkey: known, Name: "alice"},
		unknown: {Pubkey: unknown, Name: "bob"},
	}}
	cache := newTestCache(t, fetcher, nil)

	cache.Put(Profile{Pubkey: known, Name: "alice"})

	if err := cache.FetchMultipleProfiles(context.Background(), []nostr.Pubkey{known, unknown, unknown}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.requestCount() != 1 {
		t.Fatalf("expected exactly one batched request, got %d", fetcher.requestCount())
	}
	got := fetcher.requests[0]
	if len(got) != 1 || got[0] != unknown {
		t.Fatalf("expected request for the missing pubkey only, got %v", got)
	}
	if !cache.HasProfile(unknown) {
		t.Fatalf("fetched profile not cached")
	}
}

func TestFetchMultipleProfilesNoRequestWhenAllCached(t *testing.T) {
	known := mustPubkey(t, "a")
	fetcher := &recordingFetcher{}
	cache := newTestCache(t, fetcher, nil)
	cache.Put(Profile{Pubkey: known})

	if err := cache.FetchMultipleProfiles(context.Background(), []nostr.Pubkey{known}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.requestCount() != 0 {
		t.Fatalf("expected no fetch for fully cached input, got %d", fetcher.requestCount())
	}
}

func TestFetchMultipleProfilesPropagatesFetcherError(t *testing.T) {
	fetchErr := errors.New("relay unreachable")
	fetcher := &recordingFetcher{err: fetchErr}
	cache := newTestCache(t, fetcher, nil)

	err := cache.FetchMultipleProfiles(context.Background(), []nostr.Pubkey{mustPubkey(t, "c")})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestProfileExpiresAfterTTL(t *testing.T) {
	current := time.Unix(1700000000, 0).UTC()
	clock := func() time.Time { return current }
	pubkey := mustPubkey(t, "d")
	fetcher := &recordingFetcher{profiles: map[nostr.Pubkey]Profile{}}
	cache, err := NewCache(CacheConfig{Fetcher: fetcher, TTL: time.Minute, Clock: clock})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	cache.Put(Profile{Pubkey: pubkey})
	if !cache.HasProfile(pubkey) {
		t.Fatalf("expected fresh profile to be present")
	}

	current = current.Add(2 * time.Minute)
	if cache.HasProfile(pubkey) {
		t.Fatalf("expected profile to expire after TTL")
	}
}

func TestNewCacheRequiresFetcher(t *testing.T) {
	if _, err := NewCache(CacheConfig{}); err == nil {
		t.Fatalf("expected error for missing fetcher")
	}
}
