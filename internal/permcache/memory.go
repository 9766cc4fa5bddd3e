package permcache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

type memoryEntry struct {
	codes     []string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache backed by go-cache
type MemoryCache struct {
	store *gocache.Cache
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock lets callers control expiry, mainly for tests
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(DefaultTTL, 10*time.Minute),
		now:   now,
	}
}

func (m *MemoryCache) Get(_ context.Context, userID uuid.UUID) ([]string, bool) {
	v, ok := m.store.Get(userID.String())
	if !ok {
		return nil, false
	}
	entry := v.(memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.store.Delete(userID.String())
		return nil, false
	}
	return cloneCodes(entry.codes), true
}

func (m *MemoryCache) Put(_ context.Context, userID uuid.UUID, codes []string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.store.Set(userID.String(), memoryEntry{
		codes:     cloneCodes(codes),
		expiresAt: m.now().Add(ttl),
	}, ttl)
}

func (m *MemoryCache) Invalidate(_ context.Context, userIDs ...uuid.UUID) {
	for _, id := range userIDs {
		m.store.Delete(id.String())
	}
}
