// Package permcache holds resolved permission codes per user for a bounded time.
// The relational role graph stays the source of truth; a miss means "resolve again".
package permcache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = time.Hour

// Cache maps a user to the permission codes granted through their roles
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]string, bool)
	Put(ctx context.Context, userID uuid.UUID, codes []string, ttl time.Duration)
	Invalidate(ctx context.Context, userIDs ...uuid.UUID)
}

func cloneCodes(codes []string) []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}
