package opentickets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeSequencer hands out the next ticket sequence number for a branch and month.
type CodeSequencer interface {
	Next(ctx context.Context, branchRef string, at time.Time) (int64, error)
}

// FormatCode renders OT-{branch}-{YYYYMM}-{seq4}.
func FormatCode(branchRef string, at time.Time, seq int64) string {
	return fmt.Sprintf("OT-%s-%s-%04d", normalizeBranch(branchRef), at.Format("200601"), seq)
}

func normalizeBranch(branchRef string) string {
	return strings.ToUpper(strings.TrimSpace(branchRef))
}

func sequenceKey(branchRef string, at time.Time) string {
	return fmt.Sprintf("opentickets:seq:%s:%s", normalizeBranch(branchRef), at.Format("200601"))
}

// sequenceTTL keeps a month's counter around long enough to outlive the month.
const sequenceTTL = 40 * 24 * time.Hour

// RedisSequencer increments a per-branch monthly counter in Redis.
type RedisSequencer struct {
	redis *redis.Client
}

func NewRedisSequencer(client *redis.Client) *RedisSequencer {
	if client == nil {
		panic("opentickets: redis client required")
	}
	return &RedisSequencer{redis: client}
}

func (s *RedisSequencer) Next(ctx context.Context, branchRef string, at time.Time) (int64, error) {
	key := sequenceKey(branchRef, at)
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("opentickets: incr sequence: %w", err)
	}
	if n == 1 {
		s.redis.Expire(ctx, key, sequenceTTL)
	}
	return n, nil
}

// MemorySequencer is an in-process CodeSequencer.
type MemorySequencer struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{next: make(map[string]int64)}
}

func (s *MemorySequencer) Next(_ context.Context, branchRef string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sequenceKey(branchRef, at)
	s.next[key]++
	return s.next[key], nil
}
