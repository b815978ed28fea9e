// Package transcript implements component B: an append-only, per-call log
// of transcript entries with a 30-minute retention window, read by the
// live-transcript streamer (I) via cursor-based range reads (spec.md §4.2).
package transcript

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TTL is how long a call's transcript survives after its most recent
// append, refreshed on every write.
const TTL = 30 * time.Minute

// Entry is one line of a call's transcript.
type Entry struct {
	Role      string    `json:"role"` // "caller" or "assistant"
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// Store appends and range-reads transcript entries keyed by call SID. It
// prefers Redis (RPUSH/EXPIRE/LRANGE) and falls back to an in-process map
// when Redis is unavailable or unconfigured, so a single node can still run
// the bridge without a Redis dependency at the cost of losing transcripts
// across restarts.
type Store struct {
	log zerolog.Logger

	rdb *redis.Client

	onFallback func()

	mu       sync.RWMutex
	fallback map[string][]Entry
}

// New builds a Store. rdb may be nil, in which case the store runs
// entirely on the in-process fallback. onFallback, if non-nil, is invoked
// every time a Redis operation fails and the store falls back to memory
// (used to drive internal/metrics.TranscriptStoreFallbacks).
func New(log zerolog.Logger, rdb *redis.Client, onFallback func()) *Store {
	return &Store{
		log:        log,
		rdb:        rdb,
		onFallback: onFallback,
		fallback:   make(map[string][]Entry),
	}
}

// Append adds one entry to key's transcript and refreshes its TTL.
func (s *Store) Append(ctx context.Context, key string, e Entry) error {
	if s.rdb != nil {
		b, err := json.Marshal(e)
		if err == nil {
			pipe := s.rdb.TxPipeline()
			pipe.RPush(ctx, redisKey(key), b)
			pipe.Expire(ctx, redisKey(key), TTL)
			if _, err := pipe.Exec(ctx); err == nil {
				return nil
			}
		}
		s.log.Warn().Str("key", key).Msg("transcript store: redis append failed, falling back to memory")
		if s.onFallback != nil {
			s.onFallback()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback[key] = append(s.fallback[key], e)
	return nil
}

// Range returns entries at or after cursor (a 0-based index into the
// transcript), plus the cursor a subsequent call should pass to read only
// entries appended since. A cursor of 0 reads from the start.
func (s *Store) Range(ctx context.Context, key string, cursor int64) ([]Entry, int64, error) {
	if s.rdb != nil {
		raw, err := s.rdb.LRange(ctx, redisKey(key), cursor, -1).Result()
		if err == nil {
			entries := make([]Entry, 0, len(raw))
			for _, r := range raw {
				var e Entry
				if err := json.Unmarshal([]byte(r), &e); err == nil {
					entries = append(entries, e)
				}
			}
			return entries, cursor + int64(len(entries)), nil
		}
		s.log.Warn().Str("key", key).Msg("transcript store: redis range failed, falling back to memory")
		if s.onFallback != nil {
			s.onFallback()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.fallback[key]
	if cursor >= int64(len(all)) {
		return nil, cursor, nil
	}
	out := append([]Entry{}, all[cursor:]...)
	return out, cursor + int64(len(out)), nil
}

func redisKey(callKey string) string {
	return "voicebridge:transcript:" + callKey
}
