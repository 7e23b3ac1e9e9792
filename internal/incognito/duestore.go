package incognito

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DueEntry is a message that must be deleted at DueAt.
type DueEntry struct {
	MessageID string
	ChatID    string
	DueAt     time.Time
}

// DueStore keeps scheduled deletions so they survive a restart.
type DueStore interface {
	// Put stores e. An entry already due earlier for the same message is kept.
	Put(ctx context.Context, e DueEntry) error
	Remove(ctx context.Context, messageID string) error
	All(ctx context.Context) ([]DueEntry, error)
	// Due returns entries whose time is at or before now.
	Due(ctx context.Context, now time.Time) ([]DueEntry, error)
}

const (
	defaultDueKey = "pairchat:incognito:due"
	chatsSuffix   = ":chats"
)

// RedisDueStore keeps entries in a sorted set scored by due time in unix
// milliseconds, with a companion hash mapping message ID to chat ID.
type RedisDueStore struct {
	rdb      *redis.Client
	key      string
	chatsKey string
}

// NewRedisDueStore builds a RedisDueStore. An empty key uses the default.
func NewRedisDueStore(rdb *redis.Client, key string) *RedisDueStore {
	if key == "" {
		key = defaultDueKey
	}
	return &RedisDueStore{rdb: rdb, key: key, chatsKey: key + chatsSuffix}
}

func (s *RedisDueStore) Put(ctx context.Context, e DueEntry) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAddArgs(ctx, s.key, redis.ZAddArgs{
		LT:      true,
		Members: []redis.Z{{Score: float64(e.DueAt.UnixMilli()), Member: e.MessageID}},
	})
	pipe.HSet(ctx, s.chatsKey, e.MessageID, e.ChatID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisDueStore) Remove(ctx context.Context, messageID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, s.key, messageID)
	pipe.HDel(ctx, s.chatsKey, messageID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisDueStore) All(ctx context.Context) ([]DueEntry, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.entries(ctx, zs)
}

func (s *RedisDueStore) Due(ctx context.Context, now time.Time) ([]DueEntry, error) {
	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.entries(ctx, zs)
}

func (s *RedisDueStore) entries(ctx context.Context, zs []redis.Z) ([]DueEntry, error) {
	if len(zs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(zs))
	for _, z := range zs {
		ids = append(ids, z.Member.(string))
	}
	chats, err := s.rdb.HMGet(ctx, s.chatsKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]DueEntry, 0, len(zs))
	for i, z := range zs {
		chatID, _ := chats[i].(string)
		entries = append(entries, DueEntry{
			MessageID: ids[i],
			ChatID:    chatID,
			DueAt:     time.UnixMilli(int64(z.Score)),
		})
	}
	return entries, nil
}

// MemoryDueStore is a process-local DueStore used when Redis is not configured.
type MemoryDueStore struct {
	mu      sync.Mutex
	entries map[string]DueEntry
}

func NewMemoryDueStore() *MemoryDueStore {
	return &MemoryDueStore{entries: map[string]DueEntry{}}
}

func (s *MemoryDueStore) Put(_ context.Context, e DueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[e.MessageID]; ok && !e.DueAt.Before(existing.DueAt) {
		return nil
	}
	s.entries[e.MessageID] = e
	return nil
}

func (s *MemoryDueStore) Remove(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, messageID)
	return nil
}

func (s *MemoryDueStore) All(_ context.Context) ([]DueEntry, error) {
	return s.collect(func(DueEntry) bool { return true }), nil
}

func (s *MemoryDueStore) Due(_ context.Context, now time.Time) ([]DueEntry, error) {
	return s.collect(func(e DueEntry) bool { return !e.DueAt.After(now) }), nil
}

func (s *MemoryDueStore) collect(keep func(DueEntry) bool) []DueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DueEntry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}
