package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// Redis defaults.
const (
	DefaultRedisPrefix = "screenpipe"
	DefaultDedupTTL    = 24 * time.Hour
	DefaultLockTTL     = 30 * time.Second
	lockRetryInterval  = 25 * time.Millisecond
)

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps conversation state and inbound dedup ids in Redis.
// Candidates and chat logs stay in the SQL store.
type RedisStore struct {
	rdb      redis.Cmdable
	closer   func() error
	prefix   string
	dedupTTL time.Duration
}

// NewRedisStore connects using WithRedisURL.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not set")
	}
	client, err := NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("RedisStore connect failed", "error", err)
		return nil, err
	}
	s := NewRedisStoreFromClient(client, opts...)
	s.closer = client.Close
	slog.Debug("RedisStore connected", "prefix", s.prefix)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb redis.Cmdable, opts ...Option) *RedisStore {
	cfg := Opts{RedisPrefix: DefaultRedisPrefix, DedupTTL: DefaultDedupTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisStore{rdb: rdb, prefix: cfg.RedisPrefix, dedupTTL: cfg.DedupTTL, closer: func() error { return nil }}
}

func (s *RedisStore) conversationKey(sender string) string {
	return fmt.Sprintf("%s:conversation:%s", s.prefix, sender)
}

func (s *RedisStore) activeKey() string { return s.prefix + ":conversations" }

func (s *RedisStore) dedupKey(id string) string { return fmt.Sprintf("%s:inbound:%s", s.prefix, id) }

func (s *RedisStore) GetConversation(ctx context.Context, sender string) (*models.ConversationState, error) {
	raw, err := s.rdb.Get(ctx, s.conversationKey(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetConversation failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", sender, err)
	}
	var st models.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode conversation for %s: %w", sender, err)
	}
	return &st, nil
}

func (s *RedisStore) SaveConversation(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.Sender == "" {
		return models.ErrEmptySender
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.conversationKey(state.Sender), raw, 0)
		p.SAdd(ctx, s.activeKey(), state.Sender)
		return nil
	})
	if err != nil {
		slog.Error("RedisStore SaveConversation failed", "error", err, "sender", state.Sender)
		return fmt.Errorf("failed to save conversation for %s: %w", state.Sender, err)
	}
	return nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, sender string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.conversationKey(sender))
		p.SRem(ctx, s.activeKey(), sender)
		return nil
	})
	if err != nil {
		slog.Error("RedisStore DeleteConversation failed", "error", err, "sender", sender)
		return fmt.Errorf("failed to delete conversation for %s: %w", sender, err)
	}
	return nil
}

func (s *RedisStore) CountConversations(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.activeKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.dedupKey(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.dedupKey(messageID), sender, s.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

// MarkProcessed is a no-op; the dedup key expires on its own.
func (s *RedisStore) MarkProcessed(context.Context, string) error { return nil }

func (s *RedisStore) ForgetInbound(ctx context.Context, messageID string) error {
	if err := s.rdb.Del(ctx, s.dedupKey(messageID)).Err(); err != nil {
		return fmt.Errorf("forget inbound failed: %w", err)
	}
	return nil
}

// Close closes the client when the store owns it.
func (s *RedisStore) Close() error { return s.closer() }

// Client returns the underlying client, for building a RedisLocker on the same connection.
func (s *RedisStore) Client() redis.Cmdable { return s.rdb }

// Prefix returns the key prefix.
func (s *RedisStore) Prefix() string { return s.prefix }

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a per-key lock shared by every process using the same Redis.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	unlock *redis.Script
}

// NewRedisLocker creates a locker whose locks expire after ttl if never released.
func NewRedisLocker(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, unlock: redis.NewScript(unlockScript)}
}

// Lock retries SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("%s:lock:%s", l.prefix, key)
	token := uuid.NewString()
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return func() {
		// release even when the request context is already cancelled
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.unlock.Run(rctx, l.rdb, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("RedisLocker unlock failed", "key", key, "error", err)
		}
	}, nil
}
