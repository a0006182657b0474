package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/redis/go-redis/v9"
)

// recordScript increments the count and keeps the newest last_seen in one
// atomic step. last_seen is stored as unix microseconds so Lua numbers
// compare exactly.
var recordScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'fraud_count', ARGV[1])
local seen = redis.call('HGET', KEYS[1], 'last_seen')
if (not seen) or tonumber(ARGV[2]) > tonumber(seen) then
	redis.call('HSET', KEYS[1], 'last_seen', ARGV[2])
	seen = ARGV[2]
end
redis.call('SADD', KEYS[2], ARGV[3])
return {count, seen}
`)

// RedisStore keeps one hash per handle plus an index set of known handles.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to the Redis instance in cfg.
func NewRedisStore(cfg domain.HistoryConfig) (*RedisStore, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.RedisKeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fraudguard"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) recordKey(handle string) string {
	return fmt.Sprintf("%s:history:%s", s.prefix, handle)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":history:handles"
}

// RecordOutcome runs the update script for handle.
func (s *RedisStore) RecordOutcome(ctx context.Context, handle string, isFraud bool) (*domain.HistoryRecord, error) {
	if err := validHandle(handle); err != nil {
		return nil, err
	}

	incr := 0
	if isFraud {
		incr = 1
	}
	now := strconv.FormatInt(s.now().UnixMicro(), 10)

	res, err := recordScript.Run(ctx, s.client,
		[]string{s.recordKey(handle), s.indexKey()},
		incr, now, handle,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected script reply %v", domain.ErrPersistenceWrite, res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected count %v", domain.ErrPersistenceWrite, res[0])
	}
	seen, err := parseMicros(fmt.Sprint(res[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	return &domain.HistoryRecord{FraudCount: count, LastSeen: seen}, nil
}

// Get returns the record for handle.
func (s *RedisStore) Get(ctx context.Context, handle string) (*domain.HistoryRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(handle)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeFields(fields)
}

// Snapshot reads every indexed handle in one pipeline.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]domain.HistoryRecord, error) {
	handles, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(handles))
	for _, h := range handles {
		cmds[h] = pipe.HGetAll(ctx, s.recordKey(h))
	}
	if len(handles) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	out := make(map[string]domain.HistoryRecord, len(handles))
	for h, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeFields(fields)
		if err != nil {
			return nil, fmt.Errorf("handle %s: %w", h, err)
		}
		out[h] = *rec
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeFields(fields map[string]string) (*domain.HistoryRecord, error) {
	count, err := strconv.ParseInt(fields["fraud_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fraud_count %q: %w", fields["fraud_count"], err)
	}
	seen, err := parseMicros(fields["last_seen"])
	if err != nil {
		return nil, err
	}
	return &domain.HistoryRecord{FraudCount: count, LastSeen: seen}, nil
}

func parseMicros(s string) (time.Time, error) {
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_seen %q: %w", s, err)
	}
	return time.UnixMicro(us).UTC(), nil
}
