package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tourpass:"

// insertScript claims the idempotency key and writes the token hash in one step.
// KEYS[1] token hash, KEYS[2] idempotency key (only read when ARGV[1] == "1").
var insertScript = redis.NewScript(`
if ARGV[1] == '1' then
  local owner = redis.call('GET', KEYS[2])
  if owner then return {'conflict', owner} end
end
if redis.call('EXISTS', KEYS[1]) == 1 then return {'collision'} end
redis.call('HSET', KEYS[1],
  'token', ARGV[2], 'idempotency_key', ARGV[3], 'resource_id', ARGV[4],
  'created_at', ARGV[5], 'expires_at', ARGV[6], 'uses', '0', 'max_uses', ARGV[7])
if ARGV[1] == '1' then redis.call('SET', KEYS[2], ARGV[2]) end
return {'created'}
`)

// consumeScript is the Redis form of the conditional increment.
// KEYS[1] token hash, ARGV[1] now in unix milliseconds.
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {'notfound'} end
local v = redis.call('HMGET', KEYS[1], 'expires_at', 'uses', 'max_uses')
if tonumber(v[1]) <= tonumber(ARGV[1]) then return {'expired'} end
local uses = tonumber(v[2])
local max = tonumber(v[3])
if max > 0 and uses >= max then return {'exhausted'} end
return {'ok', redis.call('HINCRBY', KEYS[1], 'uses', 1)}
`)

// RedisRepository implements ports.TokenRepository on Redis hashes. Atomicity
// comes from Lua scripts; keys carry no TTL because records are never removed
// by the service.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(addr string, password string, db int) *RedisRepository {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRepository{client: rdb}
}

func tokenKey(token string) string { return redisKeyPrefix + "token:" + token }
func idemKey(key string) string    { return redisKeyPrefix + "idem:" + key }

func (r *RedisRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TokenRecord, error) {
	token, err := r.client.Get(ctx, idemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.FindByToken(ctx, token)
}

func (r *RedisRepository) FindByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	fields, err := r.client.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseTokenHash(fields)
}

func (r *RedisRepository) InsertIfAbsent(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, bool, error) {
	keys := []string{tokenKey(rec.Token)}
	hasKey, key := "0", ""
	if rec.IdempotencyKey != nil {
		hasKey, key = "1", *rec.IdempotencyKey
		keys = append(keys, idemKey(key))
	}

	res, err := insertScript.Run(ctx, r.client, keys,
		hasKey, rec.Token, key, string(rec.ResourceID),
		rec.CreatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(), rec.MaxUses).Slice()
	if err != nil {
		return nil, false, err
	}

	switch status, _ := res[0].(string); status {
	case "created":
		stored := *rec
		stored.Uses = 0
		stored.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()
		stored.ExpiresAt = time.UnixMilli(rec.ExpiresAt.UnixMilli()).UTC()
		return &stored, true, nil
	case "conflict":
		owner, _ := res[1].(string)
		winner, err := r.FindByToken(ctx, owner)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("idempotency key %q points at missing token", key)
		}
		return winner, false, nil
	case "collision":
		return nil, false, domain.ErrTokenCollision
	default:
		return nil, false, fmt.Errorf("unexpected insert script reply %v", res)
	}
}

func (r *RedisRepository) ConsumeUse(ctx context.Context, token string, now time.Time) (*domain.TokenRecord, error) {
	res, err := consumeScript.Run(ctx, r.client, []string{tokenKey(token)}, now.UnixMilli()).Slice()
	if err != nil {
		return nil, err
	}

	switch status, _ := res[0].(string); status {
	case "notfound":
		return nil, domain.ErrTokenNotFound
	case "expired":
		return nil, domain.ErrTokenExpired
	case "exhausted":
		return nil, domain.ErrUsesExhausted
	case "ok":
		uses, _ := res[1].(int64)
		rec, err := r.FindByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, domain.ErrTokenNotFound
		}
		rec.Uses = int(uses)
		return rec, nil
	default:
		return nil, fmt.Errorf("unexpected consume script reply %v", res)
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func parseTokenHash(f map[string]string) (*domain.TokenRecord, error) {
	createdAt, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	uses, err := strconv.Atoi(f["uses"])
	if err != nil {
		return nil, fmt.Errorf("parse uses: %w", err)
	}
	maxUses, err := strconv.Atoi(f["max_uses"])
	if err != nil {
		return nil, fmt.Errorf("parse max_uses: %w", err)
	}

	rec := &domain.TokenRecord{
		Token:      f["token"],
		ResourceID: domain.ResourceID(f["resource_id"]),
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		ExpiresAt:  time.UnixMilli(expiresAt).UTC(),
		Uses:       uses,
		MaxUses:    maxUses,
	}
	if k := f["idempotency_key"]; k != "" {
		rec.IdempotencyKey = &k
	}
	return rec, nil
}
