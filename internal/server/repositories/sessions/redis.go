package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user_agent", ARGV[1])
redis.call("HSET", KEYS[1], "created_at", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const appendIPScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var appendIPLua = redis.NewScript(appendIPScript)

// RedisRepository keeps each session in a hash (user agent, creation time)
// plus a set of IP addresses. Both keys share a sliding TTL; zero disables
// expiry.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepository {
	return &RedisRepository{redis: rdb, prefix: prefix, ttl: ttl}
}

// Both keys carry the id as a hash tag so the scripts, which touch both,
// stay on one Redis Cluster slot.
func (r *RedisRepository) key(id string) string {
	return r.prefix + ":{" + id + "}"
}

func (r *RedisRepository) ipsKey(id string) string {
	return r.prefix + ":{" + id + "}:ips"
}

func (r *RedisRepository) Create(ctx context.Context, s *models.Session) error {
	var ip string
	if len(s.IPAddresses) > 0 {
		ip = s.IPAddresses[0]
	}
	now := time.Now().UTC()

	created, err := createSessionLua.Run(ctx, r.redis,
		[]string{r.key(s.ID), r.ipsKey(s.ID)},
		s.UserAgent, now.UnixMilli(), ip, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: session %s", common.ErrorConflict, s.ID)
	}
	s.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

func (r *RedisRepository) AppendIP(ctx context.Context, id, ip string) error {
	ok, err := appendIPLua.Run(ctx, r.redis,
		[]string{r.key(id), r.ipsKey(id)},
		ip, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if ok == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Get returns IP addresses in lexical order; the set keeps no insertion order.
func (r *RedisRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}

	ips, err := r.redis.SMembers(ctx, r.ipsKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	sort.Strings(ips)

	s := &models.Session{ID: id, IPAddresses: ips, UserAgent: fields["user_agent"]}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		s.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return s, nil
}
