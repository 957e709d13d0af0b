package ballots

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/refpoll/backend/internal/models"
)

const generationTTL = 24 * time.Hour

// MaxResultsTTL caps how long a results entry may live. Entries must expire
// well before their generation counter does, otherwise a counter that
// restarts from zero would find an older, lower tally.
const MaxResultsTTL = time.Hour

// RedisCache keeps computed results in Redis under a per-poll generation
// counter. Bumping the generation orphans older entries, which then expire.
type RedisCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisCache creates a results cache whose entries live for ttl. A ttl
// outside (0, MaxResultsTTL] is replaced by MaxResultsTTL.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 || ttl > MaxResultsTTL {
		ttl = MaxResultsTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// TTL returns the lifetime of cached entries.
func (c *RedisCache) TTL() time.Duration {
	return c.ttl
}

func generationKey(token string) string {
	return "results:gen:" + token
}

func resultsKey(token string, gen int64) string {
	return "results:" + token + ":" + strconv.FormatInt(gen, 10)
}

// Generation returns the current generation of token. A missing counter
// reads as zero.
func (c *RedisCache) Generation(ctx context.Context, token string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(token)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read results generation")
	}
	return gen, nil
}

// Get returns the results stored for token at gen.
func (c *RedisCache) Get(ctx context.Context, token string, gen int64) (*models.Results, bool, error) {
	data, err := c.rdb.Get(ctx, resultsKey(token, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read cached results")
	}
	var res models.Results
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, errors.Wrap(err, "decode cached results")
	}
	return &res, true, nil
}

// Put stores res for token at gen and pushes back the expiry of the
// generation counter so it outlives the entry.
func (c *RedisCache) Put(ctx context.Context, token string, gen int64, res *models.Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode results")
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultsKey(token, gen), data, c.ttl)
		pipe.Expire(ctx, generationKey(token), generationTTL)
		return nil
	})
	return errors.Wrap(err, "write cached results")
}

// Bump advances the generation of token.
func (c *RedisCache) Bump(ctx context.Context, token string) error {
	key := generationKey(token)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, generationTTL)
		return nil
	})
	return errors.Wrap(err, "bump results generation")
}
