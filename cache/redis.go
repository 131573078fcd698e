package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
)

var _ bastion.Cache = (*Redis)(nil)

// Redis shares effective permission sets between processes. Values are
// JSON arrays stored under "<prefix><company>:<user>"; each company has a
// generation counter under "<prefix>gen:<company>" that every
// invalidation increments. Redis errors are logged and treated as misses
// so a cache outage never blocks a check.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisOption configures the redis cache.
type RedisOption func(*Redis)

// WithRedisTTL sets the entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithKeyPrefix sets the key namespace. Defaults to "bastion:perms:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisLogger sets the logger used for redis failures.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "bastion:perms:",
		ttl:    5 * time.Minute,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisFromURL connects to the redis server at url and pings it.
func NewRedisFromURL(ctx context.Context, url string, opts ...RedisOption) (*Redis, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	o.DialTimeout = 5 * time.Second
	o.ReadTimeout = 3 * time.Second
	o.WriteTimeout = 3 * time.Second

	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, opts...), nil
}

// unknownGeneration never matches a stored counter, so Set skips writes
// whose generation could not be read.
const unknownGeneration = math.MaxUint64

// Get returns the cached effective set for the user.
func (r *Redis) Get(ctx context.Context, companyID id.CompanyID, userID id.UserID) ([]string, uint64, bool) {
	key := r.key(companyID, userID)
	pipe := r.client.Pipeline()
	genCmd := pipe.Get(ctx, r.genKey(companyID))
	valCmd := pipe.Get(ctx, key)
	_, _ = pipe.Exec(ctx) //nolint:errcheck // per-command errors are checked below

	gen, err := genCmd.Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		gen = 0
	case err != nil:
		r.warn("get generation", key, err)
		return nil, unknownGeneration, false
	}

	data, err := valCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false
	}
	if err != nil {
		r.warn("get", key, err)
		return nil, gen, false
	}
	var perms []string
	if err := json.Unmarshal(data, &perms); err != nil {
		r.client.Del(ctx, key)
		r.warn("decode", key, err)
		return nil, gen, false
	}
	return perms, gen, true
}

// errGenerationMoved aborts a Set raced by an invalidation.
var errGenerationMoved = errors.New("generation moved")

// Set stores the effective set for the user. The company's generation
// counter is watched so an invalidation between the read and the write
// aborts the write.
func (r *Redis) Set(ctx context.Context, companyID id.CompanyID, userID id.UserID, generation uint64, perms []string) {
	if generation == unknownGeneration {
		return
	}
	if perms == nil {
		perms = []string{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return
	}
	key := r.key(companyID, userID)
	genKey := r.genKey(companyID)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if errors.Is(err, redis.Nil) {
			cur = 0
		} else if err != nil {
			return err
		}
		if cur != generation {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
	default:
		r.warn("set", key, err)
	}
}

// InvalidateUser drops the user's entry.
func (r *Redis) InvalidateUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) {
	r.bump(ctx, companyID)
	key := r.key(companyID, userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.warn("del", key, err)
	}
}

// InvalidateCompany drops every entry of the company.
func (r *Redis) InvalidateCompany(ctx context.Context, companyID id.CompanyID) {
	r.bump(ctx, companyID)
	pattern := r.prefix + companyID.String() + ":*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.warn("del", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		r.warn("scan", pattern, err)
	}
}

func (r *Redis) bump(ctx context.Context, companyID id.CompanyID) {
	genKey := r.genKey(companyID)
	if err := r.client.Incr(ctx, genKey).Err(); err != nil {
		r.warn("incr", genKey, err)
	}
}

// Ping checks redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(companyID id.CompanyID, userID id.UserID) string {
	return r.prefix + cacheKey(companyID, userID)
}

func (r *Redis) genKey(companyID id.CompanyID) string {
	return r.prefix + "gen:" + companyID.String()
}

func (r *Redis) warn(op, key string, err error) {
	r.logger.Warn("bastion: redis cache "+op+" failed",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
