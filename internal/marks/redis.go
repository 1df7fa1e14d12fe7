package marks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource stores each mark as a hash at "mark:{symbol}" with fields
// "price" and "ts" (Unix nanoseconds).
type RedisSource struct {
	rdb *redis.Client
	ttl time.Duration
}

// RedisConfig holds connection parameters for the Redis mark store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires marks that have not been refreshed. Zero keeps them.
	TTL time.Duration
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(ctx context.Context, cfg RedisConfig) (*RedisSource, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisSource{rdb: rdb, ttl: cfg.TTL}, nil
}

func markKey(symbol string) string {
	return "mark:" + NormalizeSymbol(symbol)
}

func (s *RedisSource) Get(ctx context.Context, symbol string) (Mark, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, markKey(symbol)).Result()
	if err != nil {
		return Mark{}, false, fmt.Errorf("redis: get mark %s: %w", symbol, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return Mark{}, false, nil
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return Mark{}, false, fmt.Errorf("redis: parse mark %s: %w", symbol, err)
	}
	mark := Mark{Symbol: NormalizeSymbol(symbol), Price: price}
	if tsStr, ok := vals["ts"]; ok {
		ns, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return Mark{}, false, fmt.Errorf("redis: parse mark ts %s: %w", symbol, err)
		}
		mark.At = time.Unix(0, ns).UTC()
	}
	return mark, true, nil
}

func (s *RedisSource) Set(ctx context.Context, mark Mark) error {
	key := markKey(mark.Symbol)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"price": strconv.FormatFloat(mark.Price, 'f', -1, 64),
		"ts":    strconv.FormatInt(mark.At.UnixNano(), 10),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mark %s: %w", mark.Symbol, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisSource) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	return s.rdb.Close()
}
