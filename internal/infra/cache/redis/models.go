// Package redis caches slow analysis engine lookups in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
)

const (
	modelsKey       = "automaton-risk:analysis:models"
	DefaultModelTTL = 10 * time.Minute
)

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	cli := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return cli, nil
}

// ModelCatalog wraps an analysis.Client and caches ListModels. Every other
// call passes through. Cache failures fall back to the engine.
type ModelCatalog struct {
	analysis.Client
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewModelCatalog(next analysis.Client, rdb *goredis.Client, ttl time.Duration, log *zap.Logger) *ModelCatalog {
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelCatalog{Client: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *ModelCatalog) ListModels(ctx context.Context) (map[string]any, error) {
	raw, err := c.rdb.Get(ctx, modelsKey).Bytes()
	switch {
	case err == nil:
		var out map[string]any
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
		c.log.Warn("discarding corrupt model catalog cache entry")
	case !errors.Is(err, goredis.Nil):
		c.log.Warn("model catalog cache read failed", zap.Error(err))
	}

	out, err := c.Client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(out); jerr == nil {
		if serr := c.rdb.Set(ctx, modelsKey, b, c.ttl).Err(); serr != nil {
			c.log.Warn("model catalog cache write failed", zap.Error(serr))
		}
	}
	return out, nil
}

// Invalidate drops the cached catalog.
func (c *ModelCatalog) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, modelsKey).Err()
}
