package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// LinkCache caches short-lived download links so repeated chat views do not
// re-sign the same object on every request.
type LinkCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, url string, ttl time.Duration) error
}

type linkCache struct {
	log *logger.Logger
	svc *Service
}

func NewLinkCache(log *logger.Logger, svc *Service) (LinkCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("redis service required")
	}
	return &linkCache{log: log.With("service", "LinkCache"), svc: svc}, nil
}

func (c *linkCache) Get(ctx context.Context, key string) (string, bool, error) {
	rdb := c.svc.Client()
	if rdb == nil {
		return "", false, fmt.Errorf("redis not connected")
	}
	val, err := rdb.Get(ctx, "download_url:"+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (c *linkCache) Set(ctx context.Context, key string, url string, ttl time.Duration) error {
	rdb := c.svc.Client()
	if rdb == nil {
		return fmt.Errorf("redis not connected")
	}
	return rdb.Set(ctx, "download_url:"+key, url, ttl).Err()
}
