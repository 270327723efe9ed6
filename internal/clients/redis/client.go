package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docscan-backend/internal/pkg/envutil"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// Service owns the shared Redis connection used by the chunk relay, the job
// registry and the signed-URL cache. It is constructed once at startup and
// injected; Connect and Close bracket the process lifecycle.
type Service struct {
	log      *logger.Logger
	addr     string
	password string
	db       int
	rdb      *goredis.Client
}

func NewService(log *logger.Logger) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(envutil.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	return &Service{
		log:      log.With("service", "RedisService"),
		addr:     addr,
		password: envutil.GetEnv("REDIS_PASSWORD", "", nil),
		db:       envutil.GetEnvAsInt("REDIS_DB", 0, log),
	}, nil
}

func (s *Service) Connect(ctx context.Context) error {
	if s.rdb != nil {
		return nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        s.addr,
		Password:    s.password,
		DB:          s.db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping: %w", err)
	}
	s.rdb = rdb
	return nil
}

func (s *Service) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	err := s.rdb.Close()
	s.rdb = nil
	return err
}

func (s *Service) Client() *goredis.Client { return s.rdb }
