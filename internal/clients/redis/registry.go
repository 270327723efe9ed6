package redis

import (
	"context"
	"fmt"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

const activeJobsKey = "active_streams"

// JobRegistry tracks which generation jobs are in flight, shared across
// processes. Readers treat "not registered" as the sole termination signal
// when the relay has no data for them.
type JobRegistry interface {
	// Register marks the job active and reports whether this caller is the
	// first owner. A second Register for a live job returns false.
	Register(ctx context.Context, jobKey string) (bool, error)
	Unregister(ctx context.Context, jobKey string) error
	IsActive(ctx context.Context, jobKey string) (bool, error)
}

type jobRegistry struct {
	log *logger.Logger
	svc *Service
}

func NewJobRegistry(log *logger.Logger, svc *Service) (JobRegistry, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("redis service required")
	}
	return &jobRegistry{log: log.With("service", "JobRegistry"), svc: svc}, nil
}

func (r *jobRegistry) Register(ctx context.Context, jobKey string) (bool, error) {
	rdb := r.svc.Client()
	if rdb == nil {
		return false, fmt.Errorf("redis not connected")
	}
	added, err := rdb.SAdd(ctx, activeJobsKey, jobKey).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (r *jobRegistry) Unregister(ctx context.Context, jobKey string) error {
	rdb := r.svc.Client()
	if rdb == nil {
		return fmt.Errorf("redis not connected")
	}
	return rdb.SRem(ctx, activeJobsKey, jobKey).Err()
}

func (r *jobRegistry) IsActive(ctx context.Context, jobKey string) (bool, error) {
	rdb := r.svc.Client()
	if rdb == nil {
		return false, fmt.Errorf("redis not connected")
	}
	return rdb.SIsMember(ctx, activeJobsKey, jobKey).Result()
}
