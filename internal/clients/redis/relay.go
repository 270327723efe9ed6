package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

type ChunkKind string

const (
	ChunkKindText  ChunkKind = "chunk"
	ChunkKindClose ChunkKind = "close"
)

// Chunk is one relay entry. The close signal is a tagged entry rather than a
// reserved text value, so generated text can never be mistaken for a control
// signal.
type Chunk struct {
	Kind ChunkKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

func (c Chunk) IsClose() bool { return c.Kind == ChunkKindClose }

// StreamRelay buffers the text fragments of one generation job in FIFO order
// and hands them out to readers with exactly-once removal. Publishers and
// readers may live in different processes; the buffer is a shared Redis list
// per job key.
type StreamRelay interface {
	Publish(ctx context.Context, jobKey string, text string) error
	PublishClose(ctx context.Context, jobKey string) error
	// Drain atomically removes and returns up to max entries, oldest first.
	// It never blocks; an empty result means nothing is buffered right now.
	Drain(ctx context.Context, jobKey string, max int64) ([]Chunk, error)
	// DrainWait behaves like Drain but blocks up to wait for the first entry,
	// so readers are not stuck on a fixed polling cadence.
	DrainWait(ctx context.Context, jobKey string, max int64, wait time.Duration) ([]Chunk, error)
}

type streamRelay struct {
	log *logger.Logger
	svc *Service
}

func NewStreamRelay(log *logger.Logger, svc *Service) (StreamRelay, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("redis service required")
	}
	return &streamRelay{log: log.With("service", "StreamRelay"), svc: svc}, nil
}

func streamKey(jobKey string) string { return "stream:" + jobKey }

// streamTTL bounds the life of a job's list. Undrained tails and the close
// entry of an abandoned job expire instead of accumulating in Redis.
const streamTTL = time.Hour

func (r *streamRelay) push(ctx context.Context, jobKey string, chunk Chunk) error {
	rdb := r.svc.Client()
	if rdb == nil {
		return fmt.Errorf("redis not connected")
	}
	raw, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	pipe := rdb.TxPipeline()
	pipe.RPush(ctx, streamKey(jobKey), raw)
	pipe.Expire(ctx, streamKey(jobKey), streamTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *streamRelay) Publish(ctx context.Context, jobKey string, text string) error {
	if text == "" {
		return nil
	}
	return r.push(ctx, jobKey, Chunk{Kind: ChunkKindText, Text: text})
}

func (r *streamRelay) PublishClose(ctx context.Context, jobKey string) error {
	return r.push(ctx, jobKey, Chunk{Kind: ChunkKindClose})
}

func (r *streamRelay) Drain(ctx context.Context, jobKey string, max int64) ([]Chunk, error) {
	rdb := r.svc.Client()
	if rdb == nil {
		return nil, fmt.Errorf("redis not connected")
	}
	if max <= 0 {
		max = 1
	}
	raws, err := rdb.LPopCount(ctx, streamKey(jobKey), int(max)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return r.decode(raws), nil
}

func (r *streamRelay) DrainWait(ctx context.Context, jobKey string, max int64, wait time.Duration) ([]Chunk, error) {
	rdb := r.svc.Client()
	if rdb == nil {
		return nil, fmt.Errorf("redis not connected")
	}
	if wait <= 0 {
		return r.Drain(ctx, jobKey, max)
	}

	// BLPOP delivers the head as soon as it exists; the rest of the batch is
	// picked up non-blockingly so a fast generator still drains in bulk.
	vals, err := rdb.BLPop(ctx, wait, streamKey(jobKey)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// BLPOP returns [key, value].
	chunks := r.decode(vals[1:])
	if max > 1 {
		rest, err := r.Drain(ctx, jobKey, max-1)
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, rest...)
	}
	return chunks, nil
}

func (r *streamRelay) decode(raws []string) []Chunk {
	chunks := make([]Chunk, 0, len(raws))
	for _, raw := range raws {
		var c Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			r.log.Warn("bad relay payload, dropping", "error", err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}
