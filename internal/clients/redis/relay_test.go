package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// These run against a real Redis and skip without TEST_REDIS_ADDR.

func newTestService(t *testing.T) *Service {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	t.Setenv("REDIS_ADDR", addr)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc, err := NewService(log)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestRelay(t *testing.T) (StreamRelay, *Service, string) {
	t.Helper()
	svc := newTestService(t)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	relay, err := NewStreamRelay(log, svc)
	if err != nil {
		t.Fatalf("NewStreamRelay: %v", err)
	}
	jobKey := uuid.NewString()
	t.Cleanup(func() {
		if rdb := svc.Client(); rdb != nil {
			rdb.Del(context.Background(), streamKey(jobKey))
		}
	})
	return relay, svc, jobKey
}

func TestRelayPublishSetsExpiry(t *testing.T) {
	relay, svc, jobKey := newTestRelay(t)
	ctx := context.Background()

	if err := relay.Publish(ctx, jobKey, "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := relay.PublishClose(ctx, jobKey); err != nil {
		t.Fatalf("PublishClose: %v", err)
	}

	// The list must never outlive an abandoned job.
	ttl, err := svc.Client().TTL(ctx, streamKey(jobKey)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > streamTTL {
		t.Fatalf("stream list ttl = %v, want within (0, %v]", ttl, streamTTL)
	}
}

func TestRelayDrainRemovesEntriesInOrder(t *testing.T) {
	relay, _, jobKey := newTestRelay(t)
	ctx := context.Background()

	for _, text := range []string{"Hel", "lo"} {
		if err := relay.Publish(ctx, jobKey, text); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := relay.PublishClose(ctx, jobKey); err != nil {
		t.Fatalf("PublishClose: %v", err)
	}

	chunks, err := relay.DrainWait(ctx, jobKey, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DrainWait: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("drained %d chunks, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "Hel" || chunks[1].Text != "lo" {
		t.Fatalf("chunks out of order: %+v", chunks)
	}
	if !chunks[2].IsClose() {
		t.Fatalf("last chunk is not close: %+v", chunks[2])
	}

	// Removal is exactly-once.
	rest, err := relay.Drain(ctx, jobKey, 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("second drain returned %+v", rest)
	}
}
