package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/types"
)

type streamFixture struct {
	svc      StreamService
	relay    *memRelay
	registry *memRegistry

	userID    uuid.UUID
	versionID uuid.UUID
	jobKey    string
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	chats := newFakeChatRepo()
	versions := newFakeVersionRepo()
	f := &streamFixture{
		relay:    newMemRelay(),
		registry: newMemRegistry(),
		userID:   uuid.New(),
	}

	ctx := context.Background()
	chat, _ := chats.Create(ctx, nil, &types.Chat{UserID: f.userID, Ext: "png"})
	origin := uuid.New()
	version, _ := versions.Create(ctx, nil, &types.DocVersion{ChatID: chat.ID, DocOriginID: origin})
	f.versionID = version.ID
	f.jobKey = version.ID.String()

	svc, err := NewStreamService(log, versions, chats, f.relay, f.registry)
	if err != nil {
		t.Fatalf("NewStreamService: %v", err)
	}
	f.svc = svc
	return f
}

func collect(t *testing.T, f *streamFixture, userID uuid.UUID) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := f.svc.Stream(context.Background(), userID, f.versionID, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestStreamDeliversChunksThenClose(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	f.relay.Publish(ctx, f.jobKey, "Hel")
	f.relay.Publish(ctx, f.jobKey, "lo")
	f.relay.Publish(ctx, f.jobKey, " world")
	f.relay.PublishClose(ctx, f.jobKey)

	events, err := collect(t, f, f.userID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	want := []StreamEvent{
		{Name: StreamEventChunk, Data: "Hel"},
		{Name: StreamEventChunk, Data: "lo"},
		{Name: StreamEventChunk, Data: " world"},
		{Name: StreamEventClose},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	full := ""
	for i, w := range want {
		if events[i] != w {
			t.Fatalf("event[%d] = %+v, want %+v", i, events[i], w)
		}
		full += events[i].Data
	}
	if full != "Hello world" {
		t.Fatalf("assembled %q", full)
	}
}

func TestStreamClosesWhenJobInactiveAndEmpty(t *testing.T) {
	f := newStreamFixture(t)

	events, err := collect(t, f, f.userID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(events) != 1 || events[0].Name != StreamEventClose {
		t.Fatalf("expected a single close event, got %+v", events)
	}
}

func TestStreamKeepsPollingWhileActive(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	// First wait comes back empty while the job is registered; the reader must
	// poll again instead of closing.
	f.registry.Register(ctx, f.jobKey)
	f.relay.forceEmpty[f.jobKey] = 1
	f.relay.Publish(ctx, f.jobKey, "late")
	f.relay.PublishClose(ctx, f.jobKey)

	events, err := collect(t, f, f.userID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []StreamEvent{
		{Name: StreamEventChunk, Data: "late"},
		{Name: StreamEventClose},
	}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
}

func TestStreamSweepsLateEntriesAfterUnregister(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	// Job already unregistered, but entries landed after the reader's empty
	// wait. The final sweep must deliver them before closing.
	f.relay.forceEmpty[f.jobKey] = 1
	f.relay.Publish(ctx, f.jobKey, "tail")

	events, err := collect(t, f, f.userID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []StreamEvent{
		{Name: StreamEventChunk, Data: "tail"},
		{Name: StreamEventClose},
	}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
}

func TestStreamRejectsForeignReader(t *testing.T) {
	f := newStreamFixture(t)

	_, err := collect(t, f, uuid.New())
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
