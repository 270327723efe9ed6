package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docscan-backend/internal/clients/openai"
	rds "github.com/yungbote/docscan-backend/internal/clients/redis"
	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/types"
)

// ---- relay / registry ----

// memRelay is an in-process stand-in for the Redis chunk relay. forceEmpty
// makes the next n DrainWait calls come back empty regardless of contents,
// which exercises the reader's registry-check path.
type memRelay struct {
	mu         sync.Mutex
	lists      map[string][]rds.Chunk
	forceEmpty map[string]int
}

func newMemRelay() *memRelay {
	return &memRelay{lists: map[string][]rds.Chunk{}, forceEmpty: map[string]int{}}
}

func (r *memRelay) Publish(_ context.Context, jobKey, text string) error {
	if text == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[jobKey] = append(r.lists[jobKey], rds.Chunk{Kind: rds.ChunkKindText, Text: text})
	return nil
}

func (r *memRelay) PublishClose(_ context.Context, jobKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[jobKey] = append(r.lists[jobKey], rds.Chunk{Kind: rds.ChunkKindClose})
	return nil
}

func (r *memRelay) Drain(_ context.Context, jobKey string, max int64) ([]rds.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pop(jobKey, max), nil
}

func (r *memRelay) DrainWait(_ context.Context, jobKey string, max int64, _ time.Duration) ([]rds.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceEmpty[jobKey] > 0 {
		r.forceEmpty[jobKey]--
		return nil, nil
	}
	return r.pop(jobKey, max), nil
}

func (r *memRelay) pop(jobKey string, max int64) []rds.Chunk {
	list := r.lists[jobKey]
	if len(list) == 0 {
		return nil
	}
	n := int(max)
	if n > len(list) {
		n = len(list)
	}
	out := append([]rds.Chunk(nil), list[:n]...)
	r.lists[jobKey] = list[n:]
	return out
}

func (r *memRelay) buffered(jobKey string) []rds.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rds.Chunk(nil), r.lists[jobKey]...)
}

type memRegistry struct {
	mu     sync.Mutex
	active map[string]bool
}

func newMemRegistry() *memRegistry {
	return &memRegistry{active: map[string]bool{}}
}

func (r *memRegistry) Register(_ context.Context, jobKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[jobKey] {
		return false, nil
	}
	r.active[jobKey] = true
	return true, nil
}

func (r *memRegistry) Unregister(_ context.Context, jobKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobKey)
	return nil
}

func (r *memRegistry) IsActive(_ context.Context, jobKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[jobKey], nil
}

// ---- repos ----

type fakeChatRepo struct {
	mu    sync.Mutex
	chats map[uuid.UUID]*types.Chat
}

func newFakeChatRepo() *fakeChatRepo { return &fakeChatRepo{chats: map[uuid.UUID]*types.Chat{}} }

func (f *fakeChatRepo) Create(_ context.Context, _ *gorm.DB, chat *types.Chat) (*types.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeChatRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, apperrors.ErrNotFound)
	}
	return c, nil
}

func (f *fakeChatRepo) GetDetail(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chat, error) {
	return f.GetByID(ctx, tx, id)
}

func (f *fakeChatRepo) ListByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) ([]*types.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Chat
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChatRepo) SetTitleIfUnset(_ context.Context, _ *gorm.DB, id uuid.UUID, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok || c.Title != nil {
		return false, nil
	}
	c.Title = &title
	return true, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*types.Message
}

func (f *fakeMessageRepo) Create(_ context.Context, _ *gorm.DB, msg *types.Message) (*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeMessageRepo) ListByChat(_ context.Context, _ *gorm.DB, chatID uuid.UUID) ([]*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeVersionRepo struct {
	mu        sync.Mutex
	versions  map[uuid.UUID]*types.DocVersion
	createErr error
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{versions: map[uuid.UUID]*types.DocVersion{}}
}

func (f *fakeVersionRepo) Create(_ context.Context, _ *gorm.DB, v *types.DocVersion) (*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = types.DocVersionStatusPending
	}
	v.CreatedAt = time.Now()
	f.versions[v.ID] = v
	return v, nil
}

func (f *fakeVersionRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("doc version %s: %w", id, apperrors.ErrNotFound)
	}
	return v, nil
}

func (f *fakeVersionRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.DocVersion
	for _, id := range ids {
		if v, ok := f.versions[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVersionRepo) ListByChat(_ context.Context, _ *gorm.DB, chatID uuid.UUID) ([]*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.DocVersion
	for _, v := range f.versions {
		if v.ChatID == chatID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVersionRepo) LatestByChat(_ context.Context, _ *gorm.DB, chatID uuid.UUID) (*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.DocVersion
	for _, v := range f.versions {
		if v.ChatID != chatID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no doc version for chat %s: %w", chatID, apperrors.ErrNotFound)
	}
	return latest, nil
}

func (f *fakeVersionRepo) UpdateContent(_ context.Context, _ *gorm.DB, id uuid.UUID, content string) (*types.DocVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("doc version %s: %w", id, apperrors.ErrNotFound)
	}
	v.Content = &content
	v.Status = types.DocVersionStatusDone
	return v, nil
}

func (f *fakeVersionRepo) FinalizeContent(_ context.Context, _ *gorm.DB, id uuid.UUID, content string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok || v.Status != types.DocVersionStatusPending {
		return false, nil
	}
	v.Content = &content
	v.Status = types.DocVersionStatusDone
	return true, nil
}

func (f *fakeVersionRepo) MarkFailed(_ context.Context, _ *gorm.DB, id uuid.UUID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok || v.Status != types.DocVersionStatusPending {
		return nil
	}
	v.Status = types.DocVersionStatusFailed
	v.Metadata = []byte(fmt.Sprintf(`{"error":%q}`, cause))
	return nil
}

type fakeOriginRepo struct {
	mu      sync.Mutex
	origins map[uuid.UUID]*types.DocOrigin
}

func newFakeOriginRepo() *fakeOriginRepo {
	return &fakeOriginRepo{origins: map[uuid.UUID]*types.DocOrigin{}}
}

func (f *fakeOriginRepo) Create(_ context.Context, _ *gorm.DB, o *types.DocOrigin) (*types.DocOrigin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	f.origins[o.ID] = o
	return o, nil
}

func (f *fakeOriginRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.DocOrigin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.origins[id]
	if !ok {
		return nil, fmt.Errorf("doc origin %s: %w", id, apperrors.ErrNotFound)
	}
	return o, nil
}

func (f *fakeOriginRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.DocOrigin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.DocOrigin
	for _, id := range ids {
		if o, ok := f.origins[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOriginRepo) UpdateContent(_ context.Context, _ *gorm.DB, id uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.origins[id]
	if !ok {
		return fmt.Errorf("doc origin %s: %w", id, apperrors.ErrNotFound)
	}
	o.Content = &content
	return nil
}

// ---- openai ----

type fakeAI struct {
	mu sync.Mutex

	chatResult openai.ChatResult
	chatErr    error
	chatCalls  []struct {
		Messages []openai.ChatMessage
		Tools    []openai.Tool
	}

	rewriteDeltas   []string
	rewriteErr      error
	rewriteDocument string
	rewriteInstr    string
	ocrURL          string

	// blockUntilCancel parks streaming calls on the context so tests can
	// exercise the job-timeout path.
	blockUntilCancel bool

	title string
}

func (f *fakeAI) StreamDocumentText(ctx context.Context, url string, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.ocrURL = url
	f.mu.Unlock()
	return f.stream(ctx, onDelta)
}

func (f *fakeAI) StreamRewrite(ctx context.Context, document, instruction string, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.rewriteDocument = document
	f.rewriteInstr = instruction
	f.mu.Unlock()
	return f.stream(ctx, onDelta)
}

func (f *fakeAI) stream(ctx context.Context, onDelta func(string)) (string, error) {
	if f.blockUntilCancel {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.rewriteErr != nil {
		return "", f.rewriteErr
	}
	full := ""
	for _, d := range f.rewriteDeltas {
		full += d
		if onDelta != nil {
			onDelta(d)
		}
	}
	return full, nil
}

func (f *fakeAI) ChatComplete(_ context.Context, messages []openai.ChatMessage, tools []openai.Tool) (openai.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls = append(f.chatCalls, struct {
		Messages []openai.ChatMessage
		Tools    []openai.Tool
	}{messages, tools})
	if f.chatErr != nil {
		return openai.ChatResult{}, f.chatErr
	}
	return f.chatResult, nil
}

func (f *fakeAI) GenerateTitle(_ context.Context, _ string) (string, error) {
	if f.title == "" {
		return "", fmt.Errorf("no title scripted")
	}
	return f.title, nil
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// ---- user repo ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo { return &fakeUserRepo{users: map[uuid.UUID]*types.User{}} }

func (f *fakeUserRepo) Create(_ context.Context, _ *gorm.DB) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &types.User{ID: uuid.New(), CreatedAt: time.Now()}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	return u, nil
}

// ---- bucket ----

type fakeBucket struct {
	mu      sync.Mutex
	uploads map[string]string
	failPut bool
}

func newFakeBucket() *fakeBucket { return &fakeBucket{uploads: map[string]string{}} }

func (f *fakeBucket) UploadFile(_ context.Context, key string, body io.Reader, _ string) error {
	if f.failPut {
		return fmt.Errorf("bucket unavailable")
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = string(raw)
	return nil
}

func (f *fakeBucket) SignedURL(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

func (f *fakeBucket) DeleteFile(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, key)
	return nil
}

func (f *fakeBucket) Close() error { return nil }

// ---- generation ----

type ocrCall struct {
	VersionID uuid.UUID
	OriginID  uuid.UUID
	ChatID    uuid.UUID
	ImageKey  string
}

type rewriteCall struct {
	VersionID   uuid.UUID
	OriginID    uuid.UUID
	ChatID      uuid.UUID
	BaseContent string
	Instruction string
}

type fakeGeneration struct {
	mu       sync.Mutex
	ocrs     []ocrCall
	rewrites []rewriteCall
}

func (f *fakeGeneration) StartOCR(versionID, originID, chatID uuid.UUID, imageKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocrs = append(f.ocrs, ocrCall{versionID, originID, chatID, imageKey})
}

func (f *fakeGeneration) StartRewrite(versionID, originID, chatID uuid.UUID, baseContent, instruction string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewrites = append(f.rewrites, rewriteCall{versionID, originID, chatID, baseContent, instruction})
}
