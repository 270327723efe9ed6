package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/docscan-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docscan-backend/internal/pkg/httpx"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// ChatMessage is one turn of a chat-completion prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// Tool is a callable capability offered to the model alongside a prompt.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatResult reports what the model did with a tool-bearing prompt: the text
// it produced (possibly empty) and whether it chose to invoke a tool.
type ChatResult struct {
	Text        string
	ToolInvoked bool
}

// Client is the OpenAI API surface the backend consumes.
type Client interface {
	// StreamDocumentText runs OCR over the image behind url, invoking onDelta
	// for every text fragment as it arrives, and returns the full text.
	StreamDocumentText(ctx context.Context, url string, onDelta func(delta string)) (string, error)

	// StreamRewrite regenerates document text from the current content plus a
	// user instruction, streaming fragments like StreamDocumentText.
	StreamRewrite(ctx context.Context, document string, instruction string, onDelta func(delta string)) (string, error)

	// ChatComplete runs a non-streaming turn with optional tools.
	ChatComplete(ctx context.Context, messages []ChatMessage, tools []Tool) (ChatResult, error)

	GenerateTitle(ctx context.Context, content string) (string, error)

	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	ocrModel   string
	embedModel string
	httpClient *http.Client

	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	ocrModel := strings.TrimSpace(os.Getenv("OPENAI_OCR_MODEL"))
	if ocrModel == "" {
		ocrModel = "gpt-4o"
	}
	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 180
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:        log.With("client", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		ocrModel:   ocrModel,
		embedModel: embed,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Chat completions --------------------

type chatCompletionMessage struct {
	Role      string               `json:"role"`
	Content   any                  `json:"content"`
	ToolCalls []chatToolCallResult `json:"tool_calls,omitempty"`
}

type chatToolCallResult struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatToolSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
	Tools    []chatToolSpec          `json:"tools,omitempty"`
	Stream   bool                    `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
}

func (c *client) ChatComplete(ctx context.Context, messages []ChatMessage, tools []Tool) (ChatResult, error) {
	var out ChatResult
	if len(messages) == 0 {
		return out, fmt.Errorf("messages required")
	}

	req := chatCompletionRequest{Model: c.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range tools {
		spec := chatToolSpec{Type: "function"}
		spec.Function.Name = t.Name
		spec.Function.Description = t.Description
		spec.Function.Parameters = t.Parameters
		if spec.Function.Parameters == nil {
			spec.Function.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		req.Tools = append(req.Tools, spec)
	}

	var resp chatCompletionResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return out, err
	}
	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("openai chat completion returned no choices")
	}

	choice := resp.Choices[0]
	if s, ok := choice.Message.Content.(string); ok {
		out.Text = strings.TrimSpace(s)
	}
	out.ToolInvoked = len(choice.Message.ToolCalls) > 0
	return out, nil
}

func (c *client) GenerateTitle(ctx context.Context, content string) (string, error) {
	res, err := c.ChatComplete(ctx, []ChatMessage{
		{Role: "system", Content: "You are a title generator assistant. Generate a title for the user's content without any comments. Answer only the title in a few words."},
		{Role: "user", Content: content},
	}, nil)
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", fmt.Errorf("openai returned empty title")
	}
	return res.Text, nil
}

// -------------------- Streaming --------------------

const ocrSystemPrompt = `You are a professional at recognizing text from images. ` +
	`Convert all visible text in the image into readable Markdown. ` +
	`Fix grammar, spelling and punctuation mistakes, reconstruct illegible fragments from context, ` +
	`and never change names of people or organizations. ` +
	`Output only the recognition result, with no extra commentary.`

const rewriteSystemPrompt = `You are a document editor. You are given the current text of a document ` +
	`and an instruction from its owner. Produce the full rewritten document in Markdown, ` +
	`with no extra commentary.`

func (c *client) StreamDocumentText(ctx context.Context, url string, onDelta func(delta string)) (string, error) {
	req := chatCompletionRequest{
		Model: c.ocrModel,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: ocrSystemPrompt},
			{
				Role: "user",
				Content: []map[string]any{
					{"type": "image_url", "image_url": map[string]any{"url": url}},
				},
			},
		},
		Stream: true,
	}
	return c.streamCompletion(ctx, req, onDelta)
}

func (c *client) StreamRewrite(ctx context.Context, document string, instruction string, onDelta func(delta string)) (string, error) {
	req := chatCompletionRequest{
		Model: c.ocrModel,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: rewriteSystemPrompt},
			{Role: "assistant", Content: document},
			{Role: "user", Content: instruction},
		},
		Stream: true,
	}
	return c.streamCompletion(ctx, req, onDelta)
}

func (c *client) streamCompletion(ctx context.Context, reqBody chatCompletionRequest, onDelta func(delta string)) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		delta, err := parseCompletionDelta(data)
		if err != nil {
			return err
		}
		if delta == "" {
			return nil
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

// parseCompletionDelta extracts the content fragment of one streamed
// chat-completion event, returning "" for sentinels and non-delta events.
func parseCompletionDelta(data string) (string, error) {
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return "", nil
	}

	var obj struct {
		Error   any `json:"error"`
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		// Unknown event shapes are skipped, not fatal.
		return "", nil
	}
	if obj.Error != nil {
		b, _ := json.Marshal(obj.Error)
		return "", fmt.Errorf("openai stream error: %s", string(b))
	}
	if len(obj.Choices) == 0 {
		return "", nil
	}
	return obj.Choices[0].Delta.Content, nil
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: c.embedModel,
		Input: clean,
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(clean) {
		return nil, fmt.Errorf("openai embeddings: requested %d, got %d", len(clean), len(resp.Data))
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	return out, nil
}
