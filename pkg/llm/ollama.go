package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

const (
	ollamaName        = "ollama"
	ollamaDefaultURL  = "http://localhost:11434"
	ollamaStreamDepth = 100
	ollamaHTTPTimeout = 2 * time.Minute

	// ollamaMaxLineBytes bounds one NDJSON event; a full model answer can
	// arrive as a single done line.
	ollamaMaxLineBytes = 4 << 20
)

// OllamaProvider implements Provider and StreamingProvider against a local
// Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a new OllamaProvider. An empty baseURL targets the
// default local server.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: ollamaHTTPTimeout},
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return ollamaName }

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []Tool         `json:"tools,omitempty"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatEvent is one /api/chat response object. Non-streaming calls
// return a single event with done=true; streaming returns one event per
// NDJSON line. Only the fields the framework reads are decoded.
type ollamaChatEvent struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func (e ollamaChatEvent) usage() Usage {
	return Usage{
		PromptTokens:     e.PromptEvalCount,
		CompletionTokens: e.EvalCount,
		TotalTokens:      e.PromptEvalCount + e.EvalCount,
	}
}

func (p *OllamaProvider) buildRequest(req ChatRequest, stream bool) ollamaRequest {
	payload := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    req.Tools,
	}
	if req.ResponseFormat == "json" {
		payload.Format = "json"
	}
	opts := map[string]any{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		payload.Options = opts
	}
	return payload
}

func (p *OllamaProvider) send(ctx context.Context, payload ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to marshal ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to create http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, TransportError(ollamaName, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, ErrorFromStatus(ollamaName, resp.StatusCode, string(bytes.TrimSpace(respBody)))
	}
	return resp, nil
}

// Chat implements Provider.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.send(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var event ollamaChatEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, errors.New(errors.CodeMalformedResponse, "failed to decode ollama response", err).
			WithContext("provider", ollamaName)
	}

	return &ChatResponse{
		Content:   event.Message.Content,
		ToolCalls: event.Message.ToolCalls,
		Usage:     event.usage(),
	}, nil
}

// ChatStream implements StreamingProvider. Ollama streams NDJSON events;
// each content delta becomes a chunk and the final done event carries the
// accumulated tool calls and usage.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.send(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, ollamaStreamDepth)
	go p.pump(ctx, resp.Body, chunks)
	return chunks, nil
}

// pump relays NDJSON events as stream chunks until the done event, an
// error, or cancellation ends the stream.
func (p *OllamaProvider) pump(ctx context.Context, body io.ReadCloser, chunks chan<- StreamChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), ollamaMaxLineBytes)
	var toolCalls []ToolCall

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			chunks <- StreamChunk{Error: ctx.Err()}
			return
		default:
		}

		var event ollamaChatEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue // skip malformed lines
		}

		// Ollama sends complete tool calls, not deltas.
		if len(event.Message.ToolCalls) > 0 {
			toolCalls = event.Message.ToolCalls
		}

		if event.Done {
			usage := event.usage()
			chunks <- StreamChunk{Done: true, ToolCalls: toolCalls, Usage: &usage}
			return
		}
		if event.Message.Content != "" {
			chunks <- StreamChunk{Content: event.Message.Content}
		}
	}
	if err := scanner.Err(); err != nil {
		chunks <- StreamChunk{Error: TransportError(ollamaName, err)}
	}
}

var _ StreamingProvider = (*OllamaProvider)(nil)
