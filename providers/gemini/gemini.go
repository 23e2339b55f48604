// Package gemini adapts the Google Gen AI SDK to the framework's
// llm.Provider contract. Gemini has no separate tool call IDs, so the
// function name doubles as the call ID in both directions.
package gemini

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"google.golang.org/genai"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

const (
	providerName = "gemini"
	streamDepth  = 100
)

// Provider implements llm.Provider for the Google Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a Gemini provider. The SDK reads the API key from the
// GOOGLE_API_KEY or GEMINI_API_KEY environment variable.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, llm.TransportError(providerName, err)
	}
	return newProvider(client, opts), nil
}

// NewWithAPIKey creates a Gemini provider with an explicit API key.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, llm.TransportError(providerName, err)
	}
	return newProvider(client, opts), nil
}

func newProvider(client *genai.Client, opts []Option) *Provider {
	p := &Provider{
		client: client,
		model:  "gemini-3-flash-preview",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return providerName }

func (p *Provider) resolveModel(req llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *Provider) buildConfig(req llm.ChatRequest, system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseFormat == "json" {
		config.ResponseMIMEType = "application/json"
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertTools(req.Tools)},
		}
	}
	return config
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, system := convertMessages(req.Messages)
	config := p.buildConfig(req, system)

	resp, err := p.client.Models.GenerateContent(ctx, p.resolveModel(req), contents, config)
	if err != nil {
		return nil, mapError(err)
	}

	result := &llm.ChatResponse{Usage: convertUsage(resp.UsageMetadata)}
	if len(resp.Candidates) > 0 {
		result.Content, result.ToolCalls = collectParts(resp.Candidates[0].Content)
	}
	return result, nil
}

// Close is a no-op; the Gemini client holds no connections to release.
func (p *Provider) Close() error {
	return nil
}

// mapError translates SDK failures into framework error codes.
func mapError(err error) error {
	var apierr genai.APIError
	if stderrors.As(err, &apierr) {
		return llm.ErrorFromStatus(providerName, apierr.Code, apierr.Message)
	}
	return llm.TransportError(providerName, err)
}

// convertMessages converts framework messages to Gemini contents. The
// system prompt is returned separately because Gemini carries it in the
// request config; multiple system messages are joined in order.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			contents = append(contents, assistantContent(msg))
		case llm.RoleTool:
			contents = append(contents, toolResponseContent(msg))
		}
	}

	return contents, strings.Join(system, "\n\n")
}

// assistantContent rebuilds a model turn, replaying any tool calls the
// model made so the API sees the full exchange.
func assistantContent(msg llm.Message) *genai.Content {
	content := &genai.Content{Role: "model", Parts: []*genai.Part{}}
	if msg.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		json.Unmarshal([]byte(tc.Function.Arguments), &args)
		content.Parts = append(content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				Name: tc.Function.Name,
				Args: args,
			},
		})
	}
	return content
}

// toolResponseContent wraps a tool result as a function response part.
// Gemini requires responses to be objects; bare strings get wrapped.
func toolResponseContent(msg llm.Message) *genai.Content {
	var result map[string]any
	if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
		result = map[string]any{"result": msg.Content}
	}
	return &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{
				FunctionResponse: &genai.FunctionResponse{
					Name:     msg.ToolCallID, // function name stored as the call ID
					Response: result,
				},
			},
		},
	}
}

// convertTools converts framework tools to Gemini function declarations.
// Schemas round-trip through JSON because the SDK wants its own type.
func convertTools(tools []llm.Tool) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))

	for _, tool := range tools {
		var schema *genai.Schema
		if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
			json.Unmarshal(raw, &schema)
		}

		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  schema,
		})
	}

	return declarations
}

// collectParts flattens a candidate's parts into text plus tool calls.
// Both the blocking and streaming paths decode through here.
func collectParts(content *genai.Content) (string, []llm.ToolCall) {
	if content == nil {
		return "", nil
	}

	var text strings.Builder
	var calls []llm.ToolCall
	for _, part := range content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			raw, _ := json.Marshal(part.FunctionCall.Args)
			calls = append(calls, llm.ToolCall{
				ID:   part.FunctionCall.Name, // no separate IDs in Gemini
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(raw),
				},
			})
		}
	}
	return text.String(), calls
}

func convertUsage(meta *genai.GenerateContentResponseUsageMetadata) llm.Usage {
	if meta == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}

// ChatStream implements llm.StreamingProvider.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	contents, system := convertMessages(req.Messages)
	config := p.buildConfig(req, system)
	model := p.resolveModel(req)

	chunks := make(chan llm.StreamChunk, streamDepth)

	go func() {
		defer close(chunks)

		iter := p.client.Models.GenerateContentStream(ctx, model, contents, config)

		// iter is a Seq2; invoke it with a yield callback.
		iter(func(resp *genai.GenerateContentResponse, err error) bool {
			if err != nil {
				chunks <- llm.StreamChunk{Error: mapError(err)}
				return false
			}

			var chunk llm.StreamChunk
			if resp.UsageMetadata != nil {
				usage := convertUsage(resp.UsageMetadata)
				chunk.Usage = &usage
			}
			if len(resp.Candidates) > 0 {
				candidate := resp.Candidates[0]
				chunk.Content, chunk.ToolCalls = collectParts(candidate.Content)
				if candidate.FinishReason != "" {
					chunk.Done = true
				}
			}

			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				chunks <- llm.StreamChunk{Error: ctx.Err()}
				return false
			}
		})

		// Deliver a final done chunk if the stream ended without one.
		select {
		case chunks <- llm.StreamChunk{Done: true}:
		default:
		}
	}()

	return chunks, nil
}

var (
	_ llm.Provider          = (*Provider)(nil)
	_ llm.StreamingProvider = (*Provider)(nil)
)
