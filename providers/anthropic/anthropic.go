// Package anthropic adapts the official Anthropic SDK to the framework's
// llm.Provider contract. The Anthropic API differs from OpenAI-style chat
// in two ways handled here: the system prompt travels outside the message
// list, and tool results are sent back as user messages.
package anthropic

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

const (
	providerName = "anthropic"
	streamDepth  = 100

	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// Provider implements llm.Provider and llm.StreamingProvider for the
// Anthropic API.
type Provider struct {
	client     anthropicsdk.Client
	clientOpts []option.RequestOption
	model      string
	maxTokens  int64
}

// Option customizes a Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithMaxTokens sets the default max token budget. The Anthropic API
// requires one on every request.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) {
		p.maxTokens = tokens
	}
}

// WithBaseURL points the client at a proxy or gateway. Composes with
// WithAPIKey.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithBaseURL(url))
	}
}

// WithAPIKey authenticates with an explicit key instead of the
// environment.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithAPIKey(apiKey))
	}
}

// New builds a provider. Without options the client authenticates from
// ANTHROPIC_API_KEY.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropicsdk.NewClient(p.clientOpts...)
	return p
}

// NewWithAPIKey builds a provider authenticated with the given key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append(opts, WithAPIKey(apiKey))...)
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return providerName }

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	message, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, mapError(err)
	}
	return convertResponse(message), nil
}

// ChatStream implements llm.StreamingProvider. Text deltas are forwarded
// as they arrive; tool calls assemble across the whole stream, so they
// ride on the final chunk together with usage.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	chunks := make(chan llm.StreamChunk, streamDepth)

	go func() {
		defer close(chunks)

		var acc anthropicsdk.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				chunks <- llm.StreamChunk{Error: llm.TransportError(providerName, err)}
				return
			}

			deltaEvent, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := deltaEvent.Delta.AsAny().(anthropicsdk.TextDelta)
			if !ok || text.Text == "" {
				continue
			}

			select {
			case chunks <- llm.StreamChunk{Content: text.Text}:
			case <-ctx.Done():
				chunks <- llm.StreamChunk{Error: ctx.Err()}
				return
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- llm.StreamChunk{Error: mapError(err)}
			return
		}

		final := convertResponse(&acc)
		chunks <- llm.StreamChunk{
			ToolCalls: final.ToolCalls,
			Usage:     &final.Usage,
			Done:      true,
		}
	}()

	return chunks, nil
}

// resolveModel picks the per-request model when set, the provider
// default otherwise.
func (p *Provider) resolveModel(req llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// buildParams maps a framework request onto the Messages API params.
func (p *Provider) buildParams(req llm.ChatRequest) anthropicsdk.MessageNewParams {
	budget := p.maxTokens
	if req.MaxTokens > 0 {
		budget = int64(req.MaxTokens)
	}

	systemPrompt, messages := splitSystem(req.Messages)

	params := anthropicsdk.MessageNewParams{
		Model:     p.resolveModel(req),
		MaxTokens: budget,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, convertTool(tool))
	}
	return params
}

// splitSystem pulls the system prompt out of the transcript. The API takes
// it as a top-level field rather than a message.
func splitSystem(msgs []llm.Message) (string, []anthropicsdk.MessageParam) {
	var system string
	converted := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			system = msg.Content
			continue
		}
		converted = append(converted, convertMessage(msg))
	}
	return system, converted
}

// mapError translates SDK failures into framework error codes.
func mapError(err error) error {
	var apierr *anthropicsdk.Error
	if stderrors.As(err, &apierr) {
		return llm.ErrorFromStatus(providerName, apierr.StatusCode, apierr.RawJSON())
	}
	return llm.TransportError(providerName, err)
}

// convertMessage converts a framework message to an Anthropic turn.
func convertMessage(msg llm.Message) anthropicsdk.MessageParam {
	switch msg.Role {
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			return convertAssistantToolUse(msg)
		}
		return anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
	case llm.RoleTool:
		// Anthropic requires tool results as user messages.
		return anthropicsdk.NewUserMessage(
			anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
		)
	default:
		// User, and any unrecognized role rides as user.
		return anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
	}
}

// convertAssistantToolUse builds the assistant turn that carries tool_use
// blocks, preceded by a text block when the turn also had text.
func convertAssistantToolUse(msg llm.Message) anthropicsdk.MessageParam {
	blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		json.Unmarshal([]byte(tc.Function.Arguments), &args)
		blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, args, tc.Function.Name))
	}
	return anthropicsdk.NewAssistantMessage(blocks...)
}

// convertTool rebuilds a tool declaration as an Anthropic tool param.
// The input schema crosses via JSON because the SDK models it as a typed
// struct rather than a free-form map.
func convertTool(tool llm.Tool) anthropicsdk.ToolUnionParam {
	var schema anthropicsdk.ToolInputSchemaParam
	if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
		json.Unmarshal(raw, &schema)
	}

	return anthropicsdk.ToolUnionParam{
		OfTool: &anthropicsdk.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropicsdk.String(tool.Function.Description),
			InputSchema: schema,
		},
	}
}

// convertResponse converts an Anthropic message to the framework format.
// Text and tool_use blocks may interleave; text concatenates in order and
// tool calls keep their positions.
func convertResponse(message *anthropicsdk.Message) *llm.ChatResponse {
	var text strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:       block.ID,
				Type:     llm.ToolTypeFunction,
				Function: llm.FunctionCall{Name: block.Name, Arguments: string(args)},
			})
		}
	}

	return &llm.ChatResponse{
		Content:   text.String(),
		ToolCalls: toolCalls,
		Usage:     convertUsage(message.Usage),
	}
}

func convertUsage(u anthropicsdk.Usage) llm.Usage {
	in, out := int(u.InputTokens), int(u.OutputTokens)
	return llm.Usage{
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	}
}

var (
	_ llm.Provider          = (*Provider)(nil)
	_ llm.StreamingProvider = (*Provider)(nil)
)
