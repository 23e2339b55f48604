// Package openai adapts the official OpenAI SDK to the framework's
// llm.Provider contract.
package openai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"maps"
	"slices"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

const (
	providerName = "openai"
	streamDepth  = 100
)

// Provider implements llm.Provider and llm.StreamingProvider for the
// OpenAI API.
type Provider struct {
	client     openaisdk.Client
	clientOpts []option.RequestOption
	model      string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the client at a proxy or an Azure OpenAI
// deployment. Composes with WithAPIKey.
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
// OPENAI_API_KEY.
func New(opts ...Option) *Provider {
	p := &Provider{model: "gpt-5-mini"}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openaisdk.NewClient(p.clientOpts...)
	return p
}

// NewWithAPIKey builds a provider authenticated with the given key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append(opts, WithAPIKey(apiKey))...)
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return providerName }

// resolveModel picks the per-request model when set, the provider
// default otherwise.
func (p *Provider) resolveModel(req llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *Provider) buildParams(req llm.ChatRequest) openaisdk.ChatCompletionNewParams {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    p.resolveModel(req),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openaisdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openaisdk.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, convertTool(tool))
		}
		params.Tools = tools
	}

	return params
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, mapError(err)
	}
	return convertResponse(completion), nil
}

// mapError translates SDK failures into framework error codes so callers
// can decide recoverability without knowing the SDK.
func mapError(err error) error {
	var apierr *openaisdk.Error
	if stderrors.As(err, &apierr) {
		return llm.ErrorFromStatus(providerName, apierr.StatusCode, apierr.Message)
	}
	return llm.TransportError(providerName, err)
}

// convertMessage maps one conversation message onto the SDK's message
// union by role.
func convertMessage(msg llm.Message) openaisdk.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openaisdk.SystemMessage(msg.Content)
	case llm.RoleUser:
		return openaisdk.UserMessage(msg.Content)
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			return convertAssistantToolCalls(msg)
		}
		return openaisdk.AssistantMessage(msg.Content)
	case llm.RoleTool:
		return openaisdk.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return openaisdk.UserMessage(msg.Content)
	}
}

// convertAssistantToolCalls builds the assistant turn that carries tool
// calls. The convenience constructors only cover plain text, so this one
// assembles the union by hand.
func convertAssistantToolCalls(msg llm.Message) openaisdk.ChatCompletionMessageParamUnion {
	toolCalls := make([]openaisdk.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		toolCalls = append(toolCalls, openaisdk.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	assistantMsg := openaisdk.ChatCompletionAssistantMessageParam{
		ToolCalls: toolCalls,
	}
	if msg.Content != "" {
		assistantMsg.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(msg.Content),
		}
	}
	return openaisdk.ChatCompletionMessageParamUnion{
		OfAssistant: &assistantMsg,
	}
}

// convertTool rebuilds a tool declaration as an SDK tool param. Schemas
// are usually map[string]any already; other carrier types go through a
// JSON round trip.
func convertTool(tool llm.Tool) openaisdk.ChatCompletionToolParam {
	schema, ok := tool.Function.Parameters.(map[string]any)
	if !ok && tool.Function.Parameters != nil {
		raw, _ := json.Marshal(tool.Function.Parameters)
		json.Unmarshal(raw, &schema)
	}

	return openaisdk.ChatCompletionToolParam{
		Type: "function",
		Function: openaisdk.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openaisdk.String(tool.Function.Description),
			Parameters:  openaisdk.FunctionParameters(schema),
		},
	}
}

func convertUsage(u openaisdk.CompletionUsage) llm.Usage {
	return llm.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

// convertResponse lifts the first choice of a completion into a
// ChatResponse.
func convertResponse(completion *openaisdk.ChatCompletion) *llm.ChatResponse {
	out := &llm.ChatResponse{
		Usage: convertUsage(completion.Usage),
	}

	if len(completion.Choices) == 0 {
		return out
	}
	choice := completion.Choices[0]
	out.Content = choice.Message.Content

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return out
}

// toolCallAssembler stitches streamed tool calls back together. The API
// emits each call's arguments as string fragments tagged with the call's
// index, interleaved across events.
type toolCallAssembler struct {
	calls map[int]*llm.ToolCall
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{calls: make(map[int]*llm.ToolCall)}
}

// observe records one delta. ID and name arrive on the first fragment of
// a call and are empty afterwards.
func (a *toolCallAssembler) observe(index int, id, name, fragment string) {
	call, ok := a.calls[index]
	if !ok {
		call = &llm.ToolCall{
			ID:   id,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name: name,
			},
		}
		a.calls[index] = call
	}
	call.Function.Arguments += fragment
}

// assembled returns the completed calls in index order. Indexes need not
// be contiguous.
func (a *toolCallAssembler) assembled() []llm.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	calls := make([]llm.ToolCall, 0, len(a.calls))
	for _, idx := range slices.Sorted(maps.Keys(a.calls)) {
		calls = append(calls, *a.calls[idx])
	}
	return calls
}

// ChatStream implements llm.StreamingProvider. Tool call deltas are
// reassembled and attached to the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))

	chunks := make(chan llm.StreamChunk, streamDepth)

	go func() {
		defer close(chunks)

		assembler := newToolCallAssembler()

		for stream.Next() {
			event := stream.Current()
			var chunk llm.StreamChunk

			if len(event.Choices) > 0 {
				choice := event.Choices[0]
				chunk.Content = choice.Delta.Content

				for _, tc := range choice.Delta.ToolCalls {
					assembler.observe(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
				}

				if choice.FinishReason != "" {
					chunk.Done = true
					chunk.ToolCalls = assembler.assembled()
				}
			}

			if event.Usage.TotalTokens > 0 {
				usage := convertUsage(event.Usage)
				chunk.Usage = &usage
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				chunks <- llm.StreamChunk{Error: ctx.Err()}
				return
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- llm.StreamChunk{Error: mapError(err)}
		}
	}()

	return chunks, nil
}

var (
	_ llm.Provider          = (*Provider)(nil)
	_ llm.StreamingProvider = (*Provider)(nil)
)
