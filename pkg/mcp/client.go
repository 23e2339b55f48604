// Package mcp bridges the tool registry and the Model Context Protocol in
// both directions: RegisterTools imports a remote MCP server's tools into
// a Registry, and Server exposes a Registry's tools to MCP clients.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/resilience"
)

const (
	clientName     = "haf"
	clientVersion  = "0.1.0"
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
	defaultToolTTL = 30 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry bounds the retry count and sets the starting backoff delay.
// Finer control over the policy goes through WithRetryPolicy.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retry.MaxAttempts = retries + 1
		}
		if backoff > 0 {
			c.retry.InitialDelay = backoff
		}
	}
}

// WithRetryPolicy replaces the whole retry policy. A MaxAttempts of 1
// disables retries.
func WithRetryPolicy(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable
// caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cache.ttl = ttl
		}
	}
}

// toolCache holds the last discovery response for a short TTL so agents
// assembling prompts do not hammer the server with ListTools calls.
type toolCache struct {
	ttl time.Duration

	mu      sync.Mutex
	tools   []mcp.Tool
	expires time.Time
}

func (tc *toolCache) get() []mcp.Tool {
	if tc.ttl <= 0 {
		return nil
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.tools) == 0 || time.Now().After(tc.expires) {
		return nil
	}
	return append([]mcp.Tool(nil), tc.tools...)
}

func (tc *toolCache) put(tools []mcp.Tool) {
	if tc.ttl <= 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tools = append([]mcp.Tool(nil), tools...)
	tc.expires = time.Now().Add(tc.ttl)
}

func (tc *toolCache) invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tools = nil
}

// Client wraps an mcp-go client with per-request timeouts, retries under
// a resilience policy, and a short-lived tool discovery cache.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cache     toolCache
}

// NewClient wraps an already-connected MCP client implementation.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	wrapped := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  defaultRetries + 1,
			InitialDelay: defaultBackoff,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		cache: toolCache{ttl: defaultToolTTL},
	}
	for _, opt := range opts {
		opt(wrapped)
	}
	return wrapped
}

// NewClientWithStdio spawns command as an MCP server subprocess and
// connects over its stdio. env entries are added to the inherited
// environment.
func NewClientWithStdio(command string, args []string, env map[string]string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, env, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol is NewClientWithStdio pinned to a specific
// protocol version.
func NewClientWithStdioProtocol(command string, args []string, env map[string]string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	stdioClient, err := client.NewStdioMCPClient(command, envSlice, args...)
	if err != nil {
		return nil, err
	}
	return connect(stdioClient, protocolVersion, opts...)
}

// NewClientWithStreamableHTTP connects to an MCP server at url over the
// Streamable HTTP transport.
func NewClientWithStreamableHTTP(url string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStreamableHTTPProtocol(url, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStreamableHTTPProtocol is NewClientWithStreamableHTTP
// pinned to a specific protocol version.
func NewClientWithStreamableHTTPProtocol(url, protocolVersion string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, err
	}
	return connect(httpClient, protocolVersion, opts...)
}

// connect starts the transport, runs the initialize handshake, and wraps
// the raw client.
func connect(raw *client.Client, protocolVersion string, opts ...ClientOption) (*Client, error) {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}

	if err := raw.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("starting mcp transport: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := raw.Initialize(ctx, initReq); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mcp initialize handshake: %w", err)
	}

	return NewClient(raw, opts...), nil
}

// ListTools retrieves the tools available on the server, serving from the
// discovery cache while it is fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cache.get(); cached != nil {
		return cached, nil
	}
	resp, err := call(ctx, c, func(reqCtx context.Context) (*mcp.ListToolsResult, error) {
		return c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.cache.put(resp.Tools)
	return resp.Tools, nil
}

// InvalidateToolCache drops the cached discovery response so the next
// ListTools hits the server again. Useful after the server signals a tool
// list change.
func (c *Client) InvalidateToolCache() {
	c.cache.invalidate()
}

// CallTool invokes the named tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	return call(ctx, c, func(reqCtx context.Context) (*mcp.CallToolResult, error) {
		return c.mcpClient.CallTool(reqCtx, req)
	})
}

// Ping checks that the server answers. It bypasses the tool cache and the
// retry policy: a probe should report current health, not health after
// backoff.
func (c *Client) Ping(ctx context.Context) error {
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	return c.mcpClient.Ping(reqCtx)
}

// Close shuts down the underlying transport.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// call runs one RPC under the client's retry policy, each attempt bounded
// by the per-request timeout. A timed-out request is retried like any
// other failure; cancellation of the caller's context ends the sequence
// at the next backoff wait.
func call[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	return resilience.DoWithResult(ctx, c.retry, func() (T, error) {
		reqCtx, cancel := c.requestContext(ctx)
		defer cancel()
		return fn(reqCtx)
	})
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
