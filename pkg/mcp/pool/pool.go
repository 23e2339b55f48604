// Package pool shares MCP client connections across agents.
//
// When several agents in one process talk to the same MCP servers, dialing
// a connection per agent wastes subprocesses and sockets. The pool keeps
// one lazily-dialed, reference-counted connection per registered server,
// probes it in the background, and closes it once it has sat unreferenced
// past the idle timeout.
//
//	p := pool.New(pool.WithProbeInterval(30 * time.Second))
//	defer p.Close()
//
//	p.RegisterStdio("filesystem", "npx", []string{"-y", "@modelcontextprotocol/server-filesystem"})
//	p.RegisterHTTP("search", "http://localhost:8080/mcp")
//
//	names, err := p.Attach(ctx, registry, "filesystem")
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/mcp"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

var (
	// ErrPoolClosed reports an operation against a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrServerNotFound reports a request for a server nobody registered.
	ErrServerNotFound = errors.New("server is not registered")

	// ErrInvalidServerConfig reports a registration the pool cannot act on.
	ErrInvalidServerConfig = errors.New("server configuration is invalid")
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultIdleTimeout   = 5 * time.Minute

	// probeTimeout bounds a single background ping.
	probeTimeout = 5 * time.Second
)

// Transport selects how the pool connects to an MCP server.
type Transport int

const (
	// TransportStdio spawns the server as a subprocess.
	TransportStdio Transport = iota
	// TransportHTTP connects over Streamable HTTP.
	TransportHTTP
)

// ServerConfig describes one MCP server the pool can connect to.
type ServerConfig struct {
	Name      string
	Transport Transport

	// Stdio transport.
	Command string
	Args    []string
	Env     map[string]string

	// HTTP transport.
	URL string

	// ClientOptions apply to the connection dialed for this server.
	ClientOptions []mcp.ClientOption
}

func (c ServerConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidServerConfig)
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("%w: stdio server %q needs a command", ErrInvalidServerConfig, c.Name)
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("%w: http server %q needs a url", ErrInvalidServerConfig, c.Name)
		}
	default:
		return fmt.Errorf("%w: unknown transport %d", ErrInvalidServerConfig, c.Transport)
	}
	return nil
}

// conn is the single shared connection for one server.
type conn struct {
	client    *mcp.Client
	refs      int
	idleSince time.Time
}

// counters accumulates pool activity. Snapshot through Pool.Stats.
type counters struct {
	dials        atomic.Int64
	dialErrors   atomic.Int64
	probesPassed atomic.Int64
	probesFailed atomic.Int64
}

// Pool keeps one shared MCP connection per registered server.
type Pool struct {
	mu      sync.Mutex
	servers map[string]ServerConfig
	conns   map[string]*conn

	probeInterval time.Duration
	idleTimeout   time.Duration
	closed        atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	counters counters
}

// Option configures the pool.
type Option func(*Pool)

// WithProbeInterval sets how often open connections are pinged.
func WithProbeInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.probeInterval = d
		}
	}
}

// WithIdleTimeout sets how long an unreferenced connection survives before
// the sweeper closes it.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.idleTimeout = d
		}
	}
}

// New creates a connection pool and starts its background prober.
func New(opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		servers:       make(map[string]ServerConfig),
		conns:         make(map[string]*conn),
		probeInterval: defaultProbeInterval,
		idleTimeout:   defaultIdleTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.probeLoop()

	return p
}

// RegisterStdio registers a subprocess MCP server.
func (p *Pool) RegisterStdio(name, command string, args []string, opts ...mcp.ClientOption) error {
	cfg := ServerConfig{Name: name, Transport: TransportStdio, Command: command, Args: args}
	cfg.ClientOptions = opts
	return p.Register(cfg)
}

// RegisterHTTP registers a Streamable HTTP MCP server.
func (p *Pool) RegisterHTTP(name, url string, opts ...mcp.ClientOption) error {
	cfg := ServerConfig{Name: name, Transport: TransportHTTP, URL: url}
	cfg.ClientOptions = opts
	return p.Register(cfg)
}

// Register registers a server with full configuration.
func (p *Pool) Register(cfg ServerConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers[cfg.Name] = cfg
	return nil
}

// Unregister removes a server and closes its connection if one is open.
// Holders of the connection will see it fail on their next call.
func (p *Pool) Unregister(server string) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.servers, server)
	if c, ok := p.conns[server]; ok {
		_ = c.client.Close()
		delete(p.conns, server)
	}
	return nil
}

// Get returns the shared connection for the named server, dialing it on
// first use. Callers hold a reference until they Release it.
func (p *Pool) Get(ctx context.Context, server string) (*mcp.Client, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	client, cfg, err := p.lease(server)
	if err != nil || client != nil {
		return client, err
	}

	// Dial outside the lock. A concurrent Get for the same server may race
	// us here; the loser's connection is closed in favor of the stored one.
	client, err = dial(cfg)
	if err != nil {
		p.counters.dialErrors.Add(1)
		return nil, err
	}
	p.counters.dials.Add(1)

	p.mu.Lock()
	if existing, ok := p.conns[server]; ok {
		existing.refs++
		winner := existing.client
		p.mu.Unlock()
		_ = client.Close()
		return winner, nil
	}
	p.conns[server] = &conn{client: client, refs: 1}
	p.mu.Unlock()

	slog.Debug("pool.dialed", slog.String("server", server))
	return client, nil
}

// lease hands out the open connection for server when there is one,
// bumping its reference count. A nil client with nil error means the
// caller must dial.
func (p *Pool) lease(server string) (*mcp.Client, ServerConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, ok := p.servers[server]
	if !ok {
		return nil, ServerConfig{}, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	if c, ok := p.conns[server]; ok {
		c.refs++
		return c.client, cfg, nil
	}
	return nil, cfg, nil
}

// Release drops one reference to the named server's connection. The
// connection stays open for reuse until the idle timeout passes.
func (p *Pool) Release(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[server]
	if !ok {
		return
	}
	if c.refs > 0 {
		c.refs--
	}
	if c.refs == 0 {
		c.idleSince = time.Now()
	}
}

// Attach imports the named server's tools into the registry and returns
// the registered tool names. The connection reference taken here is held
// for as long as the imported tools may be invoked; it is released when
// the pool closes or the caller calls Release.
func (p *Pool) Attach(ctx context.Context, reg *tools.Registry, server string) ([]string, error) {
	client, err := p.Get(ctx, server)
	if err != nil {
		return nil, err
	}
	names, err := mcp.RegisterTools(ctx, reg, client)
	if err != nil {
		p.Release(server)
		return nil, err
	}
	return names, nil
}

// Close shuts down the pool and every open connection.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for server, c := range p.conns {
		if err := c.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", server, err))
		}
	}
	p.conns = nil
	p.servers = nil

	return errors.Join(errs...)
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Servers      int
	Open         int
	Dials        int
	DialErrors   int
	ProbesPassed int
	ProbesFailed int
}

// Stats snapshots the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	servers, open := len(p.servers), len(p.conns)
	p.mu.Unlock()

	return Stats{
		Servers:      servers,
		Open:         open,
		Dials:        int(p.counters.dials.Load()),
		DialErrors:   int(p.counters.dialErrors.Load()),
		ProbesPassed: int(p.counters.probesPassed.Load()),
		ProbesFailed: int(p.counters.probesFailed.Load()),
	}
}

// ListServers returns the names of all registered servers, sorted.
func (p *Pool) ListServers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Sorted(maps.Keys(p.servers))
}

// ServerInfo returns the configuration of a registered server.
func (p *Pool) ServerInfo(server string) (ServerConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, ok := p.servers[server]
	return cfg, ok
}

func dial(cfg ServerConfig) (*mcp.Client, error) {
	switch cfg.Transport {
	case TransportStdio:
		return mcp.NewClientWithStdio(cfg.Command, cfg.Args, cfg.Env, cfg.ClientOptions...)
	case TransportHTTP:
		return mcp.NewClientWithStreamableHTTP(cfg.URL, cfg.ClientOptions...)
	default:
		return nil, fmt.Errorf("%w: unknown transport %d", ErrInvalidServerConfig, cfg.Transport)
	}
}

func (p *Pool) probeLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeAll()
			p.sweepIdle()
		}
	}
}

// probeAll pings every open connection. Ping sidesteps the client's tool
// discovery cache, so a dead server cannot hide behind a fresh cache
// entry. A connection that fails its probe and has no holders is dropped
// so the next Get redials.
func (p *Pool) probeAll() {
	p.mu.Lock()
	probes := make(map[string]*mcp.Client, len(p.conns))
	for server, c := range p.conns {
		probes[server] = c.client
	}
	p.mu.Unlock()

	for server, client := range probes {
		ctx, cancel := context.WithTimeout(p.ctx, probeTimeout)
		err := client.Ping(ctx)
		cancel()

		if err == nil {
			p.counters.probesPassed.Add(1)
			continue
		}
		p.counters.probesFailed.Add(1)
		slog.Debug("pool.probe.failed",
			slog.String("server", server),
			slog.String("error", err.Error()))
		p.dropBroken(server)
	}
}

// dropBroken closes a failed connection nobody holds. A referenced
// connection is left for its holders to observe the failure.
func (p *Pool) dropBroken(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[server]
	if !ok || c.refs > 0 {
		return
	}
	_ = c.client.Close()
	delete(p.conns, server)
}

// sweepIdle closes connections that sat unreferenced past the idle
// timeout.
func (p *Pool) sweepIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for server, c := range p.conns {
		if c.refs == 0 && !c.idleSince.IsZero() && now.Sub(c.idleSince) > p.idleTimeout {
			_ = c.client.Close()
			delete(p.conns, server)
			slog.Debug("pool.idle.closed", slog.String("server", server))
		}
	}
}
