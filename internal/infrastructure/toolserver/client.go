package toolserver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/domain/entity"
	"github.com/localagent/runtime/internal/infrastructure/modelloader"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// Client maintains the map of tool servers and a tool-name → server-name
// cache so routing a call does not require a second discovery round-trip
// (spec §4.G).
type Client struct {
	mu      sync.RWMutex
	servers map[string]*server

	cacheMu   sync.RWMutex
	toolCache map[string]string

	retry  modelloader.RetryConfig
	logger *zap.Logger
}

// NewClient builds an empty client. Servers are added with AddServer.
func NewClient(retry modelloader.RetryConfig, logger *zap.Logger) *Client {
	return &Client{
		servers:   make(map[string]*server),
		toolCache: make(map[string]string),
		retry:     retry,
		logger:    logger,
	}
}

// AddServer spawns the child process and runs the MCP handshake with
// retry, then discovers its tools into the shared cache.
func (c *Client) AddServer(ctx context.Context, cfg ServerConfig) error {
	srv := newServer(cfg, c.logger)
	if err := srv.spawn(); err != nil {
		return err
	}

	_, err := modelloader.Retry(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, srv.initialize(ctx)
	})
	if err != nil {
		_ = srv.shutdown()
		return pkgerrors.NewToolConnectionError("failed to initialize tool server "+cfg.Name, err)
	}

	c.mu.Lock()
	c.servers[cfg.Name] = srv
	c.mu.Unlock()

	defs, err := srv.listTools(ctx)
	if err != nil {
		return pkgerrors.NewToolProtocolError("failed to discover tools on "+cfg.Name, err)
	}
	c.mergeIntoCache(defs)
	return nil
}

// RemoveServer shuts a server down and drops it (and its tools) from the
// routing cache.
func (c *Client) RemoveServer(name string) error {
	c.mu.Lock()
	srv, ok := c.servers[name]
	delete(c.servers, name)
	c.mu.Unlock()
	if !ok {
		return pkgerrors.NewToolServerNotFoundError("tool server not found: " + name)
	}

	c.cacheMu.Lock()
	for tool, server := range c.toolCache {
		if server == name {
			delete(c.toolCache, tool)
		}
	}
	c.cacheMu.Unlock()

	return srv.shutdown()
}

func (c *Client) mergeIntoCache(defs []entity.ToolDefinition) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	for _, d := range defs {
		c.toolCache[d.Name] = d.ServerName
	}
}

// DiscoverAll runs tools/list across every configured server and returns
// the aggregated definitions, refreshing the routing cache.
func (c *Client) DiscoverAll(ctx context.Context) ([]entity.ToolDefinition, error) {
	c.mu.RLock()
	servers := make([]*server, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	c.mu.RUnlock()

	var all []entity.ToolDefinition
	for _, srv := range servers {
		defs, err := srv.listTools(ctx)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("tool discovery failed", zap.String("server", srv.cfg.Name), zap.Error(err))
			}
			continue
		}
		all = append(all, defs...)
	}
	c.mergeIntoCache(all)
	return all, nil
}

// ExecuteToolCall routes call to the server that advertised it and awaits
// the result. Transport/protocol errors are captured into ToolResult.Error
// rather than returned, so the caller can feed the failure back into the
// conversation (spec §7); only "no server routes this tool, even after
// rediscovery" is a hard error.
func (c *Client) ExecuteToolCall(ctx context.Context, call entity.ToolCall) (entity.ToolResult, error) {
	serverName, ok := c.lookupServer(call.Name)
	if !ok {
		if _, err := c.DiscoverAll(ctx); err != nil {
			return entity.ToolResult{}, err
		}
		serverName, ok = c.lookupServer(call.Name)
		if !ok {
			return entity.ToolResult{}, pkgerrors.NewToolCallFailedError(
				"no tool server advertises \""+call.Name+"\"", nil)
		}
	}

	c.mu.RLock()
	srv, ok := c.servers[serverName]
	c.mu.RUnlock()
	if !ok {
		return entity.ToolResult{}, pkgerrors.NewToolCallFailedError(
			"routing cache points at unknown server "+serverName, nil)
	}

	result, err := srv.callTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return entity.ToolResult{CallID: call.ID, Error: err.Error()}, nil
	}
	return entity.ToolResult{CallID: call.ID, Result: result}, nil
}

func (c *Client) lookupServer(toolName string) (string, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	name, ok := c.toolCache[toolName]
	return name, ok
}

// Health reports per-server liveness.
func (c *Client) Health() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := make(map[string]bool, len(c.servers))
	for name, srv := range c.servers {
		status[name] = srv.healthy()
	}
	return status
}

// Shutdown closes every server.
func (c *Client) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, srv := range c.servers {
		_ = srv.shutdown()
	}
}
