package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// ServerConfig describes one external tool server (spec §6 "mcp_servers").
type ServerConfig struct {
	Name        string
	Command     string
	Args        []string
	TimeoutSecs int // 0 means no per-call timeout
}

// server is the per-process record: child handle, stdio framing, and the
// monotonic request-id counter, all guarded by one mutex so only one
// request is ever in flight on a given server's stdio pair at a time.
type server struct {
	cfg ServerConfig

	mu              sync.Mutex
	cmd             *exec.Cmd
	stdin           io.WriteCloser
	stdout          *bufio.Reader
	nextID          uint64
	initialized     bool
	lastHealthCheck time.Time

	logger *zap.Logger
}

func newServer(cfg ServerConfig, logger *zap.Logger) *server {
	return &server{cfg: cfg, logger: logger}
}

// spawn execs the server's command with piped stdio. Stderr is inherited
// into a pipe for diagnostics but never parsed, per spec §4.G.
func (s *server) spawn() error {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return pkgerrors.NewToolConnectionError("failed to open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return pkgerrors.NewToolConnectionError("failed to open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return pkgerrors.NewToolConnectionError("failed to open stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return pkgerrors.NewToolConnectionError(fmt.Sprintf("failed to spawn tool server %q", s.cfg.Name), err)
	}
	go drainStderr(s.cfg.Name, stderr, s.logger)

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	return nil
}

func drainStderr(name string, r io.Reader, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if logger != nil {
			logger.Debug("tool server stderr", zap.String("server", name), zap.String("line", scanner.Text()))
		}
	}
}

// initialize runs the MCP handshake: initialize request, then the
// notifications/initialized notification.
func (s *server) initialize(ctx context.Context) error {
	params, _ := json.Marshal(initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      clientInfo{Name: "agent-runtime", Version: "0.1.0"},
	})
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return err
	}
	if err := s.notify("notifications/initialized", nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.initialized = true
	s.lastHealthCheck = time.Now()
	s.mu.Unlock()
	return nil
}

// listTools runs tools/list and returns the discovered definitions,
// stamped with this server's name.
func (s *server) listTools(ctx context.Context) ([]entity.ToolDefinition, error) {
	raw, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pkgerrors.NewToolProtocolError("malformed tools/list result", err)
	}
	defs := make([]entity.ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		defs = append(defs, entity.ToolDefinition{
			Name:             t.Name,
			Description:      t.Description,
			ParametersSchema: t.InputSchema,
			ServerName:       s.cfg.Name,
		})
	}
	return defs, nil
}

// callTool runs tools/call for one invocation.
func (s *server) callTool(ctx context.Context, name string, arguments interface{}) (interface{}, error) {
	if s.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}
	params, err := json.Marshal(toolsCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, pkgerrors.NewToolProtocolError("failed to marshal tool call arguments", err)
	}
	raw, err := s.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pkgerrors.NewToolProtocolError("malformed tools/call result", err)
	}
	return result, nil
}

// call sends one request and blocks for its matching response. Per-server
// serialization means at most one request is ever in flight here, so the
// first line read back is always this call's reply.
func (s *server) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.nextID++
	id := s.nextID
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := s.writeLine(req); err != nil {
		return nil, pkgerrors.NewToolConnectionError("failed to write request", err)
	}

	type readResult struct {
		resp rpcResponse
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		line, err := s.stdout.ReadString('\n')
		if err != nil && line == "" {
			done <- readResult{err: err}
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			done <- readResult{err: err}
			return
		}
		done <- readResult{resp: resp}
	}()

	select {
	case <-ctx.Done():
		// The read goroutine above is still blocked on s.stdout.ReadString.
		// Leaving it running would race the next call()'s own read off the
		// same unsynchronized bufio.Reader, so the server is killed here
		// rather than left attached: its stdio closes, the stray read
		// unblocks with an error and exits, and healthy() reports false. The
		// client does not restart the server; later calls routed to it fail
		// with a connection error.
		s.killLocked()
		return nil, pkgerrors.NewToolConnectionError("tool call timed out", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, pkgerrors.NewToolConnectionError("failed to read response", r.err)
		}
		if r.resp.Error != nil {
			return nil, pkgerrors.NewToolProtocolError(r.resp.Error.Message, nil)
		}
		return r.resp.Result, nil
	}
}

// notify sends a one-way JSON-RPC notification (no id, no response read).
func (s *server) notify(method string, params json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params}
	if err := s.writeLine(req); err != nil {
		return pkgerrors.NewToolConnectionError("failed to write notification", err)
	}
	return nil
}

func (s *server) writeLine(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := s.stdin.Write(data); err != nil {
		return err
	}
	if f, ok := s.stdin.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// healthy reports whether the child process is still live.
func (s *server) healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	if s.cmd.ProcessState != nil {
		return false // already exited
	}
	return true
}

// shutdown closes stdio, kills the process, and waits up to 5 seconds.
func (s *server) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

// killLocked closes stdio and kills the child, waiting up to 5 seconds. The
// caller must already hold s.mu.
func (s *server) killLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.stdin.Close()
	_ = s.cmd.Process.Kill()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
