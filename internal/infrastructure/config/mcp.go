package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// mcpFile is the standalone YAML document an operator can hot-edit to
// add/remove tool servers without touching config.yaml or restarting the
// process (spec §1 "hot-reload of mcp_servers").
type mcpFile struct {
	Servers []MCPServerConfig `yaml:"mcp_servers"`
}

// LoadMCPServers reads the mcp_servers list from path. A missing file is not
// an error: it yields an empty list (no tool servers configured).
func LoadMCPServers(path string) ([]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mcp servers file %s: %w", path, err)
	}
	var f mcpFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mcp servers file %s: %w", path, err)
	}
	if err := validateMCPNames(f.Servers); err != nil {
		return nil, err
	}
	return f.Servers, nil
}

// WatchMCPServers watches path for changes and invokes onChange with the
// freshly parsed server list on every write, matching the live add/remove
// semantics of a tool client's AddServer/RemoveServer. The watcher runs
// until the returned stop function is called.
func WatchMCPServers(path string, logger *zap.Logger, onChange func([]MCPServerConfig)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create mcp servers watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch mcp servers file %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				servers, err := LoadMCPServers(path)
				if err != nil {
					logger.Warn("failed to reload mcp servers", zap.Error(err))
					continue
				}
				onChange(servers)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("mcp servers watcher error", zap.Error(watchErr))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
