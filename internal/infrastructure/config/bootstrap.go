package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "agent-runtime"

// Bootstrap ensures ~/.agent-runtime exists with a default config.yaml.
// Called once at startup. Safe to call multiple times — only creates
// missing items, never overwrites user edits.
func Bootstrap(logger *zap.Logger) error {
	root := homeDir()

	dirs := []string{
		root,
		filepath.Join(root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		logger.Debug("agent-runtime home directory OK", zap.String("home", root))
		return nil
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		logger.Warn("failed to write default config", zap.String("path", configPath), zap.Error(err))
		return nil
	}
	logger.Info("agent-runtime bootstrap complete", zap.String("home", root))
	return nil
}

const defaultConfig = `# agent-runtime configuration
# Auto-generated on first launch — feel free to edit.

model:
  source:
    huggingface:
      repo: ""        # "org/name", e.g. "Qwen/Qwen2.5-7B-Instruct-GGUF"
      filename: ""    # optional; auto-detected when empty
  batch_size: 512
  retry_config:
    max_retries: 3
    initial_delay_ms: 1000
    backoff_multiplier: 2.0
    max_delay_ms: 30000

queue_config:
  max_queue_size: 64
  request_timeout: 2m
  worker_threads: 1

session_config:
  max_sessions: 1000
  session_timeout: 1h

mcp_servers: []
# Example:
# mcp_servers:
#   - name: filesystem
#     command: "mcp-server-filesystem"
#     args: ["--root", "/workspace"]
#     timeout_secs: 30

log:
  level: info           # debug | info | warn | error
  format: json           # console | json

http:
  host: 0.0.0.0
  port: 8080
`
