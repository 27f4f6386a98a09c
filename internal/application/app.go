// Package application is the dependency-injection root: it builds the
// model-loading pipeline, the generation scheduler, the session store, the
// tool-server client, and the agent orchestrator from a Config, then wires
// the HTTP/WS boundary on top. It is grounded on the teacher's
// internal/application/app.go wiring shape (config/logger fields, staged
// init* methods, Start/Stop lifecycle), retargeted from the gateway's
// DB/LLM-router/Telegram/gRPC wiring to this runtime's model/session/tool
// pipeline.
package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/application/orchestrator"
	"github.com/localagent/runtime/internal/application/scheduler"
	"github.com/localagent/runtime/internal/domain/chattemplate"
	"github.com/localagent/runtime/internal/domain/dependency"
	"github.com/localagent/runtime/internal/infrastructure/config"
	"github.com/localagent/runtime/internal/infrastructure/modelhandle"
	"github.com/localagent/runtime/internal/infrastructure/modelhandle/refengine"
	"github.com/localagent/runtime/internal/infrastructure/modelloader"
	"github.com/localagent/runtime/internal/infrastructure/sessionstore"
	"github.com/localagent/runtime/internal/infrastructure/toolserver"
	httpiface "github.com/localagent/runtime/internal/interfaces/http"
	wsiface "github.com/localagent/runtime/internal/interfaces/websocket"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// App is the assembled runtime: every collaborator the orchestrator needs,
// plus the HTTP server sitting on top of it.
type App struct {
	config *config.Config
	logger *zap.Logger

	cache    *modelloader.Cache
	loader   *modelloader.Loader
	handle   *modelhandle.Handle
	sched    *scheduler.Scheduler
	sessions *sessionstore.Store
	tools    *toolserver.Client
	template *chattemplate.Engine
	orch     *orchestrator.Orchestrator

	httpServer  *httpiface.Server
	stopWatcher func()
}

// NewApp builds the full dependency graph but does not load the model or
// start listening; call Start for that.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{config: cfg, logger: logger}

	fs := afero.NewOsFs()
	cacheRoot := filepath.Join(homeDir(), "models", "cache")
	cache, err := modelloader.NewCache(fs, cacheRoot, modelloader.DefaultSizeCap, false, logger)
	if err != nil {
		return nil, fmt.Errorf("init model cache: %w", err)
	}
	app.cache = cache

	registry := modelloader.NewHTTPRegistry(&http.Client{Timeout: 5 * time.Minute}, fs, "https://huggingface.co")
	retry := retryConfigFrom(cfg.Model.RetryConfig)
	workDir := filepath.Join(homeDir(), "models", "work")
	app.loader = modelloader.NewLoader(fs, cache, registry, retry, workDir, logger)

	app.sessions = sessionstore.New(sessionstore.Config{
		MaxSessions:    cfg.Session.MaxSessions,
		SessionTimeout: cfg.Session.SessionTimeout,
	})

	app.tools = toolserver.NewClient(retry, logger)
	app.template = chattemplate.NewEngine()

	return app, nil
}

// Start loads the model, connects configured tool servers, starts the
// scheduler, and brings up the HTTP/WS listener.
func (app *App) Start(ctx context.Context) error {
	source, err := modelSourceFrom(app.config.Model.Source)
	if err != nil {
		return fmt.Errorf("resolve model source: %w", err)
	}

	loaded, err := app.loader.Load(ctx, source, newReferenceEngine)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	app.handle = loaded.Handle
	app.logger.Info("model loaded",
		zap.String("path", loaded.Path),
		zap.Int64("size_bytes", loaded.Metadata.SizeBytes),
		zap.Bool("cache_hit", loaded.Metadata.CacheHit),
		zap.Duration("load_time", loaded.Metadata.LoadTime),
	)

	app.sched = scheduler.New(scheduler.Config{
		MaxQueueSize:   app.config.Queue.MaxQueueSize,
		RequestTimeout: app.config.Queue.RequestTimeout,
		WorkerThreads:  app.config.Queue.WorkerThreads,
	}, app.handle, app.logger)

	for _, mcp := range app.config.MCP {
		if err := app.tools.AddServer(ctx, toolserver.ServerConfig{
			Name:        mcp.Name,
			Command:     mcp.Command,
			Args:        mcp.Args,
			TimeoutSecs: mcp.TimeoutSecs,
		}); err != nil {
			app.logger.Error("failed to start mcp server", zap.String("name", mcp.Name), zap.Error(err))
		}
	}

	mcpPath := filepath.Join(homeDir(), "mcp_servers.yaml")
	stop, err := config.WatchMCPServers(mcpPath, app.logger, app.reconcileMCPServers)
	if err != nil {
		app.logger.Debug("mcp servers hot-reload disabled", zap.Error(err))
	} else {
		app.stopWatcher = stop
	}

	app.orch = orchestrator.New(app.sessions, app.sched, app.template, app.tools, orchestrator.Config{
		ModelSourceDescriptor: modelSourceDescriptor(app.config.Model.Source),
		FamilyOverride:        familyOverrideFrom(app.config.Model.ChatTemplateFamily),
		DependencyConfig:      dependency.Config{},
	}, app.logger)

	wsHandler := wsiface.NewHandler(app.orch, app.logger)
	app.httpServer = httpiface.NewServer(httpiface.Config{
		Host: app.config.HTTP.Host,
		Port: app.config.HTTP.Port,
		Mode: "release",
	}, app.orch, wsHandler, app.logger)

	return app.httpServer.Start()
}

// Stop shuts down the listener, the tool servers, and the scheduler.
func (app *App) Stop(ctx context.Context) error {
	if app.stopWatcher != nil {
		app.stopWatcher()
	}
	var err error
	if app.httpServer != nil {
		err = app.httpServer.Stop(ctx)
	}
	if app.orch != nil {
		app.orch.Shutdown()
	}
	return err
}

// Orchestrator exposes the orchestrator for callers embedding the runtime
// (e.g. a REPL) without going through HTTP.
func (app *App) Orchestrator() *orchestrator.Orchestrator { return app.orch }

// Logger exposes the shared logger.
func (app *App) Logger() *zap.Logger { return app.logger }

// reconcileMCPServers is the hot-reload callback: it adds/updates servers
// present in the new list and removes ones dropped from it.
func (app *App) reconcileMCPServers(servers []config.MCPServerConfig) {
	seen := make(map[string]bool, len(servers))
	for _, mcp := range servers {
		seen[mcp.Name] = true
		if err := app.tools.AddServer(context.Background(), toolserver.ServerConfig{
			Name:        mcp.Name,
			Command:     mcp.Command,
			Args:        mcp.Args,
			TimeoutSecs: mcp.TimeoutSecs,
		}); err != nil {
			app.logger.Warn("failed to reconcile mcp server", zap.String("name", mcp.Name), zap.Error(err))
		}
	}
	for name := range app.tools.Health() {
		if !seen[name] {
			if err := app.tools.RemoveServer(name); err != nil {
				app.logger.Warn("failed to remove stale mcp server", zap.String("name", name), zap.Error(err))
			}
		}
	}
}

func newReferenceEngine(path string) (modelhandle.InferenceEngine, error) {
	return refengine.New(0), nil
}

func retryConfigFrom(rc config.RetryConfigFile) modelloader.RetryConfig {
	cfg := modelloader.DefaultRetryConfig()
	if rc.MaxRetries > 0 {
		cfg.MaxRetries = rc.MaxRetries
	}
	if rc.InitialDelayMs > 0 {
		cfg.InitialDelay = time.Duration(rc.InitialDelayMs) * time.Millisecond
	}
	if rc.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = rc.BackoffMultiplier
	}
	if rc.MaxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	return cfg
}

func modelSourceFrom(src config.ModelSourceConfig) (modelloader.ModelSource, error) {
	switch {
	case src.HuggingFace != nil:
		return modelloader.HuggingFaceSource(src.HuggingFace.Repo, src.HuggingFace.Filename), nil
	case src.Local != nil:
		return modelloader.LocalSource(src.Local.Folder, src.Local.Filename), nil
	default:
		return modelloader.ModelSource{}, pkgerrors.NewModelInvalidConfigError("model.source: exactly one of huggingface or local must be set")
	}
}

// familyOverrideFrom maps the config-file value to a chattemplate.Family
// override; "auto" (the default) and any unrecognized value both mean "let
// ResolveFamily auto-detect."
func familyOverrideFrom(value string) chattemplate.Family {
	switch value {
	case string(chattemplate.FamilyChatML), string(chattemplate.FamilyPhi3), string(chattemplate.FamilyFallback):
		return chattemplate.Family(value)
	default:
		return ""
	}
}

func modelSourceDescriptor(src config.ModelSourceConfig) string {
	if src.HuggingFace != nil {
		return src.HuggingFace.Repo + "/" + src.HuggingFace.Filename
	}
	if src.Local != nil {
		return src.Local.Folder + "/" + src.Local.Filename
	}
	return ""
}

// homeDir mirrors config's own home-directory resolution; kept local since
// config does not export it.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agent-runtime")
	}
	return filepath.Join(home, ".agent-runtime")
}
