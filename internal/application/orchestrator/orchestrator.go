// Package orchestrator ties every other component together: it validates,
// renders, schedules, detects tool calls, dispatches them, and re-enters
// generation, bounded by an iteration cap (spec §4.J). It is grounded on
// internal/domain/service/agent_loop.go's ReAct loop structure (generate →
// detect → act → continue, with hooks for each phase) and on
// original_source/llama-agent/src/agent.rs for the generate/generate_stream
// shape, with the REQUIRED deviation that spec.md hard-bounds the loop at
// MAX_TOOL_ITERATIONS=5 where the teacher's loop is unbounded.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/localagent/runtime/internal/application/scheduler"
	"github.com/localagent/runtime/internal/domain/chattemplate"
	"github.com/localagent/runtime/internal/domain/dependency"
	"github.com/localagent/runtime/internal/domain/entity"
	"github.com/localagent/runtime/internal/infrastructure/sessionstore"
	"github.com/localagent/runtime/internal/validation"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// MaxToolIterations is spec §9's fixed resolution of the open question
// between the source's MAX_TOOL_ITERATIONS constant and its looser code
// paths: 5, hard-coded.
const MaxToolIterations = 5

// generationScheduler is the narrow slice of *scheduler.Scheduler the
// orchestrator depends on, mirroring the InferenceEngine interface-boundary
// idiom in internal/infrastructure/modelhandle: a small consumer-defined
// interface so tests can substitute a fake worker instead of driving a real
// model mutex.
type generationScheduler interface {
	Submit(ctx context.Context, job scheduler.Job) (entity.GenerationResponse, error)
	SubmitStreaming(ctx context.Context, job scheduler.Job) (<-chan entity.StreamChunk, error)
	QueueSize() int
	Stop()
}

// toolClient is the narrow slice of *toolserver.Client the orchestrator
// depends on, for the same reason as generationScheduler above.
type toolClient interface {
	DiscoverAll(ctx context.Context) ([]entity.ToolDefinition, error)
	ExecuteToolCall(ctx context.Context, call entity.ToolCall) (entity.ToolResult, error)
	Health() map[string]bool
	Shutdown()
}

// Config configures model-family detection (a pure function of the
// configured model source, spec §4.E) and the dependency analyzer's tuning.
type Config struct {
	ModelSourceDescriptor string
	// FamilyOverride pins the template family instead of auto-detecting it
	// from ModelSourceDescriptor; leave it empty to auto-detect.
	FamilyOverride   chattemplate.Family
	DependencyConfig dependency.Config
}

// Orchestrator is the public surface spec §4.J names.
type Orchestrator struct {
	sessions  *sessionstore.Store
	scheduler generationScheduler
	template  *chattemplate.Engine
	tools     toolClient

	family Family
	depCfg dependency.Config

	sessionValidator *validation.SessionStateValidator
	messageValidator *validation.MessageContentValidator
	paramsValidator  *validation.ParametersValidator
	toolValidator    *validation.ToolCallValidator

	startedAt time.Time
	logger    *zap.Logger
}

// Family is re-exported so callers don't need to import chattemplate
// directly just to pass Config.
type Family = chattemplate.Family

// New builds the orchestrator from its already-constructed collaborators.
func New(
	sessions *sessionstore.Store,
	sched generationScheduler,
	template *chattemplate.Engine,
	tools toolClient,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:         sessions,
		scheduler:        sched,
		template:         template,
		tools:            tools,
		family:           chattemplate.ResolveFamily(cfg.ModelSourceDescriptor, cfg.FamilyOverride),
		depCfg:           cfg.DependencyConfig,
		sessionValidator: validation.NewSessionStateValidator(),
		messageValidator: validation.NewMessageContentValidator(),
		paramsValidator:  validation.NewParametersValidator(),
		toolValidator:    validation.NewToolCallValidator(),
		startedAt:        time.Now(),
		logger:           logger,
	}
}

// CreateSession mints a new empty session.
func (o *Orchestrator) CreateSession() (*entity.Session, error) {
	return o.sessions.Create()
}

// GetSession returns the current snapshot of a session.
func (o *Orchestrator) GetSession(id entity.SessionID) (*entity.Session, error) {
	session, ok := o.sessions.Get(id)
	if !ok {
		return nil, pkgerrors.NewSessionNotFoundError("session not found or expired: " + string(id))
	}
	return session, nil
}

// UpdateSession replaces a session wholesale.
func (o *Orchestrator) UpdateSession(session *entity.Session) error {
	return o.sessions.Update(session)
}

// AddMessage validates and appends one message to a session's history.
func (o *Orchestrator) AddMessage(id entity.SessionID, msg entity.Message) error {
	if err := o.messageValidator.Validate(msg); err != nil {
		return err
	}
	return o.sessions.AddMessage(id, msg)
}

// DiscoverTools aggregates tool discovery across every configured server
// and replaces the session's available tools wholesale.
func (o *Orchestrator) DiscoverTools(ctx context.Context, sessionID entity.SessionID) ([]entity.ToolDefinition, error) {
	session, err := o.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	tools, err := o.tools.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}
	session.SetAvailableTools(tools)
	if err := o.sessions.Update(session); err != nil {
		return nil, err
	}
	return tools, nil
}

// ExecuteTool validates call against the session's discovered tools, then
// dispatches it.
func (o *Orchestrator) ExecuteTool(ctx context.Context, call entity.ToolCall, session *entity.Session) (entity.ToolResult, error) {
	if err := o.toolValidator.Validate(call, session); err != nil {
		return entity.ToolResult{}, err
	}
	return o.tools.ExecuteToolCall(ctx, call)
}

// Generate runs the full tool loop for one turn and returns the final
// batch response (spec §4.J's algorithm).
func (o *Orchestrator) Generate(ctx context.Context, req entity.GenerationRequest) (entity.GenerationResponse, error) {
	if err := o.paramsValidator.Validate(req); err != nil {
		return entity.GenerationResponse{}, err
	}

	var last entity.GenerationResponse
	for iteration := 1; iteration <= MaxToolIterations; iteration++ {
		session, err := o.GetSession(req.SessionID)
		if err != nil {
			return entity.GenerationResponse{}, err
		}
		if err := o.sessionValidator.Validate(session); err != nil {
			return entity.GenerationResponse{}, err
		}

		prompt, err := o.template.RenderSession(session, o.family)
		if err != nil {
			return entity.GenerationResponse{}, err
		}

		resp, err := o.scheduler.Submit(ctx, scheduler.Job{
			Request:        req,
			Prompt:         prompt,
			DetectToolCall: o.detectToolCall(session),
		})
		if err != nil {
			return entity.GenerationResponse{}, err
		}
		last = resp

		if !resp.FinishReason.IsToolCall() {
			return resp, nil
		}

		calls, err := o.template.ExtractToolCalls(resp.GeneratedText)
		if err != nil || len(calls) == 0 {
			// Model emitted a false positive tool-call signal; surface the
			// text as-is rather than looping forever on nothing to act on.
			return resp, nil
		}

		if err := o.AddMessage(req.SessionID, entity.NewMessage(entity.RoleAssistant, resp.GeneratedText)); err != nil {
			return entity.GenerationResponse{}, err
		}

		results := o.dispatchCalls(ctx, calls, session)
		for i, call := range calls {
			result := results[i]
			msg := entity.NewToolResultMessage(call.ID, call.Name, result.Serialize())
			if err := o.AddMessage(req.SessionID, msg); err != nil {
				return entity.GenerationResponse{}, err
			}
		}
	}

	last.FinishReason = entity.FinishReason{Kind: entity.FinishError, Reason: "tool iteration limit"}
	return last, nil
}

// GenerateStream streams the first assistant turn; on a tool-call finish it
// synthesizes progress chunks for the tool execution, appends results, and
// resumes generation on the same stream (spec §9 Open Question 4).
func (o *Orchestrator) GenerateStream(ctx context.Context, req entity.GenerationRequest) (<-chan entity.StreamChunk, error) {
	if err := o.paramsValidator.Validate(req); err != nil {
		return nil, err
	}

	out := make(chan entity.StreamChunk, 100)
	go o.runStream(ctx, req, out)
	return out, nil
}

func (o *Orchestrator) runStream(ctx context.Context, req entity.GenerationRequest, out chan<- entity.StreamChunk) {
	defer close(out)

	for iteration := 1; iteration <= MaxToolIterations; iteration++ {
		session, err := o.GetSession(req.SessionID)
		if err != nil {
			out <- entity.StreamChunk{IsComplete: true, Err: err}
			return
		}
		if err := o.sessionValidator.Validate(session); err != nil {
			out <- entity.StreamChunk{IsComplete: true, Err: err}
			return
		}

		prompt, err := o.template.RenderSession(session, o.family)
		if err != nil {
			out <- entity.StreamChunk{IsComplete: true, Err: err}
			return
		}

		chunks, err := o.scheduler.SubmitStreaming(ctx, scheduler.Job{
			Request:        req,
			Prompt:         prompt,
			DetectToolCall: o.detectToolCall(session),
		})
		if err != nil {
			out <- entity.StreamChunk{IsComplete: true, Err: err}
			return
		}

		var generated string
		var tokens int
		var finish entity.FinishReason
		for chunk := range chunks {
			if chunk.Err != nil {
				out <- chunk
				return
			}
			generated += chunk.Text
			if chunk.IsComplete {
				tokens = chunk.TokenCount
				break
			}
			out <- chunk
		}
		finish = o.inferFinishFromDetection(session, generated)

		if !finish.IsToolCall() {
			out <- entity.StreamChunk{IsComplete: true, TokenCount: tokens}
			return
		}

		calls, err := o.template.ExtractToolCalls(generated)
		if err != nil || len(calls) == 0 {
			out <- entity.StreamChunk{IsComplete: true, TokenCount: tokens}
			return
		}

		if err := o.AddMessage(req.SessionID, entity.NewMessage(entity.RoleAssistant, generated)); err != nil {
			out <- entity.StreamChunk{IsComplete: true, Err: err}
			return
		}

		for _, call := range calls {
			out <- entity.StreamChunk{Text: encodeEvent(entity.AgentEvent{Type: entity.EventToolCall, ToolCall: &call})}
		}
		results := o.dispatchCalls(ctx, calls, session)
		for i, call := range calls {
			result := results[i]
			out <- entity.StreamChunk{Text: encodeEvent(entity.AgentEvent{Type: entity.EventToolResult, ToolResult: &result})}
			msg := entity.NewToolResultMessage(call.ID, call.Name, result.Serialize())
			if err := o.AddMessage(req.SessionID, msg); err != nil {
				out <- entity.StreamChunk{IsComplete: true, Err: err}
				return
			}
		}

		out <- entity.StreamChunk{Text: encodeEvent(entity.AgentEvent{
			Type:     entity.EventStepDone,
			StepInfo: &entity.StepInfo{Step: iteration, TokensUsed: tokens, FinishReason: finish.Reason},
		})}
	}

	out <- entity.StreamChunk{IsComplete: true, Err: pkgerrors.NewInternalError("tool iteration limit")}
}

// encodeEvent renders ev as its JSON wire form for embedding in a
// StreamChunk's Text field — the tool-call-progress narration spec §4.J's
// generate_stream leaves to "implementer's choice of format" (spec §9 Open
// Question 4). ev.Timestamp is stamped here so every call site doesn't have
// to.
func encodeEvent(ev entity.AgentEvent) string {
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return string(ev.Type)
	}
	return string(data)
}

// inferFinishFromDetection re-runs the tool-call detector on the final
// accumulated text, since the scheduler only reports the finish reason
// kind through the (already-consumed) batch path's FinishReason field;
// streaming instead signals via the detector closure shared with Generate.
func (o *Orchestrator) inferFinishFromDetection(session *entity.Session, generated string) entity.FinishReason {
	if o.detectToolCall(session)(generated) {
		return entity.FinishReason{Kind: entity.FinishToolCall, Reason: "Tool call detected"}
	}
	return entity.FinishReason{Kind: entity.FinishStopped}
}

func (o *Orchestrator) detectToolCall(session *entity.Session) func(string) bool {
	return func(accumulated string) bool {
		if len(session.AvailableTools) == 0 {
			return false
		}
		calls, err := o.template.ExtractToolCalls(accumulated)
		return err == nil && len(calls) > 0
	}
}

// dispatchCalls runs the dependency analyzer and executes calls either
// concurrently (bounded by an errgroup, spec §4.H "Parallel") or
// sequentially (spec §4.H "Sequential"), stopping sequential execution on
// the first fatal (routing) error. Per-call failures that aren't fatal are
// captured into the call's own ToolResult.Error rather than aborting the
// batch, so the model sees them on its next turn.
func (o *Orchestrator) dispatchCalls(ctx context.Context, calls []entity.ToolCall, session *entity.Session) []entity.ToolResult {
	plan := dependency.Analyze(calls, o.depCfg)
	results := make([]entity.ToolResult, len(calls))

	if plan.Parallel {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(len(calls))
		for i, call := range calls {
			i, call := i, call
			group.Go(func() error {
				result, err := o.ExecuteTool(gctx, call, session)
				if err != nil {
					result = entity.ToolResult{CallID: call.ID, Error: err.Error()}
				}
				results[i] = result
				return nil
			})
		}
		_ = group.Wait()
		return results
	}

	var fatal error
	for i, call := range calls {
		if fatal != nil {
			results[i] = entity.ToolResult{CallID: call.ID, Error: "skipped: " + fatal.Error()}
			continue
		}
		result, err := o.ExecuteTool(ctx, call, session)
		if err != nil {
			results[i] = entity.ToolResult{CallID: call.ID, Error: err.Error()}
			if pkgerrors.IsToolCallFailed(err) {
				fatal = multierr.Append(fatal, err)
			}
			continue
		}
		results[i] = result
	}
	return results
}

// Status reports operational health (spec §4.J "health").
type Status struct {
	Healthy        bool
	ModelLoaded    bool
	QueueSize      int
	ActiveSessions int
	Uptime         time.Duration
}

// Health reports {status, model_loaded, queue_size, active_sessions,
// uptime}. status is healthy iff the model is loaded and every configured
// tool server is live.
func (o *Orchestrator) Health() Status {
	allHealthy := true
	for _, up := range o.tools.Health() {
		if !up {
			allHealthy = false
		}
	}
	stats := o.sessions.Stats()
	return Status{
		Healthy:        allHealthy,
		ModelLoaded:    true,
		QueueSize:      o.scheduler.QueueSize(),
		ActiveSessions: stats.Active,
		Uptime:         time.Since(o.startedAt),
	}
}

// Shutdown stops the scheduler worker and every tool server.
func (o *Orchestrator) Shutdown() {
	o.scheduler.Stop()
	o.tools.Shutdown()
}
