package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/localagent/runtime/internal/application/scheduler"
	"github.com/localagent/runtime/internal/domain/chattemplate"
	"github.com/localagent/runtime/internal/domain/entity"
	"github.com/localagent/runtime/internal/infrastructure/sessionstore"
)

// fakeScheduler replays a fixed sequence of responses, one per Submit call,
// repeating the last one once exhausted. It lets these tests drive
// Orchestrator.Generate's iteration loop without a real model.
type fakeScheduler struct {
	mu        sync.Mutex
	responses []entity.GenerationResponse
	calls     int
}

func (f *fakeScheduler) Submit(ctx context.Context, job scheduler.Job) (entity.GenerationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func (f *fakeScheduler) SubmitStreaming(ctx context.Context, job scheduler.Job) (<-chan entity.StreamChunk, error) {
	ch := make(chan entity.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeScheduler) QueueSize() int { return 0 }
func (f *fakeScheduler) Stop()          {}

func (f *fakeScheduler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeToolClient executes every call successfully and records what it saw.
type fakeToolClient struct {
	mu    sync.Mutex
	calls []entity.ToolCall
}

func (f *fakeToolClient) DiscoverAll(ctx context.Context) ([]entity.ToolDefinition, error) {
	return nil, nil
}

func (f *fakeToolClient) ExecuteToolCall(ctx context.Context, call entity.ToolCall) (entity.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return entity.ToolResult{CallID: call.ID, Result: "ok"}, nil
}

func (f *fakeToolClient) Health() map[string]bool { return map[string]bool{} }
func (f *fakeToolClient) Shutdown()                {}

// newTestOrchestrator wires a real session store and chat template engine
// (both pure/in-memory, cheap to exercise for real) behind the fake
// scheduler/tool client above.
func newTestOrchestrator(t *testing.T, sched generationScheduler, tools toolClient) (*Orchestrator, *entity.Session) {
	t.Helper()
	sessions := sessionstore.New(sessionstore.DefaultConfig())
	template := chattemplate.NewEngine()
	orch := New(sessions, sched, template, tools, Config{}, nil)

	session, err := orch.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session.SetAvailableTools([]entity.ToolDefinition{{Name: "get_time", Description: "current time"}})
	session.AddMessage(entity.NewMessage(entity.RoleUser, "what time is it?"))
	if err := orch.UpdateSession(session); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	return orch, session
}

func TestGenerate_SingleTurn_NoToolCall(t *testing.T) {
	sched := &fakeScheduler{responses: []entity.GenerationResponse{
		{GeneratedText: "it is noon", FinishReason: entity.FinishReason{Kind: entity.FinishStopped}},
	}}
	tools := &fakeToolClient{}
	orch, session := newTestOrchestrator(t, sched, tools)

	resp, err := orch.Generate(context.Background(), entity.GenerationRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.GeneratedText != "it is noon" {
		t.Fatalf("got text %q, want the single-turn response verbatim", resp.GeneratedText)
	}
	if sched.callCount() != 1 {
		t.Fatalf("expected exactly one scheduler submission, got %d", sched.callCount())
	}
	if len(tools.calls) != 0 {
		t.Fatalf("expected no tool dispatch, got %d", len(tools.calls))
	}
}

func TestGenerate_ToolCallRoundTrip(t *testing.T) {
	toolCallText := `{"function_name": "get_time", "arguments": {}}`
	sched := &fakeScheduler{responses: []entity.GenerationResponse{
		{GeneratedText: toolCallText, FinishReason: entity.FinishReason{Kind: entity.FinishToolCall, Reason: "Tool call detected"}},
		{GeneratedText: "it is noon", FinishReason: entity.FinishReason{Kind: entity.FinishStopped}},
	}}
	tools := &fakeToolClient{}
	orch, session := newTestOrchestrator(t, sched, tools)

	resp, err := orch.Generate(context.Background(), entity.GenerationRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.GeneratedText != "it is noon" {
		t.Fatalf("got text %q, want the final turn's response", resp.GeneratedText)
	}
	if sched.callCount() != 2 {
		t.Fatalf("expected two scheduler submissions (tool turn + continuation), got %d", sched.callCount())
	}
	if len(tools.calls) != 1 || tools.calls[0].Name != "get_time" {
		t.Fatalf("expected one dispatched call to get_time, got %+v", tools.calls)
	}

	final, err := orch.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	var sawAssistant, sawToolResult bool
	for _, m := range final.Messages {
		if m.Role == entity.RoleAssistant && m.Content == toolCallText {
			sawAssistant = true
		}
		if m.Role == entity.RoleTool && m.ToolName == "get_time" {
			sawToolResult = true
		}
	}
	if !sawAssistant {
		t.Fatalf("expected the assistant's tool-call turn to be appended to session history")
	}
	if !sawToolResult {
		t.Fatalf("expected a tool-result message to be appended to session history")
	}
}

func TestGenerate_IterationCapReached(t *testing.T) {
	toolCallText := `{"function_name": "get_time", "arguments": {}}`
	// Every response signals a tool call, so the loop never finds a
	// non-tool turn and must hit MaxToolIterations.
	sched := &fakeScheduler{responses: []entity.GenerationResponse{
		{GeneratedText: toolCallText, FinishReason: entity.FinishReason{Kind: entity.FinishToolCall, Reason: "Tool call detected"}},
	}}
	tools := &fakeToolClient{}
	orch, session := newTestOrchestrator(t, sched, tools)

	resp, err := orch.Generate(context.Background(), entity.GenerationRequest{SessionID: session.ID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FinishReason.Kind != entity.FinishError || resp.FinishReason.Reason != "tool iteration limit" {
		t.Fatalf("got finish reason %+v, want Error(\"tool iteration limit\")", resp.FinishReason)
	}
	if sched.callCount() != MaxToolIterations {
		t.Fatalf("expected exactly %d scheduler submissions (the iteration cap), got %d", MaxToolIterations, sched.callCount())
	}
	if len(tools.calls) != MaxToolIterations {
		t.Fatalf("expected a tool dispatch per iteration, got %d", len(tools.calls))
	}
}

func TestHealth_ReportsQueueSizeAndToolStatus(t *testing.T) {
	sched := &fakeScheduler{responses: []entity.GenerationResponse{{}}}
	tools := &fakeToolClient{}
	orch, _ := newTestOrchestrator(t, sched, tools)

	status := orch.Health()
	if !status.Healthy {
		t.Fatalf("expected healthy status with no tool servers configured, got %+v", status)
	}
	if !status.ModelLoaded {
		t.Fatalf("expected ModelLoaded true once the orchestrator is constructed")
	}
	if status.QueueSize != 0 {
		t.Fatalf("got QueueSize %d, want 0 (the fake scheduler's reported depth)", status.QueueSize)
	}
	if status.ActiveSessions != 1 {
		t.Fatalf("got ActiveSessions %d, want 1 (the session created in setup)", status.ActiveSessions)
	}
}
