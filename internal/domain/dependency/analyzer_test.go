package dependency

import (
	"testing"

	"github.com/localagent/runtime/internal/domain/entity"
)

func call(name string, args map[string]interface{}) entity.ToolCall {
	return entity.ToolCall{ID: name + "-id", Name: name, Arguments: args}
}

func TestAnalyze_SingleCall(t *testing.T) {
	plan := Analyze([]entity.ToolCall{call("read_file", nil)}, Config{})
	if plan.Parallel {
		t.Fatalf("expected sequential for a single call, got %+v", plan)
	}
}

func TestAnalyze_DuplicateName(t *testing.T) {
	calls := []entity.ToolCall{
		call("read_file", map[string]interface{}{"path": "/a"}),
		call("read_file", map[string]interface{}{"path": "/b"}),
	}
	plan := Analyze(calls, Config{})
	if plan.Parallel {
		t.Fatalf("expected sequential for duplicate tool names, got %+v", plan)
	}
}

func TestAnalyze_CrossReference(t *testing.T) {
	calls := []entity.ToolCall{
		call("search", map[string]interface{}{"query": "go"}),
		call("summarize", map[string]interface{}{"text": "${search}"}),
	}
	plan := Analyze(calls, Config{})
	if plan.Parallel {
		t.Fatalf("expected sequential when one call references another's result, got %+v", plan)
	}
}

func TestAnalyze_ExplicitConflictPair(t *testing.T) {
	calls := []entity.ToolCall{
		call("git_commit", nil),
		call("git_push", nil),
	}
	cfg := Config{ConflictPairs: [][2]string{{"git_commit", "git_push"}}}
	plan := Analyze(calls, cfg)
	if plan.Parallel {
		t.Fatalf("expected sequential for configured conflict pair, got %+v", plan)
	}
}

func TestAnalyze_InferredResourceConflict(t *testing.T) {
	calls := []entity.ToolCall{
		call("write_file", map[string]interface{}{"path": "/tmp/out.txt"}),
		call("delete_file", map[string]interface{}{"path": "/tmp/out.txt"}),
	}
	plan := Analyze(calls, Config{})
	if plan.Parallel {
		t.Fatalf("expected sequential for two calls writing the same path, got %+v", plan)
	}
}

func TestAnalyze_DeclaredResourceConflict(t *testing.T) {
	calls := []entity.ToolCall{
		call("tool_a", map[string]interface{}{"id": "1"}),
		call("tool_b", map[string]interface{}{"id": "1"}),
	}
	cfg := Config{
		ResourceDeclarations: map[string][]ResourceAccess{
			"tool_a": {{Resource: "db:row:1", Exclusive: true}},
			"tool_b": {{Resource: "db:row:1", Exclusive: false}},
		},
	}
	plan := Analyze(calls, cfg)
	if plan.Parallel {
		t.Fatalf("expected sequential for declared exclusive resource overlap, got %+v", plan)
	}
}

func TestAnalyze_DefaultParallel(t *testing.T) {
	calls := []entity.ToolCall{
		call("get_weather", map[string]interface{}{"city": "NYC"}),
		call("get_stock_price", map[string]interface{}{"ticker": "GOOG"}),
	}
	plan := Analyze(calls, Config{})
	if !plan.Parallel {
		t.Fatalf("expected parallel for unrelated independent calls, got %+v", plan)
	}
}

func TestAnalyze_ReadOnlyURLsDoNotConflict(t *testing.T) {
	calls := []entity.ToolCall{
		call("fetch_a", map[string]interface{}{"url": "https://example.com/a"}),
		call("fetch_b", map[string]interface{}{"url": "https://example.com/a"}),
	}
	plan := Analyze(calls, Config{})
	if !plan.Parallel {
		t.Fatalf("expected parallel for two non-exclusive reads of the same URL, got %+v", plan)
	}
}
