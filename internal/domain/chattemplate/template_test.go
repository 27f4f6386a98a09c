package chattemplate

import (
	"strings"
	"testing"

	"github.com/localagent/runtime/internal/domain/entity"
)

func TestDetectFamily(t *testing.T) {
	cases := map[string]Family{
		"Qwen/Qwen2.5-7B-Instruct": FamilyChatML,
		"microsoft/Phi-3-mini":     FamilyPhi3,
		"TheBloke/Llama-2-7B":      FamilyChatML,
	}
	for source, want := range cases {
		if got := DetectFamily(source); got != want {
			t.Errorf("DetectFamily(%q) = %q, want %q", source, got, want)
		}
	}
}

func TestRenderSession_ChatML(t *testing.T) {
	session := entity.NewSession()
	session.AddMessage(entity.NewMessage(entity.RoleUser, "hello"))

	engine := NewEngine()
	prompt, err := engine.RenderSession(session, FamilyChatML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "<|im_start|>user\nhello<|im_end|>\n") {
		t.Fatalf("prompt missing rendered user turn: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "<|im_start|>assistant\n") {
		t.Fatalf("prompt missing trailing assistant cue: %q", prompt)
	}
}

func TestResolveFamily(t *testing.T) {
	cases := []struct {
		source   string
		override Family
		want     Family
	}{
		{"Qwen/Qwen2.5-7B-Instruct", "", FamilyChatML},
		{"Qwen/Qwen2.5-7B-Instruct", FamilyFallback, FamilyFallback},
		{"TheBloke/Llama-2-7B", "auto", FamilyChatML},
		{"microsoft/Phi-3-mini", FamilyChatML, FamilyChatML},
	}
	for _, c := range cases {
		if got := ResolveFamily(c.source, c.override); got != c.want {
			t.Errorf("ResolveFamily(%q, %q) = %q, want %q", c.source, c.override, got, c.want)
		}
	}
}

func TestRenderSession_Fallback(t *testing.T) {
	session := entity.NewSession()
	session.AddMessage(entity.NewMessage(entity.RoleUser, "hello"))

	engine := NewEngine()
	prompt, err := engine.RenderSession(session, ResolveFamily("some/unrecognized-model", FamilyFallback))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "### Human:\nhello\n\n") {
		t.Fatalf("prompt missing rendered human turn: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "### Assistant:\n") {
		t.Fatalf("prompt missing trailing assistant cue: %q", prompt)
	}
}

func TestRenderSession_WithTools_PrependsSystemMessage(t *testing.T) {
	session := entity.NewSession()
	session.SetAvailableTools([]entity.ToolDefinition{{Name: "list_directory", Description: "list files"}})
	session.AddMessage(entity.NewMessage(entity.RoleUser, "list files"))

	engine := NewEngine()
	prompt, err := engine.RenderSession(session, FamilyPhi3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "list_directory") {
		t.Fatalf("expected tool definitions in rendered prompt: %q", prompt)
	}
}

func TestExtractToolCalls_JSONShapes(t *testing.T) {
	engine := NewEngine()

	cases := []string{
		`{"function_name": "list_files", "arguments": {"path": "/tmp"}}`,
		`{"tool": "list_files", "parameters": {"path": "/tmp"}}`,
		`{"name": "list_files", "args": {"path": "/tmp"}}`,
	}
	for _, text := range cases {
		calls, err := engine.ExtractToolCalls(text)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(calls) != 1 || calls[0].Name != "list_files" {
			t.Fatalf("expected one list_files call, got %+v", calls)
		}
	}
}

func TestExtractToolCalls_MixedWithText(t *testing.T) {
	engine := NewEngine()
	text := "I'll help you list the files.\n\n{\"function_name\": \"list_directory\", \"arguments\": {\"path\": \".\"}}\n\nLet me know if you need anything else."

	calls, err := engine.ExtractToolCalls(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "list_directory" {
		t.Fatalf("expected one list_directory call, got %+v", calls)
	}
}

func TestExtractToolCalls_RejectsNonObjectJSON(t *testing.T) {
	engine := NewEngine()
	calls, err := engine.ExtractToolCalls(`[1, 2, 3]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no calls for non-object JSON, got %+v", calls)
	}
}

func TestExtractToolCalls_XML(t *testing.T) {
	engine := NewEngine()
	text := `<function_call name="get_time">{}</function_call>`
	calls, err := engine.ExtractToolCalls(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "get_time" {
		t.Fatalf("expected one get_time call, got %+v", calls)
	}
}

func TestExtractToolCalls_Natural(t *testing.T) {
	engine := NewEngine()
	calls, err := engine.ExtractToolCalls("call get_time with {}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "get_time" {
		t.Fatalf("expected one get_time call, got %+v", calls)
	}
}

func TestExtractToolCalls_Dedupe(t *testing.T) {
	id := entity.NewToolCallID()
	a := entity.ToolCall{ID: id, Name: "x"}
	b := entity.ToolCall{ID: id, Name: "x"}
	out := dedupe([]entity.ToolCall{a, b})
	if len(out) != 1 {
		t.Fatalf("expected dedupe to collapse identical ids, got %d", len(out))
	}
}
