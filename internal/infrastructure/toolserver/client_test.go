package toolserver

import (
	"context"
	"testing"

	"github.com/localagent/runtime/internal/domain/entity"
	"github.com/localagent/runtime/internal/infrastructure/modelloader"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

func newTestClient() *Client {
	return NewClient(modelloader.DefaultRetryConfig(), nil)
}

func TestExecuteToolCall_NoServerAdvertisesTool(t *testing.T) {
	c := newTestClient()
	result, err := c.ExecuteToolCall(context.Background(), entity.ToolCall{ID: "1", Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected an error when no server has ever advertised the tool")
	}
	if !pkgerrors.IsToolCallFailed(err) {
		t.Fatalf("expected a ToolCallFailed classified error, got %v", err)
	}
	if result.CallID != "" {
		t.Fatalf("expected a zero-value result on hard failure, got %+v", result)
	}
}

func TestRemoveServer_UnknownName(t *testing.T) {
	c := newTestClient()
	err := c.RemoveServer("ghost")
	appErr, ok := err.(*pkgerrors.AppError)
	if !ok || appErr.Code != pkgerrors.CodeToolServerNotFound {
		t.Fatalf("expected a ToolServerNotFound classified error removing an unknown server, got %v", err)
	}
}

func TestHealth_EmptyClient(t *testing.T) {
	c := newTestClient()
	if status := c.Health(); len(status) != 0 {
		t.Fatalf("expected no health entries with no servers added, got %v", status)
	}
}

func TestDiscoverAll_EmptyClient(t *testing.T) {
	c := newTestClient()
	defs, err := c.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAll with no servers should not error: %v", err)
	}
	if len(defs) != 0 {
		t.Fatalf("expected no tool definitions with no servers, got %v", defs)
	}
}

func TestMergeIntoCache_PopulatesLookup(t *testing.T) {
	c := newTestClient()
	c.mergeIntoCache([]entity.ToolDefinition{
		{Name: "search", ServerName: "web"},
	})
	name, ok := c.lookupServer("search")
	if !ok || name != "web" {
		t.Fatalf("expected lookupServer(\"search\") to resolve to \"web\", got (%q, %v)", name, ok)
	}
}

func TestShutdown_EmptyClientIsSafe(t *testing.T) {
	c := newTestClient()
	c.Shutdown() // must not panic with no servers registered
}
