package overlay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "readerlabels-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*fixture, *mcp.ClientSession) {
	t.Helper()
	f := newFixture(t, nil)

	srv := mcp.NewServer(testImpl, nil)
	f.e.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return f, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_ListColors(t *testing.T) {
	_, session := mcpSession(t)

	text, isErr := callTool(t, session, "readerlabels_list_colors", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var views []ColorView
	if err := json.Unmarshal([]byte(text), &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 8 || views[0].Display != "Yellow" {
		t.Errorf("views = %+v", views)
	}
}

func TestMCP_SetAndClear(t *testing.T) {
	f, session := mcpSession(t)

	text, isErr := callTool(t, session, "readerlabels_set_color_name", map[string]any{
		"id":    "general.yellow",
		"label": "Key Finding",
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var view ColorView
	if err := json.Unmarshal([]byte(text), &view); err != nil {
		t.Fatal(err)
	}
	if view.Label != "Key Finding" {
		t.Errorf("Label = %q", view.Label)
	}
	if got := f.title(t, "yellow"); got != "Key Finding" {
		t.Errorf("reader title = %q", got)
	}

	text, isErr = callTool(t, session, "readerlabels_clear_color_name", map[string]any{"id": "general.yellow"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var res ClearResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Cleared {
		t.Error("Cleared = false")
	}
	if got := f.title(t, "yellow"); got != "Yellow" {
		t.Errorf("reader title after clear = %q", got)
	}
}

func TestMCP_UnknownColor(t *testing.T) {
	_, session := mcpSession(t)
	text, isErr := callTool(t, session, "readerlabels_set_color_name", map[string]any{
		"id":    "general.teal",
		"label": "x",
	})
	if !isErr {
		t.Errorf("expected tool error, got %s", text)
	}
}

func TestMCP_RefreshAndStats(t *testing.T) {
	_, session := mcpSession(t)
	if text, isErr := callTool(t, session, "readerlabels_refresh", map[string]any{}); isErr {
		t.Fatalf("refresh: %s", text)
	}
	text, isErr := callTool(t, session, "readerlabels_stats", map[string]any{})
	if isErr {
		t.Fatalf("stats: %s", text)
	}
	var st Stats
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Surfaces) != 1 || st.Controller.Applies != 1 {
		t.Errorf("stats = %+v", st)
	}
}
