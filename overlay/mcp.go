// CLAUDE:SUMMARY Registers the readerlabels MCP tools: list, set and clear colour labels, refresh the active reader, stats.
package overlay

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/readerlabels/overlay/internal/kit"
)

// RegisterMCP registers the engine's tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	eps := e.endpoints()
	empty := kit.InputSchema(map[string]any{}, nil)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readerlabels_list_colors",
		Description: "List the annotation palette with the user label stored for each colour and the label currently displayed.",
		InputSchema: empty,
	}, eps.list, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readerlabels_set_color_name",
		Description: "Set the label of a palette colour. An empty label restores the default name.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Colour id, e.g. general.yellow"},
			"label": map[string]any{"type": "string", "description": "Label to show on the swatch"},
			"event": map[string]any{"type": "string", "enum": []any{"input", "change", "blur"}, "description": "input persists only; change/blur (default) also refresh the active reader"},
		}, []string{"id", "label"}),
	}, eps.set, kit.DecodeJSON[SetColorRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readerlabels_clear_color_name",
		Description: "Reset a colour's label to its default name and refresh the active reader.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Colour id, e.g. general.yellow"},
		}, []string{"id"}),
	}, eps.clear, kit.DecodeJSON[ColorRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readerlabels_refresh",
		Description: "Re-apply the current labels to the active reader.",
		InputSchema: empty,
	}, eps.refresh, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readerlabels_stats",
		Description: "Engine counters: live surfaces, applies, annotation passes, failures.",
		InputSchema: empty,
	}, eps.stats, kit.DecodeJSON[struct{}]())
}
