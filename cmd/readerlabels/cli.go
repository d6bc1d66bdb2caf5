package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Run the overlay daemon against a Chrome reader"`
	Annotate AnnotateCmd `cmd:"" help:"Apply the overlay to a saved reader page"`
	Colors   ColorsCmd   `cmd:"" help:"Show or edit colour labels"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" help:"YAML config file" type:"path"`
	LogLevel string `default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
}

// ServeCmd runs the daemon. Flags override the config file.
type ServeCmd struct {
	Remote   string   `help:"DevTools websocket URL of a running Chrome"`
	Open     []string `help:"Reader URL to open at startup (repeatable)"`
	HTTP     string   `name:"http" help:"Address for the preferences API, e.g. 127.0.0.1:8086"`
	MCPStdio bool     `name:"mcp-stdio" help:"Serve MCP tools on stdin/stdout"`
	Headful  bool     `help:"Run Chrome headful under Xvfb"`
}

// AnnotateCmd labels the swatches of an HTML file offline.
type AnnotateCmd struct {
	File   string `arg:"" type:"existingfile" help:"Reader HTML file"`
	Output string `short:"o" help:"Output file (default stdout)"`
}

// ColorsCmd groups the preference commands.
type ColorsCmd struct {
	List  ColorsListCmd  `cmd:"" default:"1" help:"List palette colours and their labels"`
	Set   ColorsSetCmd   `cmd:"" help:"Set a colour label"`
	Clear ColorsClearCmd `cmd:"" help:"Reset a colour label to its default name"`
}

// ColorsListCmd prints the palette.
type ColorsListCmd struct {
	JSON bool `help:"Print JSON"`
}

// ColorsSetCmd stores a label.
type ColorsSetCmd struct {
	ID    string `arg:"" help:"Colour id, e.g. general.yellow"`
	Label string `arg:"" help:"Label text"`
}

// ColorsClearCmd clears a label.
type ColorsClearCmd struct {
	ID string `arg:"" help:"Colour id, e.g. general.yellow"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
