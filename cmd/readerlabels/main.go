// CLAUDE:SUMMARY CLI entry point for readerlabels: overlay daemon, offline page annotation and colour label editing.
// Command readerlabels shows user-defined names on the annotation colour
// swatches of a document reader.
//
// Usage:
//
//	readerlabels serve -c readerlabels.yaml        # follow reader tabs in Chrome
//	readerlabels annotate page.html -o out.html    # label a saved reader page
//	readerlabels colors set general.yellow "Key Finding"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/hazyhaar/readerlabels/overlay"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("readerlabels"),
		kong.Description("Named annotation colours for document readers."),
		kong.UsageOnError(),
		kongVars(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		newLogger(cli.LogLevel).Error("readerlabels: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads the config file when one is given.
func (g *Globals) loadConfig() (*overlay.FileConfig, error) {
	if g.Config == "" {
		return overlay.DefaultConfig(), nil
	}
	cfg, err := overlay.LoadConfigFile(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *VersionCmd) Run(_ *Globals) error {
	fmt.Printf("readerlabels %s (%s)\n", version, commit)
	return nil
}
