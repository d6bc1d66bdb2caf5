package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/readerlabels/overlay"
)

func (c *ServeCmd) Run(g *Globals) error {
	logger := newLogger(g.LogLevel)
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := overlay.NewDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Stop()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("readerlabels: running", "version", version, "patterns", cfg.Readers.URLPatterns)

	if cfg.MCP.Stdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "readerlabels", Version: version}, nil)
		d.Engine().RegisterMCP(srv)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// apply layers command-line flags over the file configuration.
func (c *ServeCmd) apply(cfg *overlay.FileConfig) {
	if c.Remote != "" {
		cfg.Browser.Remote = c.Remote
	}
	if len(c.Open) > 0 {
		cfg.Browser.Open = append(cfg.Browser.Open, c.Open...)
	}
	if c.HTTP != "" {
		cfg.HTTP.Addr = c.HTTP
	}
	if c.MCPStdio {
		cfg.MCP.Stdio = true
	}
	if c.Headful {
		cfg.Browser.Mode = "headful"
	}
}
