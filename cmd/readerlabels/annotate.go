package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hazyhaar/readerlabels/overlay"
)

func (c *AnnotateCmd) Run(g *Globals) error {
	logger := newLogger(g.LogLevel)
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	db, err := overlay.OpenPrefs(cfg.Prefs.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	in, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	st, err := overlay.AnnotateHTML(context.Background(), in, out, overlay.AnnotateOptions{
		Prefs:     db,
		Namespace: cfg.Prefs.Namespace,
		Override:  cfg.Override,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("annotate %s: %w", c.File, err)
	}
	logger.Info("readerlabels: annotated", "file", c.File,
		"passes", st.Controller.Passes, "written", st.Controller.Written)
	return nil
}
