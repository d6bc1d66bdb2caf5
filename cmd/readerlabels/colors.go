package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hazyhaar/readerlabels/overlay"
)

// withEngine opens the preference store and runs fn with a reader-less
// engine. A running daemon sees the change through its store watcher.
func withEngine(g *Globals, fn func(*overlay.Engine) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	db, err := overlay.OpenPrefs(cfg.Prefs.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	e := overlay.New(overlay.Config{
		Prefs:     db,
		Namespace: cfg.Prefs.Namespace,
		Logger:    newLogger(g.LogLevel),
	})
	return fn(e)
}

func (c *ColorsListCmd) Run(g *Globals) error {
	return withEngine(g, func(e *overlay.Engine) error {
		views, err := e.ColorEntries(context.Background())
		if err != nil {
			return err
		}
		return printColors(os.Stdout, views, c.JSON)
	})
}

func printColors(w io.Writer, views []overlay.ColorView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHEX\tLABEL")
	for _, v := range views {
		label := v.Display
		if v.Label == "" {
			label += " (default)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Hex, label)
	}
	return tw.Flush()
}

func (c *ColorsSetCmd) Run(g *Globals) error {
	return withEngine(g, func(e *overlay.Engine) error {
		return e.CommitColorName(context.Background(), c.ID, c.Label)
	})
}

func (c *ColorsClearCmd) Run(g *Globals) error {
	return withEngine(g, func(e *overlay.Engine) error {
		cleared, err := e.ClearColorName(context.Background(), c.ID)
		if err != nil {
			return err
		}
		if !cleared {
			fmt.Printf("%s already uses its default name\n", c.ID)
		}
		return nil
	})
}
