package overlay

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/readerlabels/overlay/internal/override"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// AnnotateOptions configures an offline annotation of a saved reader page.
type AnnotateOptions struct {
	Prefs     prefs.Store
	Namespace string
	Override  override.Options
	Logger    *slog.Logger
}

// AnnotateHTML parses a reader document, applies the overlay once (labels,
// override script and legacy global) and writes the resulting HTML.
func AnnotateHTML(ctx context.Context, in io.Reader, out io.Writer, opts AnnotateOptions) (Stats, error) {
	s, err := surface.NewStatic("static", in)
	if err != nil {
		return Stats{}, fmt.Errorf("overlay: parse document: %w", err)
	}
	e := New(Config{
		Prefs:     opts.Prefs,
		Namespace: opts.Namespace,
		Override:  opts.Override,
		Logger:    opts.Logger,
	})
	defer e.Shutdown()

	if err := e.Apply(ctx, s); err != nil {
		return Stats{}, err
	}
	st := e.Stats()
	if err := s.Render(out); err != nil {
		return st, fmt.Errorf("overlay: render: %w", err)
	}
	return st, nil
}
