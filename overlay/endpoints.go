package overlay

import (
	"context"
	"fmt"

	"github.com/hazyhaar/readerlabels/overlay/internal/kit"
)

// SetColorRequest updates one label. Event mirrors the preference field
// event: "input" persists only, "change" and "blur" (the default) persist
// and refresh the active reader.
type SetColorRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Event string `json:"event,omitempty"`
}

// ColorRequest names one colour.
type ColorRequest struct {
	ID string `json:"id"`
}

// ClearResult reports whether a clear changed anything.
type ClearResult struct {
	ID      string `json:"id"`
	Cleared bool   `json:"cleared"`
}

type endpoints struct {
	list    kit.Endpoint
	set     kit.Endpoint
	clear   kit.Endpoint
	refresh kit.Endpoint
	stats   kit.Endpoint
}

func (e *Engine) endpoints() endpoints {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(
			kit.Logging(e.logger, op),
			kit.Recovery(e.logger),
			kit.Timeout(e.cfg.ApplyTimeout),
		)(ep)
	}
	return endpoints{
		list: wrap("list_colors", func(ctx context.Context, _ any) (any, error) {
			return e.ColorEntries(ctx)
		}),
		set: wrap("set_color_name", func(ctx context.Context, req any) (any, error) {
			r := req.(*SetColorRequest)
			var err error
			switch r.Event {
			case "input":
				err = e.SetColorName(ctx, r.ID, r.Label)
			case "", "change", "blur":
				err = e.CommitColorName(ctx, r.ID, r.Label)
			default:
				return nil, fmt.Errorf("overlay: unknown event %q", r.Event)
			}
			if err != nil {
				return nil, err
			}
			return e.colorView(ctx, r.ID)
		}),
		clear: wrap("clear_color_name", func(ctx context.Context, req any) (any, error) {
			r := req.(*ColorRequest)
			cleared, err := e.ClearColorName(ctx, r.ID)
			if err != nil {
				return nil, err
			}
			return ClearResult{ID: r.ID, Cleared: cleared}, nil
		}),
		refresh: wrap("refresh", func(ctx context.Context, _ any) (any, error) {
			_ = e.RefreshActiveReader(ctx)
			return e.Stats(), nil
		}),
		stats: wrap("stats", func(context.Context, any) (any, error) {
			return e.Stats(), nil
		}),
	}
}

func (e *Engine) colorView(ctx context.Context, id string) (ColorView, error) {
	views, err := e.ColorEntries(ctx)
	if err != nil {
		return ColorView{}, err
	}
	for _, v := range views {
		if v.ID == id {
			return v, nil
		}
	}
	return ColorView{}, fmt.Errorf("overlay: color %s not listed", id)
}
