// CLAUDE:SUMMARY Finds colour swatch buttons in a reader document, resolves their colour, and writes title/aria-label from the label map.
// Package swatch locates the colour swatches a reader renders and labels
// them. The reader's markup is not under our control, so discovery is a
// union of selector heuristics and colour resolution tries attributes
// before styles.
package swatch

import (
	"context"
	"fmt"

	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/palette"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// Heuristics are the selectors that identify swatch buttons, in query order.
var Heuristics = []string{
	"button[data-color]",
	"button[color]",
	"button.annotation-color",
	"button[class*='annotation-toolbar-color']",
	"button.grid-tile",
}

// Result summarises one annotation pass.
type Result struct {
	Seen    int `json:"seen"`
	Matched int `json:"matched"`
	Written int `json:"written"`
}

// Collect returns the union of all heuristic matches, each element once,
// in first-seen order. A failing selector is skipped.
func Collect(ctx context.Context, doc surface.Document) ([]surface.Element, error) {
	seen := make(map[string]bool)
	var out []surface.Element
	var lastErr error
	failed := 0
	for _, sel := range Heuristics {
		els, err := doc.QueryAll(ctx, sel)
		if err != nil {
			lastErr = err
			failed++
			continue
		}
		for _, el := range els {
			k := el.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, el)
		}
	}
	if failed == len(Heuristics) {
		return nil, fmt.Errorf("swatch: collect: %w", lastErr)
	}
	return out, nil
}

// ExtractHex resolves the canonical hex colour of a swatch. The data-color
// or color attribute wins, then the inline background-color, then the
// computed one. ok is false when nothing resolves to a hex colour.
func ExtractHex(el surface.Element) (string, bool) {
	for _, name := range []string{"data-color", "color"} {
		if v, _, err := el.Attr(name); err == nil && v != "" {
			return palette.NormalizeHex(v), true
		}
	}
	if v, err := el.InlineStyle("background-color"); err == nil && v != "" {
		return palette.NormalizeCSSColor(v)
	}
	v, err := el.ComputedStyle("background-color")
	if err != nil || v == "" {
		return "", false
	}
	return palette.NormalizeCSSColor(v)
}

// Annotate sets title and aria-label on every swatch whose colour is in m.
// Attributes are only written when they differ, so repeated passes do not
// trigger the reader's own mutation observers. Per-element failures are
// skipped.
func Annotate(ctx context.Context, doc surface.Document, m labels.HexMap) (Result, error) {
	els, err := Collect(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	res := Result{Seen: len(els)}
	for _, el := range els {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		hex, ok := ExtractHex(el)
		if !ok {
			continue
		}
		label, ok := m[hex]
		if !ok || label == "" {
			continue
		}
		res.Matched++
		for _, name := range []string{"title", "aria-label"} {
			cur, present, err := el.Attr(name)
			if err != nil {
				continue
			}
			if present && cur == label {
				continue
			}
			if el.SetAttr(name, label) == nil {
				res.Written++
			}
		}
	}
	return res, nil
}
