package surface

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
)

// PageSource finds the rod page behind a reader handle.
type PageSource interface {
	PageByTarget(ctx context.Context, targetID string) (*rod.Page, error)
}

// DefaultFrameSelectors locate the reader's primary and secondary views
// when the reader renders inside iframes.
var DefaultFrameSelectors = []string{
	"iframe#primary-view",
	"iframe#secondary-view",
	"iframe.reader-view",
}

// FrameLocator resolves the first iframe matching selector whose content
// document has a body.
func FrameLocator(src PageSource, selector string, logger *slog.Logger) Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return LocatorFunc(func(ctx context.Context, h Handle) (Surface, bool, error) {
		page, err := src.PageByTarget(ctx, h.TargetID)
		if err != nil {
			return nil, false, fmt.Errorf("surface: page %s: %w", h.TargetID, err)
		}
		has, el, err := page.Context(ctx).Has(selector)
		if err != nil {
			return nil, false, fmt.Errorf("surface: frame %q: %w", selector, err)
		}
		if !has {
			return nil, false, nil
		}
		frame, err := el.Frame()
		if err != nil {
			logger.Debug("surface: frame not attached", "selector", selector, "error", err)
			return nil, false, nil
		}
		return NewRod(frame, logger), true, nil
	})
}

// PageLocator resolves the top-level page itself.
func PageLocator(src PageSource, logger *slog.Logger) Locator {
	return LocatorFunc(func(ctx context.Context, h Handle) (Surface, bool, error) {
		page, err := src.PageByTarget(ctx, h.TargetID)
		if err != nil {
			return nil, false, fmt.Errorf("surface: page %s: %w", h.TargetID, err)
		}
		return NewRod(page, logger), true, nil
	})
}

// RodLocators builds the standard chain: each iframe selector in order,
// then the page.
func RodLocators(src PageSource, frameSelectors []string, logger *slog.Logger) Chain {
	if len(frameSelectors) == 0 {
		frameSelectors = DefaultFrameSelectors
	}
	chain := make(Chain, 0, len(frameSelectors)+1)
	for _, sel := range frameSelectors {
		chain = append(chain, FrameLocator(src, sel, logger))
	}
	return append(chain, PageLocator(src, logger))
}
