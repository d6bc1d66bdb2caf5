package surface

import (
	"context"
	"errors"
)

// Handle identifies a reader instance as reported by the host. It is
// opaque to the overlay; only locators look inside.
type Handle struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// Locator resolves the rendering surface of a reader. A miss is not an
// error: the reader may not have rendered its view yet.
type Locator interface {
	Resolve(ctx context.Context, h Handle) (Surface, bool, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, h Handle) (Surface, bool, error)

func (f LocatorFunc) Resolve(ctx context.Context, h Handle) (Surface, bool, error) {
	return f(ctx, h)
}

// Chain tries each locator in order and returns the first hit. Errors from
// a strategy do not stop the chain; they are returned only when no
// strategy hits.
type Chain []Locator

func (c Chain) Resolve(ctx context.Context, h Handle) (Surface, bool, error) {
	var errs []error
	for _, l := range c {
		s, ok, err := l.Resolve(ctx, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return s, true, nil
		}
	}
	return nil, false, errors.Join(errs...)
}
