// CLAUDE:SUMMARY Builds the ordered (label, hex) tuples and hex→label map from the preference store.
// Package labels derives the label views the overlay needs from the
// preference store. It holds no state: every call reads the store again.
package labels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/readerlabels/overlay/internal/palette"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
)

// DefaultNamespace prefixes every preference key.
const DefaultNamespace = "extensions.readerlabels"

// ErrUnknownColor is returned when a colour id is not in the palette.
var ErrUnknownColor = errors.New("labels: unknown color id")

// Entry is a palette definition with its stored user label (possibly empty).
type Entry struct {
	palette.Definition
	Label string `json:"label"`
}

// Tuple is one (label, hex) pair. It serialises as a two-element JSON array,
// the shape the reader's own palette code works with.
type Tuple struct {
	Label string
	Hex   string
}

func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Label, t.Hex})
}

func (t *Tuple) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	t.Label, t.Hex = pair[0], pair[1]
	return nil
}

// HexMap maps canonical hex to display label.
type HexMap map[string]string

// Builder reads labels from a preference store.
type Builder struct {
	store     prefs.Store
	namespace string
}

// New creates a Builder. An empty namespace uses DefaultNamespace.
func New(store prefs.Store, namespace string) *Builder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Builder{store: store, namespace: namespace}
}

// Namespace returns the key namespace.
func (b *Builder) Namespace() string { return b.namespace }

// Key returns the preference key for a colour id.
func (b *Builder) Key(id string) string {
	return b.namespace + ".colorNames." + id
}

// ColorName returns the stored label for id, "" when unset.
func (b *Builder) ColorName(ctx context.Context, id string) (string, error) {
	v, _, err := b.store.Get(ctx, b.Key(id))
	if err != nil {
		return "", fmt.Errorf("labels: get %s: %w", id, err)
	}
	return v, nil
}

// SetColorName trims value and persists it. An empty value is the explicit
// "use fallback" state.
func (b *Builder) SetColorName(ctx context.Context, id, value string) error {
	if _, ok := palette.Lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColor, id)
	}
	if err := b.store.Set(ctx, b.Key(id), strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("labels: set %s: %w", id, err)
	}
	return nil
}

// Entries returns every palette colour with its stored label, in palette order.
func (b *Builder) Entries(ctx context.Context) ([]Entry, error) {
	defs := palette.Definitions()
	out := make([]Entry, 0, len(defs))
	for _, d := range defs {
		label, err := b.ColorName(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Definition: d, Label: label})
	}
	return out, nil
}

// OrderedTuples returns (label, hex) pairs in palette order, substituting the
// fallback label for empty or whitespace-only stored labels.
func (b *Builder) OrderedTuples(ctx context.Context) ([]Tuple, error) {
	entries, err := b.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Tuple, len(entries))
	for i, e := range entries {
		out[i] = Tuple{Label: e.Display(), Hex: palette.NormalizeHex(e.Hex)}
	}
	return out, nil
}

// HexMap returns the hex→label lookup, one entry per palette colour.
func (b *Builder) HexMap(ctx context.Context) (HexMap, error) {
	entries, err := b.Entries(ctx)
	if err != nil {
		return nil, err
	}
	m := make(HexMap, len(entries))
	for _, e := range entries {
		m[palette.NormalizeHex(e.Hex)] = e.Display()
	}
	return m, nil
}

// Display returns the label shown for the entry.
func (e Entry) Display() string {
	if l := strings.TrimSpace(e.Label); l != "" {
		return l
	}
	return e.FallbackLabel
}

// Fingerprint serialises a tuple sequence. Equal fingerprints mean the
// injected override is already current.
func Fingerprint(tuples []Tuple) string {
	if tuples == nil {
		tuples = []Tuple{}
	}
	data, _ := json.Marshal(tuples)
	return string(data)
}
