// CLAUDE:SUMMARY Fixed annotation colour registry and hex/CSS colour normalisation.
// Package palette holds the fixed set of annotation colours the reader offers
// and the normalisation rules used to compare colours found in the DOM.
package palette

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Definition is one fixed annotation colour.
type Definition struct {
	ID            string `json:"id"`
	Hex           string `json:"hex"`
	FallbackLabel string `json:"fallback_label"`
}

// definitions is in reader palette order. The order is load-bearing: the
// in-context override forces the reader to present colours in this order.
var definitions = []Definition{
	{ID: "general.yellow", Hex: "#ffd400", FallbackLabel: "Yellow"},
	{ID: "general.red", Hex: "#ff6666", FallbackLabel: "Red"},
	{ID: "general.green", Hex: "#5fb236", FallbackLabel: "Green"},
	{ID: "general.blue", Hex: "#2ea8e5", FallbackLabel: "Blue"},
	{ID: "general.purple", Hex: "#a28ae5", FallbackLabel: "Purple"},
	{ID: "general.magenta", Hex: "#e56eee", FallbackLabel: "Magenta"},
	{ID: "general.orange", Hex: "#f19837", FallbackLabel: "Orange"},
	{ID: "general.gray", Hex: "#aaaaaa", FallbackLabel: "Gray"},
}

// Definitions returns a copy of the fixed colour list in palette order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition with the given id.
func Lookup(id string) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// NormalizeHex canonicalises a hex colour: trimmed, lowercase, '#'-prefixed,
// 3-digit shorthand expanded, anything longer than 7 characters truncated.
// Malformed input is normalised best-effort; empty input stays empty.
func NormalizeHex(input string) string {
	v := []rune(strings.ToLower(strings.TrimSpace(input)))
	if len(v) == 0 {
		return ""
	}
	if v[0] != '#' {
		v = append([]rune{'#'}, v...)
	}
	switch {
	case len(v) == 4:
		r, g, b := v[1], v[2], v[3]
		return string([]rune{'#', r, r, g, g, b, b})
	case len(v) > 7:
		return string(v[:7])
	}
	return string(v)
}

// NormalizeCSSColor converts a CSS colour value to canonical hex. Hex values
// go through NormalizeHex; rgb()/rgba() values are converted from their
// first three integer channels. A fully transparent rgba() (what a computed
// style reports for no background) and anything else (named colours,
// "transparent", hsl()) are reported as not resolvable.
func NormalizeCSSColor(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	if strings.HasPrefix(v, "#") {
		return NormalizeHex(v), true
	}

	lower := strings.ToLower(v)
	var body string
	switch {
	case strings.HasPrefix(lower, "rgba("):
		body = lower[len("rgba("):]
	case strings.HasPrefix(lower, "rgb("):
		body = lower[len("rgb("):]
	default:
		return "", false
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), ")")

	channels := strings.Split(body, ",")
	if len(channels) < 3 || len(channels) > 4 {
		return "", false
	}
	if len(channels) == 4 && transparent(channels[3]) {
		return "", false
	}

	var rgb [3]float64
	for i, c := range channels[:3] {
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil || n < 0 {
			return "", false
		}
		if n > 255 {
			n = 255
		}
		rgb[i] = float64(n) / 255
	}
	return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hex(), true
}

// transparent reports whether an alpha channel ("0", "0.0", "0%") is zero.
func transparent(alpha string) bool {
	a := strings.TrimSpace(alpha)
	pct := strings.HasSuffix(a, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(a, "%"), 64)
	if err != nil {
		return false
	}
	if pct {
		f /= 100
	}
	return f <= 0
}
