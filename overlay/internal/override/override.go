// CLAUDE:SUMMARY Renders the in-page palette override script and installs it on a surface, skipping reinjection when the fingerprint matches.
// Package override synthesises the script that makes a reader present the
// user's labels in palette order, and owns its install/replace lifecycle on
// a surface.
//
// The script patches Array.prototype.map inside the reader's context: when
// map is called on an array of (string, #rrggbb) tuples the array is first
// overwritten in place with the desired sequence. The patch removes itself
// on unload or when a newer script is installed.
package override

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"text/template"

	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

//go:embed override.js
var overrideJS string

var overrideTmpl = template.Must(template.New("override.js").Funcs(template.FuncMap{
	"js": jsString,
}).Parse(overrideJS))

// Options are the in-page names and guard the override uses. Changing any
// of them is a versioned change: bump GuardVersion so live pages reinstall.
type Options struct {
	ScriptID        string `yaml:"script_id"`
	FingerprintAttr string `yaml:"fingerprint_attr"`
	StateKey        string `yaml:"state_key"`
	LegacyGlobal    string `yaml:"legacy_global"`
	HexPattern      string `yaml:"hex_pattern"`
	GuardVersion    int    `yaml:"guard_version"`
}

// DefaultOptions returns the standard names.
func DefaultOptions() Options {
	return Options{
		ScriptID:        "__readerlabels_colors",
		FingerprintAttr: "data-readerlabels-colors",
		StateKey:        "__readerlabels_colorPatch",
		LegacyGlobal:    "_annotationColors",
		HexPattern:      "^#[0-9a-f]{6}$",
		GuardVersion:    1,
	}
}

// WithDefaults fills empty fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.ScriptID == "" {
		o.ScriptID = d.ScriptID
	}
	if o.FingerprintAttr == "" {
		o.FingerprintAttr = d.FingerprintAttr
	}
	if o.StateKey == "" {
		o.StateKey = d.StateKey
	}
	if o.LegacyGlobal == "" {
		o.LegacyGlobal = d.LegacyGlobal
	}
	if o.HexPattern == "" {
		o.HexPattern = d.HexPattern
	}
	if o.GuardVersion <= 0 {
		o.GuardVersion = d.GuardVersion
	}
	return o
}

// VersionAttr is the attribute carrying GuardVersion on the script element.
func (o Options) VersionAttr() string { return o.FingerprintAttr + "-version" }

// Source renders the override program for tuples.
func Source(tuples []labels.Tuple, opts Options) (string, error) {
	opts = opts.WithDefaults()
	var buf bytes.Buffer
	err := overrideTmpl.Execute(&buf, struct {
		Options
		Data string
	}{opts, labels.Fingerprint(tuples)})
	if err != nil {
		return "", fmt.Errorf("override: render: %w", err)
	}
	return buf.String(), nil
}

// Outcome reports what Inject did.
type Outcome struct {
	Fingerprint string `json:"fingerprint"`
	// Replaced is false when the existing script was already current.
	Replaced bool `json:"replaced"`
}

// Installer injects override scripts.
type Installer struct {
	opts   Options
	logger *slog.Logger
}

// NewInstaller creates an Installer. Zero-value options use the defaults.
func NewInstaller(opts Options, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{opts: opts.WithDefaults(), logger: logger}
}

// Options returns the effective options.
func (in *Installer) Options() Options { return in.opts }

// Inject makes sure the surface carries the override for tuples. An
// existing script with the same fingerprint and guard version is kept;
// otherwise it is removed and a fresh one appended. The legacy window
// global is written on every call.
func (in *Installer) Inject(ctx context.Context, s surface.Surface, tuples []labels.Tuple) (Outcome, error) {
	fp := labels.Fingerprint(tuples)
	out := Outcome{Fingerprint: fp}
	doc := s.Document()
	version := strconv.Itoa(in.opts.GuardVersion)

	existing, found, err := doc.ElementByID(ctx, in.opts.ScriptID)
	if err != nil {
		return out, fmt.Errorf("override: lookup script: %w", err)
	}
	current := false
	if found {
		gotFP, _, _ := existing.Attr(in.opts.FingerprintAttr)
		gotVer, _, _ := existing.Attr(in.opts.VersionAttr())
		current = gotFP == fp && gotVer == version
	}

	if !current {
		if found {
			if err := existing.Remove(); err != nil {
				return out, fmt.Errorf("override: remove stale script: %w", err)
			}
		}
		src, err := Source(tuples, in.opts)
		if err != nil {
			return out, err
		}
		err = doc.AppendScript(ctx, surface.Script{
			ID:   in.opts.ScriptID,
			Type: "text/javascript",
			Attrs: map[string]string{
				in.opts.FingerprintAttr: fp,
				in.opts.VersionAttr():   version,
			},
			Source: src,
		})
		if err != nil {
			return out, fmt.Errorf("override: append script: %w", err)
		}
		out.Replaced = true
	}

	if tuples == nil {
		tuples = []labels.Tuple{}
	}
	if err := s.SetGlobal(ctx, in.opts.LegacyGlobal, tuples); err != nil {
		in.logger.Warn("override: set legacy global failed", "surface", s.ID(), "error", err)
	}
	return out, nil
}

func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
