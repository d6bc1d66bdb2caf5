package override

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

const page = `<html><head><title>reader</title></head><body><div id="toolbar"></div></body></html>`

func tuples(first string) []labels.Tuple {
	return []labels.Tuple{{Label: first, Hex: "#ffd400"}, {Label: "Red", Hex: "#ff6666"}}
}

func TestSource(t *testing.T) {
	src, err := Source(tuples(`Key "</script>"`), Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`const STATE_KEY = "__readerlabels_colorPatch";`,
		`const VERSION = 1;`,
		`new RegExp("^#[0-9a-f]{6}$", "i")`,
		`Array.prototype.map = patched;`,
		`window.addEventListener("unload", cleanup, { once: true });`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("source missing %q", want)
		}
	}
	if strings.Contains(src, "</script>") {
		t.Error("label not escaped: source contains a closing script tag")
	}
	if strings.Contains(src, "{{") {
		t.Error("unrendered template action in source")
	}
}

func TestSource_CustomOptions(t *testing.T) {
	src, err := Source(nil, Options{StateKey: "__custom", GuardVersion: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, `const STATE_KEY = "__custom";`) || !strings.Contains(src, "const VERSION = 3;") {
		t.Errorf("custom options not rendered:\n%s", src)
	}
	if !strings.Contains(src, "const DATA = [];") {
		t.Error("nil tuples should render an empty array")
	}
}

func scriptOf(t *testing.T, s *surface.Static) surface.Element {
	t.Helper()
	el, ok, err := s.Document().ElementByID(context.Background(), DefaultOptions().ScriptID)
	if err != nil || !ok {
		t.Fatalf("script element: ok=%v err=%v", ok, err)
	}
	return el
}

func TestInject_SkipsWhenCurrent(t *testing.T) {
	ctx := context.Background()
	s, err := surface.ParseStatic("r1", page)
	if err != nil {
		t.Fatal(err)
	}
	in := NewInstaller(Options{}, nil)

	out, err := in.Inject(ctx, s, tuples("Yellow"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Replaced {
		t.Error("first inject should append a script")
	}
	first := scriptOf(t, s)
	if fp, _, _ := first.Attr("data-readerlabels-colors"); fp != out.Fingerprint {
		t.Errorf("fingerprint attr = %q, want %q", fp, out.Fingerprint)
	}

	out, err = in.Inject(ctx, s, tuples("Yellow"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Replaced {
		t.Error("unchanged tuples should keep the existing script")
	}
	if scriptOf(t, s).Key() != first.Key() {
		t.Error("script element was replaced")
	}
}

func TestInject_ReplacesOnChange(t *testing.T) {
	ctx := context.Background()
	s, _ := surface.ParseStatic("r1", page)
	in := NewInstaller(Options{}, nil)

	if _, err := in.Inject(ctx, s, tuples("Yellow")); err != nil {
		t.Fatal(err)
	}
	first := scriptOf(t, s)

	out, err := in.Inject(ctx, s, tuples("Key Finding"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Replaced {
		t.Error("changed tuples should replace the script")
	}
	second := scriptOf(t, s)
	if second.Key() == first.Key() {
		t.Error("old script element still in place")
	}
	scripts, _ := s.Document().QueryAll(ctx, "script")
	if len(scripts) != 1 {
		t.Errorf("%d script elements, want 1", len(scripts))
	}

	raw, ok := s.Global("_annotationColors")
	if !ok {
		t.Fatal("legacy global not written")
	}
	var got []labels.Tuple
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Label != "Key Finding" || got[0].Hex != "#ffd400" {
		t.Errorf("legacy global = %+v", got)
	}
}

func TestInject_GuardVersionForcesReinstall(t *testing.T) {
	ctx := context.Background()
	s, _ := surface.ParseStatic("r1", page)

	if _, err := NewInstaller(Options{}, nil).Inject(ctx, s, tuples("Yellow")); err != nil {
		t.Fatal(err)
	}
	out, err := NewInstaller(Options{GuardVersion: 2}, nil).Inject(ctx, s, tuples("Yellow"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Replaced {
		t.Error("new guard version should reinstall")
	}
	if v, _, _ := scriptOf(t, s).Attr("data-readerlabels-colors-version"); v != "2" {
		t.Errorf("version attr = %q, want 2", v)
	}
}

func TestInject_LegacyGlobalAlwaysWritten(t *testing.T) {
	ctx := context.Background()
	s, _ := surface.ParseStatic("r1", page)
	in := NewInstaller(Options{LegacyGlobal: "_colors"}, nil)

	for i := 0; i < 2; i++ {
		if _, err := in.Inject(ctx, s, nil); err != nil {
			t.Fatal(err)
		}
		raw, ok := s.Global("_colors")
		if !ok || string(raw) != "[]" {
			t.Errorf("pass %d: global = %s (%v), want []", i, raw, ok)
		}
	}
}
