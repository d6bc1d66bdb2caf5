package overlay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var obj map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &obj); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return rec, obj
}

func TestRoutes_Colors(t *testing.T) {
	f := newFixture(t, nil)
	h := f.e.Routes()

	rec, _ := do(t, h, "GET", "/colors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /colors = %d", rec.Code)
	}
	var views []ColorView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 8 || views[7].ID != "general.gray" || views[7].Display != "Gray" {
		t.Errorf("views = %+v", views)
	}

	rec, obj := do(t, h, "PUT", "/colors/general.yellow", `{"label":"Key Finding"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body)
	}
	if obj["display"] != "Key Finding" || obj["hex"] != "#ffd400" {
		t.Errorf("PUT response = %v", obj)
	}
	if got := f.title(t, "yellow"); got != "Key Finding" {
		t.Errorf("reader title = %q, want Key Finding", got)
	}

	rec, _ = do(t, h, "PUT", "/colors/general.red", `{"label":"Draft","event":"input"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT input = %d", rec.Code)
	}
	if got := f.title(t, "red"); got != "Red" {
		t.Errorf("input event refreshed the reader: title = %q", got)
	}

	rec, obj = do(t, h, "DELETE", "/colors/general.yellow", "")
	if rec.Code != http.StatusOK || obj["cleared"] != true {
		t.Errorf("DELETE = %d %v", rec.Code, obj)
	}
	_, obj = do(t, h, "DELETE", "/colors/general.yellow", "")
	if obj["cleared"] != false {
		t.Errorf("second DELETE = %v", obj)
	}
}

func TestRoutes_Errors(t *testing.T) {
	f := newFixture(t, nil)
	h := f.e.Routes()

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"PUT", "/colors/general.teal", `{"label":"x"}`, http.StatusNotFound},
		{"DELETE", "/colors/general.teal", "", http.StatusNotFound},
		{"PUT", "/colors/general.red", `{"label":`, http.StatusBadRequest},
		{"PUT", "/colors/general.red", `{"label":"x","event":"keyup"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec, obj := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if obj["error"] == nil {
			t.Errorf("%s %s: no error body", tt.method, tt.path)
		}
	}
}

func TestRoutes_RefreshAndStats(t *testing.T) {
	f := newFixture(t, nil)
	h := f.e.Routes()

	rec, obj := do(t, h, "POST", "/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /refresh = %d", rec.Code)
	}
	surfaces, _ := obj["surfaces"].([]any)
	if len(surfaces) != 1 || surfaces[0] != "tab-1/frame-1" {
		t.Errorf("surfaces = %v", obj["surfaces"])
	}

	rec, obj = do(t, h, "GET", "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d", rec.Code)
	}
	ctrl, _ := obj["controller"].(map[string]any)
	if ctrl["active"] != float64(1) {
		t.Errorf("controller stats = %v", ctrl)
	}

	f.e.TeardownTarget("tab-1")
	if n := len(f.e.Stats().Surfaces); n != 0 {
		t.Errorf("surfaces after teardown = %d", n)
	}
}
