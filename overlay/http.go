package overlay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/readerlabels/overlay/internal/kit"
	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
)

// Routes returns the preferences API:
//
//	GET    /colors       palette with stored labels
//	PUT    /colors/{id}  {"label": "...", "event": "change"}
//	DELETE /colors/{id}  reset to fallback
//	POST   /refresh      re-apply to the active reader
//	GET    /stats        engine counters
func (e *Engine) Routes() chi.Router {
	eps := e.endpoints()
	r := chi.NewRouter()

	r.Get("/colors", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, eps.list, nil)
	})
	r.Put("/colors/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req SetColorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.ID = chi.URLParam(r, "id")
		serve(w, r, eps.set, &req)
	})
	r.Delete("/colors/{id}", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, eps.clear, &ColorRequest{ID: chi.URLParam(r, "id")})
	})
	r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, eps.refresh, nil)
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, eps.stats, nil)
	})
	return r
}

func serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	ctx := kit.WithTransport(r.Context(), "http")
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = kit.WithRequestID(ctx, id)
	}
	resp, err := ep(ctx, req)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, labels.ErrUnknownColor) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
