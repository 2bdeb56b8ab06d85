package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/engine"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

// NewRouter builds the thin shell described in §6 (health, metrics, SSE and
// the Controller's status/trigger/job/results routes): it
// exists to give the Controller and Metrics Aggregator interfaces a caller,
// not to implement the CRUD/JWT surface those interfaces leave external.
func NewRouter(eng *engine.Engine) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", promhttp.HandlerFor(eng.Registry(), promhttp.HandlerOpts{}).ServeHTTP)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		snapshot := eng.GetMetricsSnapshot(r.Context(), time.Now())
		writeJSON(w, http.StatusOK, snapshot)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.TriggerAll(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/trigger/{target}", func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "target")
		if err := eng.TriggerTarget(r.Context(), target); err != nil {
			status := http.StatusServiceUnavailable
			if err == engine.ErrUnknownTarget {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cancelled, err := eng.CancelJob(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	})

	r.Post("/jobs/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := eng.RetryJob(r.Context(), id); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Get("/results", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ResultFilter{
			Target:      q.Get("target"),
			Query:       q.Get("query"),
			Status:      domain.ResultStatus(q.Get("status")),
			Environment: q.Get("environment"),
			Page:        atoiOrZero(q.Get("page")),
			PageSize:    atoiOrZero(q.Get("page_size")),
		}
		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			filter.Since = t
		}
		if until := q.Get("until"); until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			filter.Until = t
		}

		results, err := eng.ListResults(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	})

	r.Get("/events", sseHandler(eng))

	return r
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// sseHandler streams classified Results to a live subscriber. The caller's
// permission set is not yet externally authenticated (no JWT surface in this
// shell, per §6), so every connection is granted view_monitoring across all
// groups: the wire format and backpressure behavior are what this endpoint
// exists to demonstrate.
func sseHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		principal := r.URL.Query().Get("principal")
		if principal == "" {
			principal = "anonymous"
		}
		_, events, unsubscribe := eng.Subscribe(principal, nil,
			[]domain.Permission{domain.PermissionViewMonitoring},
			[]domain.Group{domain.GroupGlobal}, 16)
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return
			case result, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(result)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: result\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
