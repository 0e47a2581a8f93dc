package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/netsampler/nfcapd/collector"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource returns a snapshot of the flow sources.
type StatusSource func() []collector.SourceStatus

// HealthHandler returns a handler for the health endpoint.
func HealthHandler(isCollecting func() bool) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		if !isCollecting() {
			wr.WriteHeader(http.StatusServiceUnavailable)
			if _, err := wr.Write([]byte("Not OK\n")); err != nil {
				slog.Error("error writing HTTP", slog.String("error", err.Error()))
			}
			return
		}
		wr.WriteHeader(http.StatusOK)
		if _, err := wr.Write([]byte("OK\n")); err != nil {
			slog.Error("error writing HTTP", slog.String("error", err.Error()))
		}
	}
}

func writeJSON(wr http.ResponseWriter, value interface{}) {
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		slog.Error("error writing JSON body", slog.String("error", err.Error()))
		http.Error(wr, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	wr.Header().Add("Content-Type", "application/json")
	wr.WriteHeader(http.StatusOK)
	if _, err := wr.Write(body); err != nil {
		slog.Error("error writing HTTP", slog.String("error", err.Error()))
	}
}

// SourcesHandler lists all flow sources.
func SourcesHandler(status StatusSource) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		writeJSON(wr, status())
	}
}

// SourceHandler returns the flow source named by the ident URL parameter.
func SourceHandler(status StatusSource) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		ident := chi.URLParam(r, "ident")
		for _, st := range status() {
			if st.Ident == ident {
				writeJSON(wr, st)
				return
			}
		}
		http.Error(wr, "Not Found", http.StatusNotFound)
	}
}

// New constructs a router with metrics, health and source status endpoints.
func New(status StatusSource, isCollecting func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/__health", HealthHandler(isCollecting))
	if status != nil {
		r.Get("/sources", SourcesHandler(status))
		r.Get("/sources/{ident}", SourceHandler(status))
	}
	return r
}
