// Package httpapi exposes the people and configuration read endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/datamigrations/internal/app/metrics"
	"github.com/R3E-Network/datamigrations/internal/app/storage"
	"github.com/R3E-Network/datamigrations/internal/appconfig"
	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// Banner is served at the root path.
const Banner = "API service is running. Navigate to /people to see seeded data."

// Pinger checks database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are the collaborators the handler reads from.
type Dependencies struct {
	People storage.PersonStore
	Config appconfig.Client
	// Label scopes /config lookups.
	Label  string
	DB     Pinger
	Logger *logger.Logger
	// Middleware wraps every route, outermost first.
	Middleware []mux.MiddlewareFunc
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	deps Dependencies
	log  *logger.Logger
}

// NewHandler returns a router exposing the API.
func NewHandler(deps Dependencies) http.Handler {
	h := &handler{deps: deps, log: deps.Logger}
	if h.log == nil {
		h.log = logger.NewDefault("httpapi")
	}

	r := mux.NewRouter()
	for _, mw := range deps.Middleware {
		r.Use(mw)
	}
	r.Use(metrics.InstrumentHandler)

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/people", h.people).Methods(http.MethodGet)
	r.HandleFunc("/config/{key}", h.config).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Banner))
}

func (h *handler) people(w http.ResponseWriter, r *http.Request) {
	people, err := h.deps.People.ListPeople(r.Context())
	if err != nil {
		h.log.WithError(err).Error("list people")
		writeError(w, http.StatusInternalServerError, errors.New("failed to list people"))
		return
	}
	writeJSON(w, http.StatusOK, people)
}

type configValue struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	setting, err := h.deps.Config.Get(r.Context(), key, h.deps.Label)
	if errors.Is(err, appconfig.ErrNotFound) {
		writeError(w, http.StatusNotFound, errors.New("configuration key not found"))
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("key", key).Error("read configuration")
		writeError(w, http.StatusBadGateway, errors.New("configuration store unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, configValue{Key: setting.Key, Label: setting.Label, Value: setting.Value})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.DB.PingContext(ctx); err != nil {
			h.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
