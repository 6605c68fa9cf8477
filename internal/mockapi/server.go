// Package mockapi serves a local copy of the outages API for development and
// tests. Responses come from embedded fixtures. An upload is checked against
// them and replaces the site's previous upload in memory.
package mockapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const headerAPIKey = "x-api-key"

//go:embed fixtures/*.json
var fixtures embed.FS

// Config controls the mock's behaviour.
type Config struct {
	// APIKey is the only accepted x-api-key value.
	APIKey string
	// FailFirst makes the first N API requests answer 503.
	FailFirst int
}

// Server is an in-memory outages API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	apiKey     string
	failures   atomic.Int64

	outagesBody []byte
	outages     []map[string]any
	sites       map[string]json.RawMessage
	rosters     map[string]map[string]string // site -> device id -> name

	mu      sync.Mutex
	uploads map[string][]map[string]any
}

// NewServer loads the fixtures and builds the routes. It does not listen
// until Start is called.
func NewServer(addr string, cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("mock api key must not be empty")
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:  logger,
		apiKey:  cfg.APIKey,
		uploads: make(map[string][]map[string]any),
	}
	s.failures.Store(int64(cfg.FailFirst))

	if err := s.loadFixtures(); err != nil {
		return nil, err
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(s))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /outages", s.guard(s.handleOutages))
	mux.Handle("GET /site-info/{site}", s.guard(s.handleSiteInfo))
	mux.Handle("POST /site-outages/{site}", s.guard(s.handleUpload))

	return s, nil
}

func (s *Server) loadFixtures() error {
	body, err := fixtures.ReadFile("fixtures/outages.json")
	if err != nil {
		return fmt.Errorf("read outages fixture: %w", err)
	}
	if err := json.Unmarshal(body, &s.outages); err != nil {
		return fmt.Errorf("decode outages fixture: %w", err)
	}
	s.outagesBody = body

	sitesBody, err := fixtures.ReadFile("fixtures/sites.json")
	if err != nil {
		return fmt.Errorf("read sites fixture: %w", err)
	}
	if err := json.Unmarshal(sitesBody, &s.sites); err != nil {
		return fmt.Errorf("decode sites fixture: %w", err)
	}

	s.rosters = make(map[string]map[string]string, len(s.sites))
	for site, raw := range s.sites {
		var info struct {
			Devices []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"devices"`
		}
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("decode site %s fixture: %w", site, err)
		}
		roster := make(map[string]string, len(info.Devices))
		for _, d := range info.Devices {
			roster[d.ID] = d.Name
		}
		s.rosters[site] = roster
	}
	return nil
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("mock api starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// CheckReadiness reports ready once the fixtures are loaded.
func (s *Server) CheckReadiness(_ context.Context) error {
	if s.outages == nil || len(s.sites) == 0 {
		return errors.New("fixtures not loaded")
	}
	return nil
}

// Uploads returns the outages from the last accepted upload for site.
func (s *Server) Uploads(site string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.uploads[site]))
	copy(out, s.uploads[site])
	return out
}

// guard checks the API key and applies fault injection before h runs.
func (s *Server) guard(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerAPIKey) != s.apiKey {
			writeMessage(w, http.StatusForbidden, "Forbidden")
			return
		}
		if s.failures.Add(-1) >= 0 {
			s.logger.Debug("injecting failure", "method", r.Method, "path", r.URL.Path)
			writeMessage(w, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
		s.logger.Debug("mock api request", "method", r.Method, "path", r.URL.Path)
		h(w, r)
	})
}

func (s *Server) handleOutages(w http.ResponseWriter, _ *http.Request) {
	writeRaw(w, http.StatusOK, s.outagesBody)
}

func (s *Server) handleSiteInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.sites[r.PathValue("site")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "You have requested a site that does not exist")
		return
	}
	writeRaw(w, http.StatusOK, info)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	site := r.PathValue("site")
	roster, ok := s.rosters[site]
	if !ok {
		writeMessage(w, http.StatusNotFound, "You have requested a site that does not exist")
		return
	}

	var body []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Body must be a JSON array of outages")
		return
	}

	for i, entry := range body {
		if err := s.validateEntry(roster, entry); err != nil {
			s.logger.Debug("rejecting upload", "site", site, "index", i, "error", err)
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("outage %d: %v", i, err))
			return
		}
	}

	s.mu.Lock()
	s.uploads[site] = body
	s.mu.Unlock()

	s.logger.Info("accepted site outages", "site", site, "count", len(body))
	writeRaw(w, http.StatusOK, []byte(`{}`))
}

// validateEntry requires a known device with the matching name, and an
// outage record that exists in the fixtures once the name is removed.
func (s *Server) validateEntry(roster map[string]string, entry map[string]any) error {
	id, _ := entry["id"].(string)
	want, ok := roster[id]
	if !ok {
		return fmt.Errorf("device %q is not on the site", id)
	}
	if got, _ := entry["name"].(string); got != want {
		return fmt.Errorf("device %q has name %q, want %q", id, got, want)
	}

	record := make(map[string]any, len(entry))
	for k, v := range entry {
		if k != "name" {
			record[k] = v
		}
	}
	for _, o := range s.outages {
		if cmp.Equal(o, record) {
			return nil
		}
	}
	return fmt.Errorf("no matching outage for device %q", id)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // best-effort mock response
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg}) //nolint:errcheck // best-effort mock response
}
