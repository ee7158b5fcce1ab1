// File path: internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/consultflow/consultflow/internal/common"
	"github.com/consultflow/consultflow/internal/consultation"
)

// Config controls the API server's request handling.
type Config struct {
	// CookieName is the ambient session cookie carrying the agency credential.
	CookieName string
}

// DefaultConfig returns the standard configuration used when no overrides
// are provided.
func DefaultConfig() Config {
	return Config{CookieName: "cf_session"}
}

// Merge overlays non-empty fields from the override onto the base config.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.CookieName) != "" {
		result.CookieName = strings.TrimSpace(override.CookieName)
	}
	return result
}

// Server exposes the consultation intake API over a chi router.
type Server struct {
	router chi.Router
	store  *consultation.Store
	cfg    Config
}

// NewServer wires the router against the consultation store.
func NewServer(store *consultation.Store, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("consultation store required")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	srv := &Server{
		router: chi.NewRouter(),
		store:  store,
		cfg:    configuration,
	}
	srv.routes()
	common.Logger().Info("api: server ready", "cookie", configuration.CookieName)
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type contextKey string

const agencyKey contextKey = "agency"

// agencyID returns the agency bound to the request by the session middleware.
func agencyID(r *http.Request) string {
	id, _ := r.Context().Value(agencyKey).(string)
	return id
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Get("/v1/logs", s.handleLogs)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/v1/agency", s.handleAgency)
		r.Post("/v1/consultations", s.handleCreateConsultation)
		r.Get("/v1/consultations", s.handleListConsultations)
		r.Get("/v1/consultations/{id}", s.handleGetConsultation)
		r.Put("/v1/consultations/{id}", s.handleUpdateConsultation)
		r.Post("/v1/consultations/{id}/drafts", s.handleSaveDraft)
		r.Get("/v1/consultations/{id}/drafts", s.handleGetDraft)
		r.Post("/v1/consultations/{id}/complete", s.handleCompleteConsultation)
		r.Post("/v1/consultations/{id}/archive", s.handleArchiveConsultation)
	})
}

// requireSession resolves the ambient session cookie to an agency and scopes
// the request to it. Every data query below this middleware filters by the
// resolved agency id.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.CookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("session cookie required"))
			return
		}
		agency, err := s.store.AgencyForSession(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, consultation.ErrSessionUnknown) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		ctx := context.WithValue(r.Context(), agencyKey, agency)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": common.LogEntries()})
}

func (s *Server) handleAgency(w http.ResponseWriter, r *http.Request) {
	agency, err := s.store.GetAgency(r.Context(), agencyID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agency)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, consultation.ErrNotFound),
		errors.Is(err, consultation.ErrDraftMissing),
		errors.Is(err, consultation.ErrAgencyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, consultation.ErrAlreadyCompleted),
		errors.Is(err, consultation.ErrConsultationArchived):
		status = http.StatusConflict
	case errors.Is(err, consultation.ErrInvalidSection):
		status = http.StatusBadRequest
	default:
		if strings.Contains(err.Error(), "required") {
			status = http.StatusBadRequest
		}
	}
	writeError(w, status, err)
}
