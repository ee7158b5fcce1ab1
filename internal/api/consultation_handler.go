// File path: internal/api/consultation_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/consultflow/consultflow/internal/form"
)

func (s *Server) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.CreateConsultation(r.Context(), agencyID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListConsultations(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListConsultations(r.Context(), agencyID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultations": records})
}

func (s *Server) handleGetConsultation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetConsultation(r.Context(), agencyID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleUpdateConsultation replaces each supplied section wholesale; sections
// omitted from the body are left untouched.
func (s *Server) handleUpdateConsultation(w http.ResponseWriter, r *http.Request) {
	var body map[string]form.SectionData
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sections, err := parseSectionMap(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := s.store.UpdateSections(r.Context(), agencyID(r), chi.URLParam(r, "id"), sections)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data     map[string]form.SectionData `json:"data"`
		AutoSave bool                        `json:"auto_save"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := parseSectionMap(body.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	draft, err := s.store.SaveDraft(r.Context(), agencyID(r), chi.URLParam(r, "id"), data, body.AutoSave)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.store.GetDraft(r.Context(), agencyID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleCompleteConsultation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.CompleteConsultation(r.Context(), agencyID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleArchiveConsultation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.ArchiveConsultation(r.Context(), agencyID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func parseSectionMap(raw map[string]form.SectionData) (map[form.Section]form.SectionData, error) {
	sections := make(map[form.Section]form.SectionData, len(raw))
	for key, data := range raw {
		section, ok := form.ParseSection(key)
		if !ok {
			return nil, fmt.Errorf("unknown form section %q", strings.TrimSpace(key))
		}
		sections[section] = data
	}
	return sections, nil
}
