// File path: internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consultflow/consultflow/internal/common"
	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
	"github.com/consultflow/consultflow/internal/gateway"
)

var (
	// ErrAlreadyStarted is returned when Begin is called twice; the gateway's
	// create call happens at most once per session.
	ErrAlreadyStarted = errors.New("session already has a server record")
	// ErrNotStarted is returned by operations that need a server record.
	ErrNotStarted = errors.New("session has no server record yet")
	// ErrSubmitted is returned once the session has completed its intake.
	ErrSubmitted = errors.New("session already submitted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
	// ErrStepInvalid is returned by Submit when the final step fails its
	// validation rules.
	ErrStepInvalid = errors.New("current step failed validation")
)

// Options tune a session.
type Options struct {
	AutoSave form.AutoSaverConfig
}

// Session owns one user's pass through the intake form: the form state, the
// auto-saver driving draft writes, and the lifecycle against the gateway.
// One Session per consultation per user; construct it explicitly and pass it
// where needed; there is deliberately no package-level instance.
type Session struct {
	mu    sync.Mutex
	gw    gateway.Gateway
	state *form.State
	saver *form.AutoSaver

	consultationID string
	submitted      bool
	closed         bool
}

// New starts a blank session with no server record. Edits are held locally
// and scheduled for auto-save only after Begin creates the record.
func New(gw gateway.Gateway, opts Options) *Session {
	state := form.NewState()
	s := &Session{gw: gw, state: state}
	s.saver = form.NewAutoSaver(state, s.persistDraft, opts.AutoSave)
	return s
}

// Resume rebuilds a session from an existing consultation, merging the draft
// over the record section-by-section with draft fields winning.
func Resume(ctx context.Context, gw gateway.Gateway, id string, opts Options) (*Session, error) {
	record, err := gw.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch consultation: %w", err)
	}
	draft, err := gw.FetchDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch draft: %w", err)
	}
	var draftSections map[form.Section]form.SectionData
	if draft != nil {
		draftSections = draft.Data
	}
	state := form.HydrateState(record.Sections, draftSections)
	s := &Session{gw: gw, state: state, consultationID: record.ID}
	s.saver = form.NewAutoSaver(state, s.persistDraft, opts.AutoSave)
	s.saver.SetEnabled(true)
	common.Logger().Info("session: resumed", "consultation", record.ID, "draft", draft != nil)
	return s, nil
}

// Begin creates the server-side record. Called at most once; afterwards
// edits arm the auto-saver.
func (s *Session) Begin(ctx context.Context) (consultation.Consultation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return consultation.Consultation{}, ErrClosed
	}
	if s.consultationID != "" {
		s.mu.Unlock()
		return consultation.Consultation{}, ErrAlreadyStarted
	}
	s.mu.Unlock()

	record, err := s.gw.Create(ctx)
	if err != nil {
		return consultation.Consultation{}, fmt.Errorf("create consultation: %w", err)
	}

	s.mu.Lock()
	s.consultationID = record.ID
	s.mu.Unlock()
	s.saver.SetEnabled(true)
	common.Logger().Info("session: started", "consultation", record.ID)
	return record, nil
}

// ConsultationID returns the server record id, empty before Begin.
func (s *Session) ConsultationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consultationID
}

// State exposes the underlying form for read-side navigation and rendering.
// Callers mutate sections only through UpdateSection.
func (s *Session) State() *form.State {
	return s.state
}

// UpdateSection replaces a section's payload and schedules an auto-save when
// a server record exists.
func (s *Session) UpdateSection(section form.Section, data form.SectionData) bool {
	s.mu.Lock()
	if s.closed || s.submitted {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.saver.Edit(section, data)
}

// Dirty reports unsaved edits.
func (s *Session) Dirty() bool {
	return s.saver.Dirty()
}

// LastSavedAt returns the time of the last successful draft save.
func (s *Session) LastSavedAt() *time.Time {
	return s.saver.LastSavedAt()
}

// AutoSaveExhausted reports that auto-save retries ran out; the UI shows a
// passive "not saved" indicator rather than an intrusive error.
func (s *Session) AutoSaveExhausted() bool {
	return s.saver.Exhausted()
}

// Save flushes the current data to the draft immediately, surfacing any
// failure to the caller: explicit saves never fail silently.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.consultationID == "" {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()
	return s.saver.SaveNow(ctx)
}

// Submit finishes the intake as one atomic client-side step: flush the latest
// section data with update, then transition the record with complete. Both
// calls must succeed for Submit to report success; the complete call cannot
// be skipped because no other exported path finalizes a session.
func (s *Session) Submit(ctx context.Context) (consultation.Consultation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return consultation.Consultation{}, ErrClosed
	}
	if s.submitted {
		s.mu.Unlock()
		return consultation.Consultation{}, ErrSubmitted
	}
	if s.consultationID == "" {
		s.mu.Unlock()
		return consultation.Consultation{}, ErrNotStarted
	}
	id := s.consultationID
	s.mu.Unlock()

	if !s.state.ValidateCurrentStep() {
		return consultation.Consultation{}, ErrStepInvalid
	}

	// A queued auto-save must not land between update and complete.
	s.saver.CancelPending()

	if _, err := s.gw.Update(ctx, id, s.state.Snapshot()); err != nil {
		return consultation.Consultation{}, fmt.Errorf("flush sections: %w", err)
	}
	record, err := s.gw.Complete(ctx, id)
	if err != nil {
		return consultation.Consultation{}, fmt.Errorf("complete consultation: %w", err)
	}

	s.mu.Lock()
	s.submitted = true
	s.mu.Unlock()
	s.saver.Stop()
	common.Logger().Info("session: submitted", "consultation", id, "completion", record.CompletionPercentage)
	return record, nil
}

// Close ends the session. In-flight saves complete into a disposed form as
// no-ops; pending timers are cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.saver.Stop()
}

func (s *Session) persistDraft(ctx context.Context, snapshot map[form.Section]form.SectionData) error {
	s.mu.Lock()
	id := s.consultationID
	s.mu.Unlock()
	if id == "" {
		return ErrNotStarted
	}
	if _, err := s.gw.SaveDraft(ctx, id, snapshot); err != nil {
		return err
	}
	return nil
}
