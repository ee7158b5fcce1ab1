// File path: internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
	"github.com/consultflow/consultflow/internal/gateway"
)

// fakeScheduler queues callbacks instead of running timers, so tests drive
// debounce cycles deterministically.
type fakeScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *fakeScheduler) Schedule(_ time.Duration, fn func()) form.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.queue)
	s.queue = append(s.queue, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.queue) {
			s.queue[idx] = nil
		}
	}
}

func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, fn := range pending {
		if fn != nil {
			fn()
		}
	}
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fn := range s.queue {
		if fn != nil {
			n++
		}
	}
	return n
}

// mockGateway records every call in order.
type mockGateway struct {
	mu       sync.Mutex
	calls    []string
	record   consultation.Consultation
	draft    *consultation.Draft
	drafts   []map[form.Section]form.SectionData
	sections map[form.Section]form.SectionData
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		record: consultation.Consultation{ID: "c-1", Status: consultation.StatusDraft},
	}
}

func (g *mockGateway) log(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *mockGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *mockGateway) Create(ctx context.Context) (consultation.Consultation, error) {
	g.log("create")
	return g.record, nil
}

func (g *mockGateway) Fetch(ctx context.Context, id string) (consultation.Consultation, error) {
	g.log("fetch")
	if id != g.record.ID {
		return consultation.Consultation{}, gateway.ErrNotFound
	}
	return g.record, nil
}

func (g *mockGateway) Update(ctx context.Context, id string, sections map[form.Section]form.SectionData) (consultation.Consultation, error) {
	g.log("update")
	g.mu.Lock()
	g.sections = sections
	g.mu.Unlock()
	return g.record, nil
}

func (g *mockGateway) SaveDraft(ctx context.Context, id string, data map[form.Section]form.SectionData) (consultation.Draft, error) {
	g.log("saveDraft")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drafts = append(g.drafts, data)
	return consultation.Draft{ConsultationID: id, Data: data, AutoSave: true}, nil
}

func (g *mockGateway) FetchDraft(ctx context.Context, id string) (*consultation.Draft, error) {
	g.log("fetchDraft")
	return g.draft, nil
}

func (g *mockGateway) Complete(ctx context.Context, id string) (consultation.Consultation, error) {
	g.log("complete")
	done := g.record
	done.Status = consultation.StatusCompleted
	done.CompletionPercentage = 100
	return done, nil
}

func newTestSession(gw gateway.Gateway, sched *fakeScheduler) *Session {
	return New(gw, Options{AutoSave: form.AutoSaverConfig{Scheduler: sched}})
}

func TestBeginCreatesRecordAtMostOnce(t *testing.T) {
	gw := newMockGateway()
	sched := &fakeScheduler{}
	sess := newTestSession(gw, sched)

	// Edits before Begin stay local: no scheduling, no network.
	sess.UpdateSection(form.SectionContact, form.SectionData{"name": "Ada"})
	if got := sched.pending(); got != 0 {
		t.Fatalf("pending timers before Begin = %d, want 0", got)
	}
	if got := gw.callLog(); len(got) != 0 {
		t.Fatalf("gateway calls before Begin = %v, want none", got)
	}

	record, err := sess.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if record.ID != "c-1" || sess.ConsultationID() != "c-1" {
		t.Fatalf("consultation id = %q/%q, want c-1", record.ID, sess.ConsultationID())
	}
	if _, err := sess.Begin(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second begin = %v, want ErrAlreadyStarted", err)
	}
}

func TestEditAfterBeginDrivesDraftSave(t *testing.T) {
	gw := newMockGateway()
	sched := &fakeScheduler{}
	sess := newTestSession(gw, sched)
	if _, err := sess.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}

	sess.UpdateSection(form.SectionContact, form.SectionData{"name": "Ada", "email": "ada@example.com"})
	if !sess.Dirty() {
		t.Fatal("session should be dirty after an edit")
	}
	sched.fireAll()

	if sess.Dirty() {
		t.Fatal("session should be clean after the auto-save fires")
	}
	if len(gw.drafts) != 1 {
		t.Fatalf("draft saves = %d, want 1", len(gw.drafts))
	}
	if got := gw.drafts[0][form.SectionContact].StringField("name"); got != "Ada" {
		t.Fatalf("saved draft name = %q, want Ada", got)
	}
	if sess.LastSavedAt() == nil {
		t.Fatal("LastSavedAt should be set after a save")
	}
}

func TestSaveRequiresServerRecord(t *testing.T) {
	gw := newMockGateway()
	sess := newTestSession(gw, &fakeScheduler{})
	if err := sess.Save(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("save before begin = %v, want ErrNotStarted", err)
	}
}

func TestSubmitSequencesUpdateThenComplete(t *testing.T) {
	gw := newMockGateway()
	sched := &fakeScheduler{}
	sess := newTestSession(gw, sched)
	if _, err := sess.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	sess.UpdateSection(form.SectionContact, form.SectionData{"name": "Ada", "email": "ada@example.com"})

	record, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.Status != consultation.StatusCompleted {
		t.Fatalf("status = %q, want completed", record.Status)
	}

	calls := gw.callLog()
	var updateAt, completeAt = -1, -1
	for i, call := range calls {
		switch call {
		case "update":
			updateAt = i
		case "complete":
			completeAt = i
		}
	}
	if updateAt == -1 || completeAt == -1 || completeAt < updateAt {
		t.Fatalf("call order = %v, want update before complete", calls)
	}
	if got := gw.sections[form.SectionContact].StringField("email"); got != "ada@example.com" {
		t.Fatalf("flushed sections = %v, want contact email", gw.sections)
	}

	// A queued auto-save must not fire after submission.
	sched.fireAll()
	if len(gw.drafts) != 0 {
		t.Fatalf("draft saves after submit = %d, want 0", len(gw.drafts))
	}

	if _, err := sess.Submit(context.Background()); !errors.Is(err, ErrSubmitted) {
		t.Fatalf("second submit = %v, want ErrSubmitted", err)
	}
	if sess.UpdateSection(form.SectionContact, form.SectionData{"name": "Eve"}) {
		t.Fatal("edits after submit should be rejected")
	}
}

func TestSubmitRejectsInvalidStep(t *testing.T) {
	gw := newMockGateway()
	sess := newTestSession(gw, &fakeScheduler{})
	if _, err := sess.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// First step is contact; an empty contact section fails validation.
	if _, err := sess.Submit(context.Background()); !errors.Is(err, ErrStepInvalid) {
		t.Fatalf("submit = %v, want ErrStepInvalid", err)
	}
	for _, call := range gw.callLog() {
		if call == "update" || call == "complete" {
			t.Fatalf("gateway reached on invalid submit: %v", gw.callLog())
		}
	}
}

func TestResumeMergesDraftOverRecord(t *testing.T) {
	gw := newMockGateway()
	gw.record.Sections = map[form.Section]form.SectionData{
		form.SectionContact:  {"name": "Record Name", "email": "record@example.com"},
		form.SectionBusiness: {"company": "Record Co"},
	}
	gw.draft = &consultation.Draft{
		ConsultationID: "c-1",
		Data: map[form.Section]form.SectionData{
			form.SectionContact: {"name": "Draft Name", "email": "draft@example.com"},
		},
	}

	sess, err := Resume(context.Background(), gw, "c-1", Options{AutoSave: form.AutoSaverConfig{Scheduler: &fakeScheduler{}}})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer sess.Close()

	snapshot := sess.State().Snapshot()
	if got := snapshot[form.SectionContact].StringField("name"); got != "Draft Name" {
		t.Fatalf("contact name = %q, want draft to win", got)
	}
	if got := snapshot[form.SectionBusiness].StringField("company"); got != "Record Co" {
		t.Fatalf("business company = %q, want record section kept", got)
	}
	if sess.ConsultationID() != "c-1" {
		t.Fatalf("consultation id = %q, want c-1", sess.ConsultationID())
	}
	if sess.Dirty() {
		t.Fatal("resumed session should start clean")
	}
}

func TestCloseDropsPendingWork(t *testing.T) {
	gw := newMockGateway()
	sched := &fakeScheduler{}
	sess := newTestSession(gw, sched)
	if _, err := sess.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	sess.UpdateSection(form.SectionContact, form.SectionData{"name": "Ada"})
	sess.Close()

	sched.fireAll()
	if len(gw.drafts) != 0 {
		t.Fatalf("draft saves after close = %d, want 0", len(gw.drafts))
	}
	if err := sess.Save(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("save after close = %v, want ErrClosed", err)
	}
}
