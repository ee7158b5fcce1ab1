// File path: internal/consultation/store_test.go
package consultation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/consultflow/consultflow/internal/form"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "consultflow.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestAgency(t *testing.T, store *Store) Agency {
	t.Helper()
	agency, err := store.CreateAgency(context.Background(), "Test Agency", "#336699", "")
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	return agency
}

func TestOpenConfiguresConnection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var journalMode string
	if err := store.db.GetContext(ctx, &journalMode, `PRAGMA journal_mode`); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}
	var foreignKeys int
	if err := store.db.GetContext(ctx, &foreignKeys, `PRAGMA foreign_keys`); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestConsultationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agency := newTestAgency(t, store)

	record, err := store.CreateConsultation(ctx, agency.ID)
	if err != nil {
		t.Fatalf("create consultation: %v", err)
	}
	if record.Status != StatusDraft {
		t.Fatalf("new consultation status = %q, want draft", record.Status)
	}
	if record.CompletionPercentage != 0 {
		t.Fatalf("new consultation completion = %d, want 0", record.CompletionPercentage)
	}

	contact := form.SectionData{"name": "Ada", "email": "ada@example.com"}
	updated, err := store.UpdateSections(ctx, agency.ID, record.ID, map[form.Section]form.SectionData{
		form.SectionContact: contact,
	})
	if err != nil {
		t.Fatalf("update sections: %v", err)
	}
	if updated.CompletionPercentage != 50 {
		t.Fatalf("completion after contact = %d, want 50", updated.CompletionPercentage)
	}

	// Omitted sections stay untouched.
	updated, err = store.UpdateSections(ctx, agency.ID, record.ID, map[form.Section]form.SectionData{
		form.SectionGoals: {"goals": []string{"launch", "grow"}},
	})
	if err != nil {
		t.Fatalf("update goals: %v", err)
	}
	if got := updated.Sections[form.SectionContact].StringField("email"); got != "ada@example.com" {
		t.Fatalf("contact section lost on partial update: %q", got)
	}
	if updated.CompletionPercentage != 100 {
		t.Fatalf("completion after contact+goals = %d, want 100", updated.CompletionPercentage)
	}

	completed, err := store.CompleteConsultation(ctx, agency.ID, record.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completion must stamp completed_at")
	}
	if completed.CompletionPercentage != 100 {
		t.Fatalf("completion percentage = %d, want 100", completed.CompletionPercentage)
	}

	if _, err := store.CompleteConsultation(ctx, agency.ID, record.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second complete = %v, want ErrAlreadyCompleted", err)
	}

	archived, err := store.ArchiveConsultation(ctx, agency.ID, record.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != StatusArchived {
		t.Fatalf("status = %q, want archived", archived.Status)
	}

	// Archived is absorbing.
	if _, err := store.UpdateSections(ctx, agency.ID, record.ID, map[form.Section]form.SectionData{
		form.SectionContact: contact,
	}); !errors.Is(err, ErrConsultationArchived) {
		t.Fatalf("update on archived = %v, want ErrConsultationArchived", err)
	}
	if _, err := store.CompleteConsultation(ctx, agency.ID, record.ID); !errors.Is(err, ErrConsultationArchived) {
		t.Fatalf("complete on archived = %v, want ErrConsultationArchived", err)
	}
	again, err := store.ArchiveConsultation(ctx, agency.ID, record.ID)
	if err != nil || again.Status != StatusArchived {
		t.Fatalf("re-archive = (%v, %v), want archived no-op", again.Status, err)
	}
}

func TestDraftSupersede(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agency := newTestAgency(t, store)
	record, err := store.CreateConsultation(ctx, agency.ID)
	if err != nil {
		t.Fatalf("create consultation: %v", err)
	}

	if _, err := store.GetDraft(ctx, agency.ID, record.ID); !errors.Is(err, ErrDraftMissing) {
		t.Fatalf("draft before save = %v, want ErrDraftMissing", err)
	}

	first := map[form.Section]form.SectionData{
		form.SectionContact: {"name": "Ada"},
	}
	saved, err := store.SaveDraft(ctx, agency.ID, record.ID, first, true)
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}

	second := map[form.Section]form.SectionData{
		form.SectionGoals: {"goals": []string{"launch"}},
	}
	superseded, err := store.SaveDraft(ctx, agency.ID, record.ID, second, true)
	if err != nil {
		t.Fatalf("supersede draft: %v", err)
	}
	// The upsert keeps the one draft row, so its id must be stable.
	if superseded.ID != saved.ID {
		t.Fatalf("supersede id = %q, want original %q", superseded.ID, saved.ID)
	}

	draft, err := store.GetDraft(ctx, agency.ID, record.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft.ID != saved.ID {
		t.Fatalf("stored draft id = %q, want reported id %q", draft.ID, saved.ID)
	}
	// Wholesale supersede: the first snapshot's sections are gone.
	if _, ok := draft.Data[form.SectionContact]; ok {
		t.Fatal("draft should have been replaced wholesale, contact survived")
	}
	if got := draft.Data[form.SectionGoals].ListField("goals"); len(got) != 1 || got[0] != "launch" {
		t.Fatalf("draft goals = %v, want [launch]", got)
	}
	if !draft.AutoSave {
		t.Fatal("auto_save flag lost")
	}
}

func TestAgencyScopeHidesForeignRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mine := newTestAgency(t, store)
	other, err := store.CreateAgency(ctx, "Other Agency", "", "")
	if err != nil {
		t.Fatalf("create other agency: %v", err)
	}

	record, err := store.CreateConsultation(ctx, mine.ID)
	if err != nil {
		t.Fatalf("create consultation: %v", err)
	}

	if _, err := store.GetConsultation(ctx, other.ID, record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign fetch = %v, want ErrNotFound", err)
	}
	if _, err := store.GetDraft(ctx, other.ID, record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign draft fetch = %v, want ErrNotFound", err)
	}
	list, err := store.ListConsultations(ctx, other.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("foreign list returned %d records, want 0", len(list))
	}
}

func TestSessionResolution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	agency := newTestAgency(t, store)

	session, err := store.CreateSession(ctx, agency.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := store.AgencyForSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if got != agency.ID {
		t.Fatalf("session agency = %q, want %q", got, agency.ID)
	}
	if _, err := store.AgencyForSession(ctx, "bogus"); !errors.Is(err, ErrSessionUnknown) {
		t.Fatalf("bogus token = %v, want ErrSessionUnknown", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusCompleted, true},
		{StatusDraft, StatusArchived, true},
		{StatusCompleted, StatusArchived, true},
		{StatusCompleted, StatusDraft, false},
		{StatusArchived, StatusDraft, false},
		{StatusArchived, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
