// File path: internal/form/state_test.go
package form

import (
	"reflect"
	"testing"
	"time"
)

func TestUpdateSectionMarksDirtyUntilSaved(t *testing.T) {
	state := NewState()
	if state.Dirty() {
		t.Fatal("fresh state should not be dirty")
	}
	state.UpdateSection(SectionContact, SectionData{"name": "Ada"})
	if !state.Dirty() {
		t.Fatal("state should be dirty after an edit")
	}
	state.UpdateSection(SectionGoals, SectionData{"goals": []string{"launch"}})
	if !state.Dirty() {
		t.Fatal("state should stay dirty across edits")
	}
	if !state.BeginSave() {
		t.Fatal("expected to begin save")
	}
	state.AcknowledgeSave(time.Now(), true)
	if state.Dirty() {
		t.Fatal("successful save should clear dirtiness")
	}
	if state.LastSavedAt() == nil {
		t.Fatal("successful save should stamp lastSavedAt")
	}
}

func TestUpdateSectionClearsStaleErrors(t *testing.T) {
	state := NewState()
	state.UpdateSection(SectionContact, SectionData{"name": "Ada"})
	if state.ValidateCurrentStep() {
		t.Fatal("contact without email should fail validation")
	}
	if len(state.Errors(SectionContact)) == 0 {
		t.Fatal("expected validation messages")
	}
	state.UpdateSection(SectionContact, SectionData{"name": "Ada", "email": "ada@example.com"})
	if got := state.Errors(SectionContact); len(got) != 0 {
		t.Fatalf("edit should clear errors, got %v", got)
	}
}

func TestCompletedStepsMatchPredicate(t *testing.T) {
	state := NewState()
	state.UpdateSection(SectionContact, SectionData{"name": "Ada"})
	state.UpdateSection(SectionGoals, SectionData{"goals": []string{"launch"}})
	want := []int{StepIndex(SectionContact), StepIndex(SectionGoals)}
	if got := state.CompletedSteps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("completed steps = %v, want %v", got, want)
	}

	// Completion is not sticky: clearing a section un-completes its step.
	state.UpdateSection(SectionContact, SectionData{})
	want = []int{StepIndex(SectionGoals)}
	if got := state.CompletedSteps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("after clearing contact, completed steps = %v, want %v", got, want)
	}

	// Recomputing with no intervening edit does not change the set.
	before := state.CompletedSteps()
	state.recomputeCompleted()
	if got := state.CompletedSteps(); !reflect.DeepEqual(got, before) {
		t.Fatalf("recompute changed the set: %v -> %v", before, got)
	}
}

func TestAdvanceGating(t *testing.T) {
	state := NewState()
	if state.CanAdvance() {
		t.Fatal("empty step should not allow advancing")
	}
	if state.Advance() {
		t.Fatal("advance should fail while the step is empty")
	}
	if state.CurrentStep() != 0 {
		t.Fatalf("failed advance moved the step to %d", state.CurrentStep())
	}

	state.UpdateSection(SectionContact, SectionData{"name": "Ada"})
	if !state.Advance() {
		t.Fatal("advance should succeed once the step has data")
	}
	if state.CurrentStep() != 1 {
		t.Fatalf("current step = %d, want 1", state.CurrentStep())
	}
	if !state.StepCompleted(0) {
		t.Fatal("advancing should mark the step completed")
	}
}

func TestAdvanceIsNoOpOnLastStep(t *testing.T) {
	state := NewState()
	for _, section := range Sections() {
		state.UpdateSection(section, SectionData{"filled": "yes"})
	}
	last := StepCount() - 1
	if !state.GoToStep(last) {
		t.Fatal("in-bounds jump should succeed")
	}
	if state.Advance() {
		t.Fatal("advance on the last step must be a no-op")
	}
	if state.CurrentStep() != last {
		t.Fatalf("last-step advance moved to %d", state.CurrentStep())
	}
}

func TestRetreatAlwaysAllowed(t *testing.T) {
	state := NewState()
	if state.Retreat() {
		t.Fatal("retreat on the first step should report false")
	}
	state.UpdateSection(SectionContact, SectionData{"name": "Ada"})
	state.Advance()
	// Clear the section the user came from; going back is still allowed.
	state.UpdateSection(SectionContact, SectionData{})
	if !state.Retreat() {
		t.Fatal("retreat should succeed regardless of validity")
	}
	if state.CurrentStep() != 0 {
		t.Fatalf("current step = %d, want 0", state.CurrentStep())
	}
}

func TestGoToStepIgnoresIntermediateCompletion(t *testing.T) {
	state := NewState()
	if state.GoToStep(-1) || state.GoToStep(StepCount()) {
		t.Fatal("out-of-bounds jumps must report false")
	}
	if state.CurrentStep() != 0 {
		t.Fatal("failed jump must not move the step")
	}
	// No step is complete, yet a direct jump to the last step succeeds.
	if !state.GoToStep(StepCount() - 1) {
		t.Fatal("jump should succeed regardless of intervening steps")
	}
}

func TestHydrateDraftTakesPrecedence(t *testing.T) {
	record := map[Section]SectionData{
		SectionContact:  {"name": "Ada", "email": "old@example.com"},
		SectionBusiness: {"company": "Acme"},
	}
	draft := map[Section]SectionData{
		SectionContact: {"name": "Ada", "email": "new@example.com"},
	}
	state := HydrateState(record, draft)

	contact := state.Section(SectionContact)
	if got := contact.StringField("email"); got != "new@example.com" {
		t.Fatalf("draft section should win, got email %q", got)
	}
	business := state.Section(SectionBusiness)
	if got := business.StringField("company"); got != "Acme" {
		t.Fatalf("record-only section should survive, got company %q", got)
	}
	if state.Dirty() {
		t.Fatal("hydrated state starts clean")
	}
	if !state.StepCompleted(StepIndex(SectionContact)) || !state.StepCompleted(StepIndex(SectionBusiness)) {
		t.Fatal("hydration should recompute completed steps")
	}
}

func TestSnapshotDoesNotAliasLiveData(t *testing.T) {
	state := NewState()
	state.UpdateSection(SectionGoals, SectionData{"goals": []string{"launch"}})
	snapshot := state.Snapshot()
	snapshot[SectionGoals]["goals"].([]string)[0] = "mutated"
	if got := state.Section(SectionGoals).ListField("goals")[0]; got != "launch" {
		t.Fatalf("snapshot mutation leaked into state: %q", got)
	}
}
