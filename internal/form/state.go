// File path: internal/form/state.go
package form

import (
	"time"
)

// State holds the in-progress intake form for one session: the active step,
// the section payloads entered so far, completion bookkeeping, dirtiness, and
// validation errors.
//
// State is a plain data structure owned by a single session; the owning
// session serializes access (see internal/session). None of the operations
// return errors; invalid calls report false and leave the state untouched so
// callers can branch on the result directly.
type State struct {
	currentStep    int
	completedSteps map[int]struct{}
	data           map[Section]SectionData
	errors         map[Section][]string

	dirty      bool
	autoSaving bool
	lastSaved  *time.Time
}

// NewState returns an empty form positioned on the first step.
func NewState() *State {
	return &State{
		completedSteps: make(map[int]struct{}),
		data:           make(map[Section]SectionData),
		errors:         make(map[Section][]string),
	}
}

// HydrateState builds a form from previously persisted section maps. Draft
// sections take precedence over record sections, merged key-by-key at the
// section level.
func HydrateState(record, draft map[Section]SectionData) *State {
	s := NewState()
	for section, data := range record {
		if section.Known() {
			s.data[section] = data.Clone()
		}
	}
	for section, data := range draft {
		if section.Known() {
			s.data[section] = data.Clone()
		}
	}
	s.recomputeCompleted()
	return s
}

// CurrentStep returns the active step index.
func (s *State) CurrentStep() int {
	return s.currentStep
}

// CurrentSection returns the section shown at the active step.
func (s *State) CurrentSection() Section {
	section, _ := SectionAt(s.currentStep)
	return section
}

// Section returns a copy of the payload entered for a section, nil when the
// section has not been touched.
func (s *State) Section(section Section) SectionData {
	return s.data[section].Clone()
}

// Snapshot returns a deep copy of every touched section. Auto-save sends
// whatever is current at timer fire, so the copy must not alias live data.
func (s *State) Snapshot() map[Section]SectionData {
	out := make(map[Section]SectionData, len(s.data))
	for section, data := range s.data {
		out[section] = data.Clone()
	}
	return out
}

// Dirty reports whether data changed since the last successful save.
func (s *State) Dirty() bool {
	return s.dirty
}

// AutoSaving reports whether a save call is currently in flight.
func (s *State) AutoSaving() bool {
	return s.autoSaving
}

// LastSavedAt returns the time of the last successful save, nil before one.
func (s *State) LastSavedAt() *time.Time {
	if s.lastSaved == nil {
		return nil
	}
	t := *s.lastSaved
	return &t
}

// Errors returns the current validation messages for a section.
func (s *State) Errors(section Section) []string {
	return append([]string(nil), s.errors[section]...)
}

// CompletedSteps returns the indices whose section predicate currently holds.
func (s *State) CompletedSteps() []int {
	out := make([]int, 0, len(s.completedSteps))
	for i := range sectionOrder {
		if _, ok := s.completedSteps[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// StepCompleted reports whether the section at index currently satisfies its
// completion predicate.
func (s *State) StepCompleted(index int) bool {
	_, ok := s.completedSteps[index]
	return ok
}

// UpdateSection replaces the payload for a section wholesale, marks the form
// dirty, clears the section's stale errors, and recomputes step completion.
// Unknown sections are ignored and report false.
func (s *State) UpdateSection(section Section, data SectionData) bool {
	if !section.Known() {
		return false
	}
	s.data[section] = data.Clone()
	s.dirty = true
	delete(s.errors, section)
	s.recomputeCompleted()
	return true
}

// CanAdvance reports whether the active step's section is complete enough to
// move forward. Pure; no side effects.
func (s *State) CanAdvance() bool {
	section, ok := SectionAt(s.currentStep)
	if !ok {
		return false
	}
	return !s.data[section].Empty()
}

// Advance moves to the next step when allowed. On the last step, or when the
// current section is still empty, it reports false and changes nothing.
func (s *State) Advance() bool {
	if !s.CanAdvance() {
		return false
	}
	if s.currentStep >= StepCount()-1 {
		return false
	}
	s.completedSteps[s.currentStep] = struct{}{}
	s.currentStep++
	return true
}

// Retreat moves one step back. Going back never requires validity.
func (s *State) Retreat() bool {
	if s.currentStep == 0 {
		return false
	}
	s.currentStep--
	return true
}

// GoToStep jumps directly to an in-bounds step. Intervening steps do not have
// to be complete; that looseness is deliberate.
func (s *State) GoToStep(index int) bool {
	if index < 0 || index >= StepCount() {
		return false
	}
	s.currentStep = index
	return true
}

// ValidateCurrentStep runs the section's authored validation rules (stricter
// than the completion predicate) and records any messages.
func (s *State) ValidateCurrentStep() bool {
	section, ok := SectionAt(s.currentStep)
	if !ok {
		return false
	}
	messages := ValidateSection(section, s.data[section])
	if len(messages) == 0 {
		delete(s.errors, section)
		return true
	}
	s.errors[section] = messages
	return false
}

// BeginSave flips the in-flight guard. It reports false when a save is
// already running, which callers must treat as "do not issue a second call".
func (s *State) BeginSave() bool {
	if s.autoSaving {
		return false
	}
	s.autoSaving = true
	return true
}

// AcknowledgeSave records a successful save and clears the in-flight guard.
// clean marks the form pristine; callers pass false when edits arrived while
// the save was in flight, so those edits stay dirty for the next cycle.
func (s *State) AcknowledgeSave(at time.Time, clean bool) {
	s.autoSaving = false
	t := at.UTC()
	s.lastSaved = &t
	if clean {
		s.dirty = false
	}
}

// AbortSave clears the in-flight guard after a failed save, leaving dirtiness
// untouched so the data remains eligible for retry.
func (s *State) AbortSave() {
	s.autoSaving = false
}

// The completed set is recomputed wholesale on every edit rather than patched:
// an index is present iff its predicate holds right now, so clearing a
// section un-completes its step.
func (s *State) recomputeCompleted() {
	for i := range sectionOrder {
		section := sectionOrder[i]
		if s.data[section].Empty() {
			delete(s.completedSteps, i)
		} else {
			s.completedSteps[i] = struct{}{}
		}
	}
}
