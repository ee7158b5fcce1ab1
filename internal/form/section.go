// File path: internal/form/section.go
package form

import "strings"

// Section names one partition of the intake form. The order of Sections is
// the step order and is fixed for the life of the process.
type Section string

const (
	SectionContact    Section = "contact"
	SectionBusiness   Section = "business"
	SectionPainPoints Section = "pain_points"
	SectionGoals      Section = "goals"
)

var sectionOrder = []Section{
	SectionContact,
	SectionBusiness,
	SectionPainPoints,
	SectionGoals,
}

var sectionTitles = map[Section]string{
	SectionContact:    "Contact Information",
	SectionBusiness:   "Business Context",
	SectionPainPoints: "Pain Points",
	SectionGoals:      "Goals & Objectives",
}

// Sections returns the ordered step list.
func Sections() []Section {
	out := make([]Section, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// StepCount returns the number of steps in the intake form.
func StepCount() int {
	return len(sectionOrder)
}

// SectionAt returns the section for a step index and whether it is in bounds.
func SectionAt(index int) (Section, bool) {
	if index < 0 || index >= len(sectionOrder) {
		return "", false
	}
	return sectionOrder[index], true
}

// StepIndex returns the step index of a section, or -1 when unknown.
func StepIndex(section Section) int {
	for i, s := range sectionOrder {
		if s == section {
			return i
		}
	}
	return -1
}

// Title returns the human-readable heading for a section.
func (s Section) Title() string {
	if title, ok := sectionTitles[s]; ok {
		return title
	}
	return string(s)
}

// Known reports whether the section belongs to the fixed catalog.
func (s Section) Known() bool {
	return StepIndex(s) >= 0
}

// ParseSection maps a wire value onto the catalog.
func ParseSection(value string) (Section, bool) {
	s := Section(strings.ToLower(strings.TrimSpace(value)))
	return s, s.Known()
}

// SectionData is an open record of named fields. Progressive entry means no
// field is required at this level; list fields keep insertion order and may
// contain duplicates.
type SectionData map[string]any

// Clone deep-copies the section payload far enough for the shapes the form
// produces: scalars, string lists, and one level of nested objects.
func (d SectionData) Clone() SectionData {
	if d == nil {
		return nil
	}
	out := make(SectionData, len(d))
	for key, value := range d {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = cloneValue(item)
		}
		return list
	case map[string]any:
		return SectionData(v).Clone()
	case SectionData:
		return v.Clone()
	default:
		return v
	}
}

// Empty reports whether the section holds no meaningful value: every field is
// absent, blank, or an empty list.
func (d SectionData) Empty() bool {
	for _, value := range d {
		if filledValue(value) {
			return false
		}
	}
	return true
}

func filledValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		for _, item := range v {
			if strings.TrimSpace(item) != "" {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if filledValue(item) {
				return true
			}
		}
		return false
	case map[string]any:
		return !SectionData(v).Empty()
	case SectionData:
		return !v.Empty()
	case bool:
		return v
	default:
		return true
	}
}

// StringField returns a trimmed string field, or "" when absent or not a string.
func (d SectionData) StringField(key string) string {
	if d == nil {
		return ""
	}
	if s, ok := d[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// ListField returns a string list field, accepting both []string and the
// []any shape JSON decoding produces.
func (d SectionData) ListField(key string) []string {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
		return out
	default:
		return nil
	}
}
