// File path: internal/consultation/types.go
package consultation

import (
	"errors"
	"time"

	"github.com/consultflow/consultflow/internal/form"
)

var (
	ErrNotFound             = errors.New("consultation not found")
	ErrDraftMissing         = errors.New("draft not found")
	ErrAgencyNotFound       = errors.New("agency not found")
	ErrSessionUnknown       = errors.New("session not recognized")
	ErrAlreadyCompleted     = errors.New("consultation already completed")
	ErrConsultationArchived = errors.New("consultation archived")
	ErrInvalidSection       = errors.New("unknown form section")
)

// Status is the server-side lifecycle of a consultation.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Archived is absorbing: no transition leaves it.
var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusCompleted, StatusArchived},
	StatusCompleted: {StatusArchived},
	StatusArchived:  {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Consultation is the canonical server-owned record for one intake.
type Consultation struct {
	ID                   string                            `json:"id"`
	AgencyID             string                            `json:"agency_id"`
	Status               Status                            `json:"status"`
	Sections             map[form.Section]form.SectionData `json:"sections"`
	CompletionPercentage int                               `json:"completion_percentage"`
	CreatedAt            time.Time                         `json:"created_at"`
	UpdatedAt            time.Time                         `json:"updated_at"`
	CompletedAt          *time.Time                        `json:"completed_at,omitempty"`
}

// Draft is the latest auto-saved snapshot for a consultation: one row per
// consultation, superseded wholesale on every save.
type Draft struct {
	ID             string                            `json:"id"`
	ConsultationID string                            `json:"consultation_id"`
	Data           map[form.Section]form.SectionData `json:"data"`
	AutoSave       bool                              `json:"auto_save"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

// Agency carries the per-tenant branding the intake surfaces render with.
type Agency struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BrandColor string    `json:"brand_color,omitempty"`
	LogoURL    string    `json:"logo_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is the ambient cookie credential tying a browser to an agency.
type Session struct {
	Token     string    `json:"token"`
	AgencyID  string    `json:"agency_id"`
	CreatedAt time.Time `json:"created_at"`
}

// minimallyRequired holds the per-section predicates the server derives its
// completion percentage from. Business context and pain points are optional
// at this level; only the sections listed here move the figure.
var minimallyRequired = map[form.Section]func(form.SectionData) bool{
	form.SectionContact: func(d form.SectionData) bool {
		return d.StringField("name") != "" && d.StringField("email") != ""
	},
	form.SectionGoals: func(d form.SectionData) bool {
		return len(d.ListField("goals")) > 0
	},
}

// CompletionPercentage computes the share of sections whose minimally
// required fields are populated, as a 0-100 integer. This is the server's
// own figure, independent of any client-side step bookkeeping.
func CompletionPercentage(sections map[form.Section]form.SectionData) int {
	if len(minimallyRequired) == 0 {
		return 0
	}
	satisfied := 0
	for section, populated := range minimallyRequired {
		if populated(sections[section]) {
			satisfied++
		}
	}
	return satisfied * 100 / len(minimallyRequired)
}
