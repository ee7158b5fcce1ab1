// File path: internal/form/validate.go
package form

import (
	"fmt"
	"strings"
)

// ValidateSection applies the authored rules for a section and returns the
// human-readable messages, empty when the payload passes. These rules are
// stricter than the step-completion predicate: a section can count as
// "touched" for progress while still failing validation on submit.
func ValidateSection(section Section, data SectionData) []string {
	switch section {
	case SectionContact:
		return validateContact(data)
	case SectionBusiness:
		return validateBusiness(data)
	case SectionPainPoints:
		return validatePainPoints(data)
	case SectionGoals:
		return validateGoals(data)
	default:
		return []string{fmt.Sprintf("unknown section %q", string(section))}
	}
}

func validateContact(data SectionData) []string {
	var messages []string
	if data.StringField("name") == "" {
		messages = append(messages, "Please enter your name")
	}
	email := data.StringField("email")
	if email == "" {
		messages = append(messages, "Please enter an email address")
	} else if !plausibleEmail(email) {
		messages = append(messages, "That email address does not look right")
	}
	return messages
}

func validateBusiness(data SectionData) []string {
	var messages []string
	if data.StringField("company") == "" {
		messages = append(messages, "Please tell us your company name")
	}
	if data.StringField("industry") == "" && data.StringField("description") == "" {
		messages = append(messages, "Describe your business or pick an industry")
	}
	return messages
}

func validatePainPoints(data SectionData) []string {
	if len(data.ListField("pain_points")) == 0 && data.StringField("notes") == "" {
		return []string{"List at least one pain point or add a note"}
	}
	return nil
}

func validateGoals(data SectionData) []string {
	if len(data.ListField("goals")) == 0 {
		return []string{"Add at least one goal for the project"}
	}
	return nil
}

// plausibleEmail is a sanity check, not RFC parsing: one @, a dot in the
// domain, no spaces.
func plausibleEmail(email string) bool {
	if strings.ContainsAny(email, " \t") {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
