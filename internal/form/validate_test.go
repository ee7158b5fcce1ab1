// File path: internal/form/validate_test.go
package form

import "testing"

func TestValidateContact(t *testing.T) {
	cases := []struct {
		name string
		data SectionData
		want int
	}{
		{"empty", SectionData{}, 2},
		{"missing email", SectionData{"name": "Ada"}, 1},
		{"bad email", SectionData{"name": "Ada", "email": "not-an-email"}, 1},
		{"email without domain dot", SectionData{"name": "Ada", "email": "ada@host"}, 1},
		{"valid", SectionData{"name": "Ada", "email": "ada@example.com"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateSection(SectionContact, tc.data)
			if len(got) != tc.want {
				t.Fatalf("messages = %v, want %d", got, tc.want)
			}
		})
	}
}

func TestValidateGoalsAcceptsJSONListShape(t *testing.T) {
	// JSON decoding yields []any, not []string; both shapes must pass.
	if got := ValidateSection(SectionGoals, SectionData{"goals": []any{"ship it"}}); len(got) != 0 {
		t.Fatalf("[]any goals rejected: %v", got)
	}
	if got := ValidateSection(SectionGoals, SectionData{"goals": []string{}}); len(got) == 0 {
		t.Fatal("empty goals list should fail")
	}
}

func TestSectionEmptyPredicate(t *testing.T) {
	cases := []struct {
		name string
		data SectionData
		want bool
	}{
		{"nil", nil, true},
		{"blank strings", SectionData{"name": "  "}, true},
		{"empty list", SectionData{"goals": []string{}}, true},
		{"list with blanks", SectionData{"goals": []string{" ", ""}}, true},
		{"scalar", SectionData{"name": "Ada"}, false},
		{"list", SectionData{"goals": []string{"launch"}}, false},
		{"nested", SectionData{"meta": map[string]any{"ok": "yes"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.data.Empty(); got != tc.want {
				t.Fatalf("Empty() = %v, want %v", got, tc.want)
			}
		})
	}
}
