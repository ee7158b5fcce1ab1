// File path: internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
)

// ErrNotFound means the consultation (or draft) does not exist or is outside
// the caller's agency scope.
var ErrNotFound = errors.New("record not found")

// ValidationError carries a 400 response's message; it is surfaced inline on
// the form and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation failed"
	}
	return e.Message
}

// TransientError marks a failure worth retrying: 5xx responses, timeouts, and
// transport-level errors.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient failure (status %d)", e.Status)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is eligible for the auto-save retry
// path.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Gateway is the persistence boundary the form core depends on. It mirrors
// the consultation API: full-snapshot saves, one draft per consultation, and
// an explicit completion call that is the only way a consultation leaves
// draft status.
type Gateway interface {
	Create(ctx context.Context) (consultation.Consultation, error)
	Fetch(ctx context.Context, id string) (consultation.Consultation, error)
	Update(ctx context.Context, id string, sections map[form.Section]form.SectionData) (consultation.Consultation, error)
	SaveDraft(ctx context.Context, id string, data map[form.Section]form.SectionData) (consultation.Draft, error)
	// FetchDraft returns nil (not an error) when no draft exists yet.
	FetchDraft(ctx context.Context, id string) (*consultation.Draft, error)
	Complete(ctx context.Context, id string) (consultation.Consultation, error)
}
