package orchestrators

import (
	"errors"
	"fmt"

	"frontdesk/internal/domain/admission"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/outbox"
	"frontdesk/internal/domain/plan"
)

// storeFailure marks a persistence error as retryable. Not-found errors pass
// through unchanged so handlers can still answer 404.
func storeFailure(op string, err error) error {
	if errors.Is(err, member.ErrNotFound) || errors.Is(err, plan.ErrNotFound) || errors.Is(err, outbox.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", admission.ErrRetryable, op, err)
}
