package projections

import (
	"errors"
	"fmt"

	"frontdesk/internal/domain/admission"
	domainMember "frontdesk/internal/domain/member"
)

// storeFailure marks a read failure as retryable, keeping member.ErrNotFound as is.
func storeFailure(op string, err error) error {
	if errors.Is(err, domainMember.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", admission.ErrRetryable, op, err)
}
