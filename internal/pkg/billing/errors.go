package billing

import "errors"

// Error taxonomy for webhook processing. ErrInvalidPayload and
// ErrStoreUnavailable are terminal for a given attempt; ErrWriteConflict is
// the one condition worth retrying, since the conflicting writer has already
// committed and a re-read will see its result.
var (
	// ErrInvalidPayload marks a malformed or incomplete provider payload.
	// Retrying cannot fix it; the delivery is rejected.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrWriteConflict is returned when a conditional write lost the race
	// against a concurrent update of the same record.
	ErrWriteConflict = errors.New("subscription write conflict")

	// ErrStoreUnavailable wraps infrastructure failures from the record
	// store. The delivery is surfaced as a processing error so the provider
	// (or the replay worker) tries again later.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)

// IsRetryable reports whether err is worth another reconciliation attempt
// within the same delivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
