package slots

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("slot not found")
	ErrAlreadyExists      = errors.New("slot already exists")
	ErrInvalidKey         = errors.New("invalid or expired recovery key")
	ErrAlreadyOwned       = errors.New("claimant already owns a slot")
	ErrLimitExceeded      = errors.New("ping limit exceeded")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrStoreIO            = errors.New("slot store failure")

	// errSkip aborts a sweep step whose record changed since the scan.
	errSkip = errors.New("record no longer eligible")
)

// StoreError wraps a persistence failure. It matches ErrStoreIO.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("slot store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreIO
}

var domainErrors = []error{ErrNotFound, ErrAlreadyExists, ErrPreconditionFailed, ErrInvalidKey, ErrAlreadyOwned, ErrLimitExceeded, errSkip}

// IsDomain reports whether err is an outcome of the slot rules rather than a
// persistence failure.
func IsDomain(err error) bool {
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// storeErr wraps err as a StoreError unless it already carries a domain meaning.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, ErrStoreIO) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}
