package api

import "errors"

var (
	// ErrSubjectNotFound is returned by SubjectDirectory implementations
	// when the referenced subject no longer exists. The builder and
	// executor treat it as a permanent failure.
	ErrSubjectNotFound = errors.New("subject not found")
)

// permanentError wraps an error to mark it non-retryable: validation
// failures, missing subjects, 4xx webhook responses. The executor fails the
// step immediately instead of retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// Permanent, or is ErrSubjectNotFound.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSubjectNotFound) {
		return true
	}
	var p *permanentError
	return errors.As(err, &p)
}
