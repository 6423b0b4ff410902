package domain

import (
	"errors"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
)

// permanentError wraps a job failure that no redelivery can fix.
type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent job failure"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks err so the worker dead-letters the job instead of
// retrying it.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}

// permanentForCodes marks err permanent when its application code is one of
// codes and returns it unchanged otherwise.
func permanentForCodes(err error, codes ...apperrors.Code) error {
	if err == nil {
		return nil
	}
	code := apperrors.GetCode(err)
	for _, c := range codes {
		if code == c {
			return Permanent(err)
		}
	}
	return err
}
