// Package apperr holds the error taxonomy shared by the pipeline clients.
//
// Every client failure is returned as a *Fail. A Fail unwraps to one of the kind
// sentinels below and to its cause, so callers can branch with errors.Is.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/suyaash/batchrec/internal/models"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNetwork       = errors.New("network error")
	ErrParse         = errors.New("parse error")
	ErrConfiguration = errors.New("configuration error")
)

// Fail is a typed failure carrying the stage it happened in.
type Fail struct {
	Kind    error
	Stage   models.Stage
	Message string
	Err     error
}

func (f *Fail) Error() string {
	if f.Err != nil && f.Err.Error() != f.Message {
		return fmt.Sprintf("%s (%s): %s: %v", f.Kind, f.Stage, f.Message, f.Err)
	}
	return fmt.Sprintf("%s (%s): %s", f.Kind, f.Stage, f.Message)
}

func (f *Fail) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Detail returns the immutable detail attached to a failed state.
func (f *Fail) Detail() models.ErrorDetail {
	return models.ErrorDetail{Stage: f.Stage, Message: f.Message}
}

func Validation(format string, args ...any) *Fail {
	return &Fail{Kind: ErrValidation, Stage: models.StageValidation, Message: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...any) *Fail {
	return &Fail{Kind: ErrConfiguration, Stage: models.StageValidation, Message: fmt.Sprintf(format, args...)}
}

// Network reports a transport failure or an unusable status at the given stage.
func Network(stage models.Stage, cause error, format string, args ...any) *Fail {
	return &Fail{Kind: ErrNetwork, Stage: stage, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Parse(cause error, format string, args ...any) *Fail {
	return &Fail{Kind: ErrParse, Stage: models.StageParse, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Transport classifies an error returned by an HTTP round trip. Timeouts and
// cancellations read better with their own message.
func Transport(cause error, what string) *Fail {
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return Network(models.StageNetwork, cause, "%s timed out", what)
	case errors.Is(cause, context.Canceled):
		return Network(models.StageNetwork, cause, "%s canceled", what)
	}
	return Network(models.StageNetwork, cause, "%s failed: %v", what, cause)
}

// DetailOf converts any error into an ErrorDetail. Errors that are not a
// *Fail are reported as network failures.
func DetailOf(err error) models.ErrorDetail {
	var f *Fail
	if errors.As(err, &f) {
		return f.Detail()
	}
	return models.ErrorDetail{Stage: models.StageNetwork, Message: err.Error()}
}

// IsRetryable reports whether a user-initiated retry can succeed without
// operator intervention.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrConfiguration) && !errors.Is(err, ErrValidation)
}
