package remedy

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. The kind decides whether the
// coordinator retries (transient) or fails the event immediately.
type Kind string

const (
	KindFetchError            Kind = "fetch-error"
	KindTooLarge              Kind = "too-large"
	KindEngineTimeout         Kind = "engine-timeout"
	KindEngineInvalidResponse Kind = "engine-invalid-response"
	KindPatchInapplicable     Kind = "patch-inapplicable"
	KindChecksStillFailing    Kind = "checks-still-failing"
	KindPublishError          Kind = "publish-error"
)

// Transient reports whether retrying can change the outcome.
func (k Kind) Transient() bool {
	switch k {
	case KindFetchError, KindEngineTimeout, KindPublishError:
		return true
	}
	return false
}

// Failure is a typed pipeline failure. Components return *Failure so the
// coordinator can apply per-kind retry policy and record the kind on the
// remediation record.
type Failure struct {
	Kind   Kind
	Detail string
	Err    error // underlying cause, may be nil
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Failf constructs a Failure with a formatted detail message.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// FailErr constructs a Failure wrapping an underlying error.
func FailErr(kind Kind, err error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain, or "" if the error
// is not a typed Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
