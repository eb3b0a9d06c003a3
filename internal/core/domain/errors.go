package domain

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. Component errors wrap one of these so the
// orchestrator and the chat layer can branch with errors.Is without
// caring which component produced the failure.
var (
	// ErrTooLarge means the payload crossed the size ceiling. It is always
	// terminal and never triggers a fallback attempt.
	ErrTooLarge = errors.New("payload exceeds size ceiling")
	// ErrBadStatus is a non-success HTTP response during fetch.
	ErrBadStatus = errors.New("unexpected response status")
	// ErrTransport is a network-level failure (timeout, reset).
	ErrTransport = errors.New("network transport failure")
	// ErrToolFailure is a non-zero exit or missing output from the
	// external extraction tool.
	ErrToolFailure = errors.New("extraction tool failed")
	// ErrTimeout means the encoder outlived its configured deadline and
	// was forcibly terminated.
	ErrTimeout = errors.New("encoder timed out")
	// ErrEncodeFailure is a non-zero exit from the encoder.
	ErrEncodeFailure = errors.New("encoder failed")
	// ErrOutputMissing is a zero exit with no usable output file.
	ErrOutputMissing = errors.New("encoder output missing or empty")
	// ErrCancelled marks a job that acknowledged a caller-supplied
	// cancellation signal.
	ErrCancelled = errors.New("job cancelled")
	// ErrCallerBusy rejects a second concurrent job from the same caller.
	ErrCallerBusy = errors.New("caller already has a job in flight")
)

// ResolutionError means the resolver could not produce a fetchable
// location. The orchestrator treats it as a signal to fall back to the
// extractor rather than aborting the job.
type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError is a failed streaming download. Kind is one of ErrTooLarge,
// ErrBadStatus, or ErrTransport.
type FetchError struct {
	Kind   error
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch: %v (HTTP %d)", e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch: %v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch: %v", e.Kind)
}

func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// ExtractError is a failed external extraction. Kind is ErrToolFailure
// or ErrTooLarge.
type ExtractError struct {
	Kind   error
	Stderr string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extract: %v", e.Kind)
}

func (e *ExtractError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// TranscodeError is a failed encoder run. Kind is ErrTimeout,
// ErrEncodeFailure, or ErrOutputMissing.
type TranscodeError struct {
	Kind   error
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcode: %v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transcode: %v", e.Kind)
}

func (e *TranscodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// InternalError wraps unexpected failures (filesystem, programming
// errors) so the caller still receives a typed result.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
