// Package outcome defines the tagged result every bridge call ends in, and the
// error taxonomy that failures are classified by.
package outcome

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindMissingArgument     Kind = "MissingArgument"
	KindInvalidEnumValue    Kind = "InvalidEnumValue"
	KindCommandConstruction Kind = "CommandConstructionError"
	KindDispatch            Kind = "DispatchError"
	KindExec                Kind = "ExecError"

	// KindNotImplemented is only produced by method routing, never by Handle.
	KindNotImplemented Kind = "NotImplemented"
)

// Validation reports whether the kind is detected before any dispatch attempt.
func (k Kind) Validation() bool {
	return k == KindMissingArgument || k == KindInvalidEnumValue
}

// Error is a classified bridge error.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Newf builds an Error of the given kind with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, detail string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// MissingArgument reports a required argument that was absent or empty.
func MissingArgument(name string) *Error {
	return &Error{Kind: KindMissingArgument, Detail: name}
}

// InvalidEnumValue reports a value outside a field's enumerated domain.
func InvalidEnumValue(field, value string, allowed []string) *Error {
	return &Error{
		Kind:   KindInvalidEnumValue,
		Detail: fmt.Sprintf("%s: %q is not one of %v", field, value, allowed),
	}
}

// KindOf returns the kind of the first *Error in err's chain, and false if
// there is none.
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}

// Outcome is the result of one call: Success(Message) or Failure(Kind, Detail).
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success acknowledges an accepted call.
func Success(message string) Outcome {
	return Outcome{OK: true, Message: message}
}

// Failure reports a failed call.
func Failure(kind Kind, detail string) Outcome {
	return Outcome{Kind: kind, Detail: detail}
}

// FromError converts err into a Failure. Unclassified errors are reported as
// DispatchError since they can only originate below validation.
func FromError(err error) Outcome {
	var be *Error
	if errors.As(err, &be) {
		detail := be.Detail
		if be.Err != nil {
			detail = fmt.Sprintf("%s: %v", be.Detail, be.Err)
		}
		return Failure(be.Kind, detail)
	}
	return Failure(KindDispatch, err.Error())
}

func (o Outcome) String() string {
	if o.OK {
		return "Success(" + o.Message + ")"
	}
	return fmt.Sprintf("Failure(%s, %s)", o.Kind, o.Detail)
}
