package failure

import "errors"

// Kind identifies one class of pipeline failure. Kinds are comparable error
// values, so errors.Is(err, failure.UnknownElement) works on any wrapped error.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	PerceptionUnavailable Kind = "perception unavailable"
	PerceptionMalformed   Kind = "perception malformed"
	DecisionUnavailable   Kind = "decision unavailable"
	DecisionMalformed     Kind = "decision malformed"
	UnknownElement        Kind = "unknown element"
	InvalidAction         Kind = "invalid action"
	UnsupportedAction     Kind = "unsupported action"
	SecurityGateClosed    Kind = "security gate closed"
	CodeTimeout           Kind = "code timeout"
	CodeExecutionFailed   Kind = "code execution failed"
	PipelineFailed        Kind = "pipeline failed"
)

// Error carries a Kind plus an optional detail message and underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New returns an *Error without an underlying cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap returns an *Error that keeps err reachable through errors.Is/As.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf reports the first Kind found in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
