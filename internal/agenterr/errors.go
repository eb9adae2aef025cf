// Package agenterr provides the error taxonomy for the remediation agent.
//
// Every failure that crosses a package boundary is an *Error tagged with a
// Kind. The orchestrator branches on the kind to decide whether a failure is
// recovered locally (config, persistence), treated as a gate failure (safety
// signals, quota) or terminal for one module (detection, timeouts, panics).
package agenterr

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig
	KindDetection
	KindRemediation
	KindVerification
	KindSafetyGate
	KindQuota
	KindPersistence
	KindTimeout
	KindCanceled
	KindPanic
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDetection:
		return "detection"
	case KindRemediation:
		return "remediation"
	case KindVerification:
		return "verification"
	case KindSafetyGate:
		return "safety_gate"
	case KindQuota:
		return "quota"
	case KindPersistence:
		return "persistence"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindPanic:
		return "panic"
	case KindLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Error is the base error type for agent failures.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g. "disk.Detect")
	Op string

	// Module is the fault module the error belongs to, if any
	Module string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrConfig        = &Error{Kind: KindConfig}
	ErrDetection     = &Error{Kind: KindDetection}
	ErrRemediation   = &Error{Kind: KindRemediation}
	ErrVerification  = &Error{Kind: KindVerification}
	ErrSafetyGate    = &Error{Kind: KindSafetyGate}
	ErrQuotaExceeded = &Error{Kind: KindQuota, Message: "daily remediation quota reached"}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrCanceled      = &Error{Kind: KindCanceled}
	ErrPanic         = &Error{Kind: KindPanic}
	ErrLocked        = &Error{Kind: KindLocked}
)

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap wraps err with a kind and operation. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// ForModule returns a copy of e attributed to the named module.
func (e *Error) ForModule(name string) *Error {
	cp := *e
	cp.Module = name
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
