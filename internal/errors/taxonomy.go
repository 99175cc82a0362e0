package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure raised while encoding, decoding, or sequencing
// EtherNet/IP traffic.
type Kind int

const (
	KindUnknown Kind = iota
	KindSchema
	KindUnknownVariant
	KindProtocolViolation
	KindTimeout
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema error"
	case KindUnknownVariant:
		return "unknown variant"
	case KindProtocolViolation:
		return "protocol violation"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is matching against a Kind.
var (
	ErrSchema            = stderrors.New(KindSchema.String())
	ErrUnknownVariant    = stderrors.New(KindUnknownVariant.String())
	ErrProtocolViolation = stderrors.New(KindProtocolViolation.String())
	ErrTimeout           = stderrors.New(KindTimeout.String())
	ErrTransport         = stderrors.New(KindTransport.String())
)

func (k Kind) sentinel() error {
	switch k {
	case KindSchema:
		return ErrSchema
	case KindUnknownVariant:
		return ErrUnknownVariant
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindTimeout:
		return ErrTimeout
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// ProtocolError carries a Kind, the operation that failed, and the cause.
type ProtocolError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *ProtocolError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op, format string, args ...interface{}) error {
	return &ProtocolError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Schema reports a malformed or short buffer.
func Schema(op, format string, args ...interface{}) error {
	return newError(KindSchema, op, format, args...)
}

// UnknownVariant reports a discriminator or command with no known shape.
func UnknownVariant(op, format string, args ...interface{}) error {
	return newError(KindUnknownVariant, op, format, args...)
}

// Violation reports a peer breaking the session rules.
func Violation(op, format string, args ...interface{}) error {
	return newError(KindProtocolViolation, op, format, args...)
}

// Timeout reports an elapsed send wait or a stalled partial frame.
func Timeout(op, format string, args ...interface{}) error {
	return newError(KindTimeout, op, format, args...)
}

// Transport wraps an underlying connection failure.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProtocolError{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the Kind of the first ProtocolError in err's chain.
func KindOf(err error) Kind {
	var pe *ProtocolError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
