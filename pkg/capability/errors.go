package capability

import (
	"errors"
	"fmt"
)

// A Kind classifies a capability failure.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	// KindUpdate is a merge or validation failure raised by an Updater.
	KindUpdate
	// KindSink is a write failure reported by the underlying sink.
	KindSink
	// KindRepresentation means a value's state could not be rendered.
	KindRepresentation
)

// Sentinels matched by errors.Is for each Kind.
var (
	ErrUpdate         = errors.New("update failed")
	ErrSink           = errors.New("sink write failed")
	ErrRepresentation = errors.New("value cannot be represented")
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindSink:
		return "sink"
	case KindRepresentation:
		return "representation"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindUpdate:
		return ErrUpdate
	case KindSink:
		return ErrSink
	case KindRepresentation:
		return ErrRepresentation
	}
	return nil
}

// Error is the failure returned by Updater and ToWriter implementations.
// Implementers attach their own causes through Err.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.String() + " error"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UpdateError wraps err as a KindUpdate failure of op.
func UpdateError(op string, err error) error {
	return &Error{Kind: KindUpdate, Op: op, Err: err}
}

// Updatef returns a KindUpdate failure of op with a formatted cause.
func Updatef(op, format string, args ...any) error {
	return UpdateError(op, fmt.Errorf(format, args...))
}

// SinkError wraps err as a KindSink failure of op. It returns nil for a nil
// err, and an err that already carries a *Error is returned as-is.
func SinkError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindSink, Op: op, Err: err}
}

// RepresentationError wraps err as a KindRepresentation failure of op.
func RepresentationError(op string, err error) error {
	return &Error{Kind: KindRepresentation, Op: op, Err: err}
}

// Representationf returns a KindRepresentation failure of op with a
// formatted cause.
func Representationf(op, format string, args ...any) error {
	return RepresentationError(op, fmt.Errorf(format, args...))
}
