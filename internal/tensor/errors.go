package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a contract violation.
type Kind int

// Error kinds. Every failure raised by the view engine or kernel dispatch
// carries exactly one of these.
const (
	KindDeviceMismatch Kind = iota + 1
	KindContiguity
	KindDtypeMismatch
	KindShape
	KindUnsupportedDataType
	KindUnsupportedDevice
	KindAllocation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDeviceMismatch:
		return "device mismatch"
	case KindContiguity:
		return "contiguity"
	case KindDtypeMismatch:
		return "dtype mismatch"
	case KindShape:
		return "shape"
	case KindUnsupportedDataType:
		return "unsupported data type"
	case KindUnsupportedDevice:
		return "unsupported device"
	case KindAllocation:
		return "allocation"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is matching by kind.
var (
	ErrDeviceMismatch      = &Error{Kind: KindDeviceMismatch}
	ErrContiguity          = &Error{Kind: KindContiguity}
	ErrDtypeMismatch       = &Error{Kind: KindDtypeMismatch}
	ErrShape               = &Error{Kind: KindShape}
	ErrUnsupportedDataType = &Error{Kind: KindUnsupportedDataType}
	ErrUnsupportedDevice   = &Error{Kind: KindUnsupportedDevice}
	ErrAllocation          = &Error{Kind: KindAllocation}
)

// Error is a structured contract violation.
type Error struct {
	Kind    Kind
	Op      string   // Operation that failed, e.g. "linear" or "slice"
	Msg     string   // Human-readable detail
	Tensors []string // Argument names involved
	Err     error    // Underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if len(e.Tensors) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Tensors, ", "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrShape) works
// for every shape violation regardless of operation.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op string, tensors []string, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Msg:     fmt.Sprintf(format, args...),
		Tensors: tensors,
	}
}

// KindOf returns the kind carried by err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
