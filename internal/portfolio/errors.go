package portfolio

import (
	"errors"
	"strings"
)

// Error kinds. Every error returned by the Engine carries exactly one of
// them, so callers can tell business rejections from infrastructure failure
// with errors.Is or KindOf.
var (
	ErrValidation         = errors.New("invalid request")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNotFound           = errors.New("user not found")
	ErrStorage            = errors.New("storage failure")
)

type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind carried by err. Errors that did not come from the
// Engine are treated as storage failures.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrStorage
}

// IsRejection reports whether err is a business-rule rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	k := KindOf(err)
	return k != nil && k != ErrStorage
}
