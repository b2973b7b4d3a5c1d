package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can apply policy without string matching.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
	KindQuery     ErrorKind = "query"
	KindDelivery  ErrorKind = "delivery"
	KindConfig    ErrorKind = "config"
)

// ErrNotAcknowledged is returned when a channel answered but did not confirm delivery.
var ErrNotAcknowledged = errors.New("delivery not acknowledged")

// Error is a classified failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func TransportError(op string, err error) error { return &Error{Kind: KindTransport, Op: op, Err: err} }
func DecodeError(op string, err error) error    { return &Error{Kind: KindDecode, Op: op, Err: err} }
func QueryError(op string, err error) error     { return &Error{Kind: KindQuery, Op: op, Err: err} }
func DeliveryError(op string, err error) error  { return &Error{Kind: KindDelivery, Op: op, Err: err} }
func ConfigError(op string, err error) error    { return &Error{Kind: KindConfig, Op: op, Err: err} }

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
