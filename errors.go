package orthoexpr

import (
	"errors"
	"fmt"
)

// Kind classifies every error a pipeline stage can return.
type Kind byte

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindIO
	KindExternalService
)

var (
	// ErrConfiguration marks bad, contradictory or unknown parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks a violated structural invariant: wrong shape, wrong
	// cardinality, missing columns or duplicated identifiers.
	ErrValidation = errors.New("validation error")

	// ErrIO marks a missing or malformed file or resource.
	ErrIO = errors.New("io error")

	// ErrExternalService marks a failure of the annotation service or of a
	// delegated normalization or statistical routine.
	ErrExternalService = errors.New("external service error")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:   ErrConfiguration,
	KindValidation:      ErrValidation,
	KindIO:              ErrIO,
	KindExternalService: ErrExternalService,
}

func (k Kind) String() string {
	if s, exists := kindSentinels[k]; exists {
		return s.Error()
	}
	return "unknown error"
}

// Error carries the kind of failure, the operation that detected it and the
// underlying cause. errors.Is(err, ErrValidation) and friends match on Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Wrap attaches a kind to err. A nil err stays nil. If err already carries a
// kind, that kind is kept and only the operation is prefixed.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Configf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func Validationf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func IOf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindIO, Op: op, Err: fmt.Errorf(format, args...)}
}

func Externalf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindExternalService, Op: op, Err: fmt.Errorf(format, args...)}
}
