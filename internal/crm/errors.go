package crm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tells the caller what to do with an error.
type Kind int

const (
	// KindUnknown is reported for errors that are not *Error.
	KindUnknown Kind = iota
	// KindFatal errors need a code or configuration change. They abort the
	// whole sync and are returned to the caller.
	KindFatal
	// KindSkip errors mean there is nothing to do. They are logged only.
	KindSkip
	// KindRetryable errors abandon one unit of work. The caller may retry.
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindSkip:
		return "skip"
	case KindRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Code identifies the failure.
type Code string

const (
	CodeConfiguration         Code = "CONFIGURATION"
	CodeUnsupportedObjectType Code = "UNSUPPORTED_OBJECT_TYPE"
	CodeValidation            Code = "VALIDATION"
	CodeAssociation           Code = "ASSOCIATION"
	CodeDuplicateMapping      Code = "DUPLICATE_MAPPING"
	CodeProviderConnection    Code = "PROVIDER_CONNECTION"
	CodeRemoteAPI             Code = "REMOTE_API"
	CodeLookupStore           Code = "LOOKUP_STORE"
)

// Error is the error type of the sync engine and provider adapters.
type Error struct {
	Code        Code
	Kind        Kind
	Op          string
	Provider    string
	Environment string
	Message     string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Provider != "" {
		b.WriteString(e.Provider)
		if e.Environment != "" {
			b.WriteString("/")
			b.WriteString(e.Environment)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// In returns a copy of e tagged with a provider and environment.
func (e *Error) In(provider, environment string) *Error {
	c := *e
	c.Provider = provider
	c.Environment = environment
	return &c
}

// Fatal builds a KindFatal error.
func Fatal(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindFatal, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Skip builds a KindSkip error.
func Skip(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindSkip, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Retryable wraps err as a KindRetryable error.
func Retryable(code Code, op string, err error) *Error {
	return &Error{Code: code, Kind: KindRetryable, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}

func IsSkip(err error) bool {
	return KindOf(err) == KindSkip
}

func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
