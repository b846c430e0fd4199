package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound                ErrorKind = "NOT_FOUND"
	KindMisconfigured           ErrorKind = "MISCONFIGURED"
	KindToolUnavailable         ErrorKind = "TOOL_UNAVAILABLE"
	KindAuthenticationFailed    ErrorKind = "AUTHENTICATION_FAILED"
	KindHostUnreachable         ErrorKind = "HOST_UNREACHABLE"
	KindPathNotWritable         ErrorKind = "PATH_NOT_WRITABLE"
	KindUnsupportedKind         ErrorKind = "UNSUPPORTED_KIND"
	KindDumpFailed              ErrorKind = "DUMP_FAILED"
	KindStorageFailed           ErrorKind = "STORAGE_FAILED"
	KindMetadataStoreUnwritable ErrorKind = "METADATA_STORE_UNWRITABLE"
	KindUnknown                 ErrorKind = "UNKNOWN"
)

// Error is the user-facing error type returned by every public operation.
// Message must never contain credentials.
type Error struct {
	Kind        ErrorKind
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) WithRemediation(text string) *Error {
	e.Remediation = text
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// RemediationOf returns the remediation text attached to err, if any.
func RemediationOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Remediation
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
