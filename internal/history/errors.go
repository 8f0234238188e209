package history

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrStorageRead ErrorType = iota
	ErrStorageWrite
	ErrEncode
	ErrDecode
	ErrValidation
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrStorageRead:
		return "StorageRead"
	case ErrStorageWrite:
		return "StorageWrite"
	case ErrEncode:
		return "Encode"
	case ErrDecode:
		return "Decode"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	e := NewError(errorType, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}

	if len(e.Context) > 0 {
		ctxParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var hErr *Error
	if errors.As(err, &hErr) {
		return hErr.Type == errorType
	}
	return false
}
