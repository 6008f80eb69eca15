package common

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidURL      = errors.New("invalid URL")
	ErrBlockedURL      = errors.New("URL not allowed")
	ErrTimeout         = errors.New("operation timed out")
	ErrMissingAPIKey   = errors.New("API key required")
	ErrOperationFailed = errors.New("operation failed")
	ErrEngineClosed    = errors.New("engine closed")
)

type MCPError struct {
	Code    string
	Message string
	Cause   error
}

func (e *MCPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MCPError) Unwrap() error {
	return e.Cause
}

func NewMCPError(code, message string, cause error) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBlockedURL(err error) bool {
	return errors.Is(err, ErrBlockedURL)
}
