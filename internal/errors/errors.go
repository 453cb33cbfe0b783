// Package errors provides structured error handling for netrecon operations.
// Errors carry a code so callers can branch on the failure class without
// matching on message text.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Network and scanning errors.
	CodeHostUnreachable     ErrorCode = "HOST_UNREACHABLE"
	CodeScanFailed          ErrorCode = "SCAN_FAILED"
	CodeDiscoveryFailed     ErrorCode = "DISCOVERY_FAILED"
	CodeTargetInvalid       ErrorCode = "TARGET_INVALID"
	CodeCommandFailed       ErrorCode = "COMMAND_FAILED"
	CodeGatewayUndetectable ErrorCode = "GATEWAY_UNDETECTABLE"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"
	CodeNotFound           ErrorCode = "NOT_FOUND"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// DiscoveryError represents host discovery errors.
type DiscoveryError struct {
	Code    ErrorCode
	Message string
	Network string
	Method  string
	Cause   error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Network != "" {
		msg = fmt.Sprintf("%s (network: %s)", msg, e.Network)
	}
	if e.Method != "" {
		msg = fmt.Sprintf("%s (method: %s)", msg, e.Method)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// TopologyError represents gateway, route and path detection errors.
type TopologyError struct {
	Code    ErrorCode
	Message string
	Command string
	Cause   error
}

// Error implements the error interface.
func (e *TopologyError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Command != "" {
		msg = fmt.Sprintf("%s (command: %s)", msg, e.Command)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TopologyError) Unwrap() error {
	return e.Cause
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Query     string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{Code: code, Message: message}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from the first coded error in the chain.
func GetCode(err error) ErrorCode {
	var (
		scanErr      *ScanError
		discoveryErr *DiscoveryError
		topologyErr  *TopologyError
		databaseErr  *DatabaseError
		configErr    *ConfigError
	)
	switch {
	case stderrors.As(err, &scanErr):
		return scanErr.Code
	case stderrors.As(err, &discoveryErr):
		return discoveryErr.Code
	case stderrors.As(err, &topologyErr):
		return topologyErr.Code
	case stderrors.As(err, &databaseErr):
		return databaseErr.Code
	case stderrors.As(err, &configErr):
		return configErr.Code
	}
	return CodeUnknown
}

// IsFatal determines if an error should abort a scan rather than degrade it.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeTargetInvalid, CodeConfiguration, CodeValidation, CodeDatabaseMigration:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for a malformed target specification.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "invalid target specification", target)
}

// ErrScanCanceled creates an error for a scan stopped by its caller.
func ErrScanCanceled(target string) *ScanError {
	err := NewScanErrorWithTarget(CodeCanceled, "scan canceled", target)
	err.Cause = context.Canceled
	return err
}

// ErrDiscoveryFailed creates an error for a discovery strategy failure.
func ErrDiscoveryFailed(network, method string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:    CodeDiscoveryFailed,
		Message: "network discovery failed",
		Network: network,
		Method:  method,
		Cause:   err,
	}
}

// ErrGatewayUndetectable creates an error for a default route that could not be read.
func ErrGatewayUndetectable(command string, err error) *TopologyError {
	return &TopologyError{
		Code:    CodeGatewayUndetectable,
		Message: "gateway undetectable",
		Command: command,
		Cause:   err,
	}
}

// ErrCommandFailed creates an error for an external command that could not run.
func ErrCommandFailed(command string, err error) *TopologyError {
	return &TopologyError{
		Code:    CodeCommandFailed,
		Message: "command failed",
		Command: command,
		Cause:   err,
	}
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "invalid configuration value", field, value)
}
