// Package errors provides structured error handling for scanflow operations.
// It defines error codes, error types, and utilities for classifying errors
// as batch-fatal or local to a single target.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Target resolution errors. These are batch-fatal: a malformed target
	// specification means the requested scope is ill-formed.
	CodeTargetInvalid ErrorCode = "TARGET_INVALID"
	CodeInputFile     ErrorCode = "INPUT_FILE"

	// Per-host errors. None of these abort the batch.
	CodeProbeFailed       ErrorCode = "PROBE_FAILED"
	CodeWorkerLaunch      ErrorCode = "WORKER_LAUNCH"
	CodeWorkerExit        ErrorCode = "WORKER_EXIT"
	CodeArtifactMissing   ErrorCode = "ARTIFACT_MISSING"
	CodeArtifactMalformed ErrorCode = "ARTIFACT_MALFORMED"

	// Output and persistence errors.
	CodeReportWrite        ErrorCode = "REPORT_WRITE"
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
)

// ScanError represents an error that occurred during scan orchestration.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// New creates a new scan error with the specified code and message.
func New(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewWithTarget creates a scan error for a specific target.
func NewWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// Wrap wraps an existing error as a scan error.
func Wrap(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// WrapWithTarget wraps an error with target information.
func WrapWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target, Cause: err}
}

// IsCode checks if an error (or any error it wraps) has a specific code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) ErrorCode {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsBatchFatal determines if an error should abort the whole run. Only
// input validation, configuration, and output-stream errors qualify;
// everything local to one target is absorbed into that target's report row.
func IsBatchFatal(err error) bool {
	switch GetCode(err) {
	case CodeTargetInvalid, CodeInputFile, CodeConfiguration, CodeReportWrite:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid target specifications.
func ErrInvalidTarget(target string) *ScanError {
	return NewWithTarget(CodeTargetInvalid, "invalid target specification", target)
}

// ErrProbeFailed creates an error for liveness probe failures.
func ErrProbeFailed(target string, err error) *ScanError {
	return WrapWithTarget(CodeProbeFailed, "liveness probe failed", target, err)
}

// ErrWorkerLaunch creates an error for scan worker launch failures.
func ErrWorkerLaunch(target string, err error) *ScanError {
	return WrapWithTarget(CodeWorkerLaunch, "failed to launch scan worker", target, err)
}

// ErrArtifactMissing creates an error for workers that exited without output.
func ErrArtifactMissing(target string) *ScanError {
	return NewWithTarget(CodeArtifactMissing, "worker exited without producing an artifact", target)
}

// ErrArtifactMalformed creates an error for unparsable artifacts.
func ErrArtifactMalformed(target string, err error) *ScanError {
	return WrapWithTarget(CodeArtifactMalformed, "artifact is not parsable", target, err)
}
