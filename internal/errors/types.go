// Package errors defines the structured error taxonomy used by the build
// supervisor, the compiler runner and the scaffolding workflow.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSpawn    ErrorType = "spawn"
	ErrorTypeHook     ErrorType = "hook"
	ErrorTypeProcess  ErrorType = "process"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeSpawn            = "ERR_SPAWN"
	ErrCodeSpawnFatal       = "ERR_SPAWN_FATAL"
	ErrCodeHook             = "ERR_HOOK"
	ErrCodeTerminationRace  = "ERR_TERMINATION_RACE"
	ErrCodeMissingStreams   = "ERR_MISSING_STREAMS"
	ErrCodeTerminate        = "ERR_TERMINATE"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeDownload         = "ERR_DOWNLOAD"
	ErrCodeScaffold         = "ERR_SCAFFOLD"
	ErrCodeSupervisorClosed = "ERR_SUPERVISOR_CLOSED"
)

// ManagerError is a structured error type with context.
type ManagerError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *ManagerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ManagerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ManagerError with the same type and code.
func (e *ManagerError) Is(target error) bool {
	var t *ManagerError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ManagerError) WithContext(key string, value interface{}) *ManagerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewSpawnError reports an executable that could not be located or started.
// The next change event may retry.
func NewSpawnError(executable string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeSpawn,
		Code:        ErrCodeSpawn,
		Message:     "cannot spawn " + executable,
		Cause:       cause,
		Recoverable: true,
	}).WithContext("executable", executable)
}

// NewFatalSpawnError reports a spawn-layer fault the OS will not recover
// from on its own (fork refused, out of memory). It ends supervision.
func NewFatalSpawnError(executable string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeSpawn,
		Code:        ErrCodeSpawnFatal,
		Message:     "spawn layer failure for " + executable,
		Cause:       cause,
		Recoverable: false,
	}).WithContext("executable", executable)
}

// NewHookError wraps an error or panic raised inside a build hook.
func NewHookError(hook string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeHook,
		Code:        ErrCodeHook,
		Message:     hook + " hook failed",
		Cause:       cause,
		Recoverable: true,
	}).WithContext("hook", hook)
}

// NewTerminationRace records a process that exited on its own after a kill
// had been requested but before it took effect.
func NewTerminationRace(pid int) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeProcess,
		Code:        ErrCodeTerminationRace,
		Message:     "process finished before termination took effect",
		Recoverable: true,
	}).WithContext("pid", pid)
}

// NewMissingStreamsError reports a child whose output could not be captured.
func NewMissingStreamsError(executable string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeProcess,
		Code:        ErrCodeMissingStreams,
		Message:     "output streams unavailable for " + executable,
		Cause:       cause,
		Recoverable: true,
	}).WithContext("executable", executable)
}

// NewTerminateError reports a kill request the OS rejected.
func NewTerminateError(pid int, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeProcess,
		Code:        ErrCodeTerminate,
		Message:     fmt.Sprintf("cannot terminate process %d", pid),
		Cause:       cause,
		Recoverable: true,
	}).WithContext("pid", pid)
}

// NewBuildFailedError reports a compiler run that exited unsuccessfully.
func NewBuildFailedError(exitCode int) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeProcess,
		Code:        ErrCodeBuildFailed,
		Message:     fmt.Sprintf("compiler exited with code %d", exitCode),
		Recoverable: true,
	}).WithContext("exit_code", exitCode)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *ManagerError {
	return &ManagerError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeConfigInvalid,
		Message:     message,
		Recoverable: false,
	}
}

// NewDownloadError reports a failed boilerplate download.
func NewDownloadError(url string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeNetwork,
		Code:        ErrCodeDownload,
		Message:     "cannot download " + url,
		Cause:       cause,
		Recoverable: false,
	}).WithContext("url", url)
}

// NewScaffoldError reports a failed project post-processing step.
func NewScaffoldError(step string, cause error) *ManagerError {
	return (&ManagerError{
		Type:        ErrorTypeIO,
		Code:        ErrCodeScaffold,
		Message:     "scaffold step " + step + " failed",
		Cause:       cause,
		Recoverable: false,
	}).WithContext("step", step)
}

// ErrSupervisorClosed is returned when a stopped supervisor is asked to act.
var ErrSupervisorClosed = &ManagerError{
	Type:    ErrorTypeInternal,
	Code:    ErrCodeSupervisorClosed,
	Message: "supervisor stopped",
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var me *ManagerError
	if errors.As(err, &me) {
		return me.Recoverable
	}

	return false
}

// IsSpawnError checks if an error is a recoverable spawn failure.
func IsSpawnError(err error) bool {
	return hasCode(err, ErrCodeSpawn)
}

// IsFatal checks if an error must end supervision.
func IsFatal(err error) bool {
	return hasCode(err, ErrCodeSpawnFatal)
}

// IsMissingStreams checks if an error is a MissingStreams failure.
func IsMissingStreams(err error) bool {
	return hasCode(err, ErrCodeMissingStreams)
}

// IsHookError checks if an error came from a build hook.
func IsHookError(err error) bool {
	return hasCode(err, ErrCodeHook)
}

func hasCode(err error, code string) bool {
	var me *ManagerError
	if errors.As(err, &me) {
		return me.Code == code
	}

	return false
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a severity chosen from its type and code.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var me *ManagerError
	if !errors.As(err, &me) {
		h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
		return
	}

	fields = append(fields, "type", me.Type, "code", me.Code)
	for k, v := range me.Context {
		fields = append(fields, k, v)
	}

	switch me.Code {
	case ErrCodeTerminationRace:
		h.logger.Debug(ctx, me.Message, fields...)
	case ErrCodeSpawnFatal, ErrCodeMissingStreams:
		h.logger.Fatal(ctx, err, me.Message, fields...)
	case ErrCodeHook, ErrCodeBuildFailed:
		h.logger.Warn(ctx, err, me.Message, fields...)
	default:
		h.logger.Error(ctx, err, me.Message, fields...)
	}
}
