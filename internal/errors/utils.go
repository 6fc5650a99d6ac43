package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Wrap wraps an error with additional context, creating a ManagerError if
// the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *ManagerError {
	if err == nil {
		return nil
	}

	var me *ManagerError
	if errors.As(err, &me) {
		return &ManagerError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       me,
			Context:     me.Context,
			Recoverable: me.Recoverable,
		}
	}

	return &ManagerError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeHook || errType == ErrorTypeProcess,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, message string) *ManagerError {
	return Wrap(err, ErrorTypeConfig, ErrCodeConfigInvalid, message)
}

// RecoverHook runs fn and converts a returned error or a panic into a
// HookError. The panic stack is kept in the error context.
func RecoverHook(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewHookError(name, fmt.Errorf("panic: %v", r)).
				WithContext("stack", string(debug.Stack()))
		}
	}()

	if hookErr := fn(); hookErr != nil {
		return NewHookError(name, hookErr)
	}
	return nil
}

// Join combines several errors; nil entries are skipped.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
