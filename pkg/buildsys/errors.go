package buildsys

import (
	"errors"
	"fmt"

	"mvdan.cc/sh/v3/interp"
)

// ErrorKind classifies why a task failed
type ErrorKind int

const (
	// KindRuntime covers I/O and other unexpected failures
	KindRuntime ErrorKind = iota
	// KindConfig means a required input or setting is missing or invalid
	KindConfig
	// KindValidation means a linter reported violations
	KindValidation
	// KindTransform means a compiler, bundler or minifier rejected its input
	KindTransform
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindValidation:
		return "validation error"
	case KindTransform:
		return "transformation error"
	default:
		return "runtime error"
	}
}

// StageError is returned by RunTask when a task fails. Code is the exit status the process
// should terminate with.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Code  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(kind ErrorKind, err error) *StageError {
	if err == nil {
		return nil
	}

	code := 1
	if status, ok := shellStatus(err); ok && status != 0 {
		code = status
	}
	return &StageError{Kind: kind, Code: code, Err: err}
}

// ConfigError marks err as a configuration error
func ConfigError(err error) error {
	if err == nil {
		return nil
	}
	return newStageError(KindConfig, err)
}

// ValidationError marks err as a lint violation
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	return newStageError(KindValidation, err)
}

// TransformError marks err as a compile or bundle failure
func TransformError(err error) error {
	if err == nil {
		return nil
	}
	return newStageError(KindTransform, err)
}

// ErrorKindOf returns the kind of the first StageError in err's chain
func ErrorKindOf(err error) ErrorKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return KindRuntime
}

// ExitCode maps err to a process exit status: 0 for nil, the failing stage's code if known,
// 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.Code != 0 {
		return stageErr.Code
	}

	if status, ok := shellStatus(err); ok && status != 0 {
		return status
	}
	return 1
}

func shellStatus(err error) (int, bool) {
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status), true
	}
	return 0, false
}
