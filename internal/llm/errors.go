package llm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by registries when an id has no entry.
var ErrNotFound = errors.New("not found")

var (
	ErrUnknownModel         = errors.New("unknown model")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrUnsupportedAuthMode  = errors.New("unsupported authentication mode")
	ErrMissingCredential    = errors.New("missing credential")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrBackendConstruction  = errors.New("backend construction failed")
)

// ConfigError reports which resolution or construction step failed.
// It matches its kind sentinel and its cause with errors.Is.
type ConfigError struct {
	kind  error
	msg   string
	cause error
}

func (e *ConfigError) Error() string {
	msg := e.kind.Error() + ": " + e.msg
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Kind returns the sentinel describing the failed step.
func (e *ConfigError) Kind() error {
	return e.kind
}

func newConfigError(kind error, cause error, format string, args ...any) error {
	return &ConfigError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

func unsupportedOperation(backend, op string) error {
	return newConfigError(ErrUnsupportedOperation, nil, "%s backend does not support %s", backend, op)
}
