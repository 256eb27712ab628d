package errs

import "fmt"

// FormatError is returned when a datagram or frame does not match the wire format
type FormatError struct {
	msg string
}

func NewFormatError(format string, args ...any) *FormatError {
	return &FormatError{fmt.Sprintf(format, args...)}
}

func (e *FormatError) Error() string {
	return "format: " + e.msg
}

// ConfigError is returned when a configuration value is rejected
type ConfigError struct {
	msg string
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return "config: " + e.msg
}

// NetworkError wraps a socket level failure
type NetworkError struct {
	Op  string
	Err error
}

func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a bounded wait expires
type TimeoutError struct {
	Op string
}

func NewTimeoutError(op string) *TimeoutError {
	return &TimeoutError{Op: op}
}

func (e *TimeoutError) Error() string {
	return "timeout: " + e.Op
}

// Timeout reports true so TimeoutError satisfies net.Error style checks.
func (e *TimeoutError) Timeout() bool {
	return true
}
