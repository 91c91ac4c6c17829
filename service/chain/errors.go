package chain

import (
	"errors"
	"fmt"
)

// NodeUnreachableError indicates a communication fault with the ledger node.
// The adapter surfaces it to the caller and does not retry.
type NodeUnreachableError struct {
	Err error
}

func (e *NodeUnreachableError) Error() string {
	return fmt.Sprintf("ledger node unreachable: %v", e.Err)
}

func (e *NodeUnreachableError) Unwrap() error { return e.Err }

// InvalidTransactionError indicates the node rejected a submission or decode.
type InvalidTransactionError struct {
	Err error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %v", e.Err)
}

func (e *InvalidTransactionError) Unwrap() error { return e.Err }

// NotSupportedError indicates an operation that is meaningless for this
// ledger family. It is returned synchronously, never queued into a
// subscription.
type NotSupportedError struct {
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("operation not supported by this ledger family: %s", e.Operation)
}

// ParameterError indicates malformed caller-supplied arguments. It is
// returned synchronously before any node interaction.
type ParameterError struct {
	Msg string
}

func (e *ParameterError) Error() string { return e.Msg }

// Parameterf builds a ParameterError from a format string.
func Parameterf(format string, args ...any) error {
	return &ParameterError{Msg: fmt.Sprintf(format, args...)}
}

// IsNodeUnreachable reports whether err is (or wraps) a NodeUnreachableError.
func IsNodeUnreachable(err error) bool {
	var target *NodeUnreachableError
	return errors.As(err, &target)
}

// IsInvalidTransaction reports whether err is (or wraps) an InvalidTransactionError.
func IsInvalidTransaction(err error) bool {
	var target *InvalidTransactionError
	return errors.As(err, &target)
}

// IsNotSupported reports whether err is (or wraps) a NotSupportedError.
func IsNotSupported(err error) bool {
	var target *NotSupportedError
	return errors.As(err, &target)
}

// IsParameter reports whether err is (or wraps) a ParameterError.
func IsParameter(err error) bool {
	var target *ParameterError
	return errors.As(err, &target)
}
