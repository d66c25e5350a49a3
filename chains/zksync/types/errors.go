package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMissingCustomData is returned when a signature has to be attached to a
// transaction whose custom-data container was never initialized.
var ErrMissingCustomData = errors.New("transaction custom data is not initialized")

// ContractNotFoundError is returned by an address book lookup miss.
type ContractNotFoundError struct {
	Network string
	Name    string
}

func (e *ContractNotFoundError) Error() string {
	return fmt.Sprintf("contract %s not found in address book for network %s", e.Name, e.Network)
}

// ValidationRejectedError means the account's validation logic declined the
// transaction. It is an expected outcome, not a transport failure.
type ValidationRejectedError struct {
	Reason string
	Err    error
}

func (e *ValidationRejectedError) Error() string {
	return "transaction rejected by account validation: " + e.Reason
}

func (e *ValidationRejectedError) Unwrap() error { return e.Err }

// NonceConflictError means the network refused the transaction nonce.
type NonceConflictError struct {
	Reason string
	Err    error
}

func (e *NonceConflictError) Error() string {
	return "transaction nonce rejected: " + e.Reason
}

func (e *NonceConflictError) Unwrap() error { return e.Err }

// TransportError wraps a failed RPC call. Callers may retry it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReceiptFailedError is returned when a transaction was included but reverted.
type ReceiptFailedError struct {
	TxHash common.Hash
}

func (e *ReceiptFailedError) Error() string {
	return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
}

// IsValidationRejected reports whether err carries a ValidationRejectedError.
func IsValidationRejected(err error) bool {
	var target *ValidationRejectedError
	return errors.As(err, &target)
}

// IsNonceConflict reports whether err carries a NonceConflictError.
func IsNonceConflict(err error) bool {
	var target *NonceConflictError
	return errors.As(err, &target)
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
