package provider

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

var (
	nonceMarkers = []string{
		"nonce too low",
		"nonce too high",
		"nonce is too",
		"incorrect nonce",
	}
	validationMarkers = []string{
		"validation",
		"failed to pay for the transaction",
		"execution reverted",
		"account validation error",
		"insufficient funds",
	}
)

// errCodeExecutionReverted is the JSON-RPC code nodes attach to reverts
// raised while validating or simulating a transaction.
const errCodeExecutionReverted = 3

// classify maps an RPC failure onto the error taxonomy. Only refusals that
// name the nonce or the account's validation are rejections. Anything else,
// rate limits included, stays a transport error.
func classify(op string, err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return &zktypes.TransportError{Op: op, Err: err}
	}
	msg := strings.ToLower(rpcErr.Error())
	if containsAny(msg, nonceMarkers) {
		return &zktypes.NonceConflictError{Reason: rpcErr.Error(), Err: err}
	}
	if rpcErr.ErrorCode() == errCodeExecutionReverted || containsAny(msg, validationMarkers) {
		return &zktypes.ValidationRejectedError{Reason: rpcErr.Error(), Err: err}
	}
	return &zktypes.TransportError{Op: op, Err: err}
}

func rejectionClass(err error) string {
	switch {
	case zktypes.IsNonceConflict(err):
		return "nonce"
	case zktypes.IsValidationRejected(err):
		return "validation"
	default:
		return "transport"
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
