// Package eip712 computes the typed-data signing digest of 0x71 transactions.
package eip712

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

const (
	DomainName    = "zkSync"
	DomainVersion = "2"

	primaryType = "Transaction"
)

var txTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	primaryType: {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// Domain returns the typed-data domain bound to chainID.
func Domain(chainID *big.Int) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:    DomainName,
		Version: DomainVersion,
		ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
	}
}

// DomainSeparator returns the hash of the domain for chainID.
func DomainSeparator(chainID *big.Int) (common.Hash, error) {
	if chainID == nil {
		return common.Hash{}, errors.New("chain id is not set")
	}
	td := apitypes.TypedData{Types: txTypes, Domain: Domain(chainID)}
	h, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing domain: %w", err)
	}
	return common.BytesToHash(h), nil
}

// TypedData returns the typed-data document a wallet would be asked to sign.
// The custom signature is never part of it.
func TypedData(tx *zktypes.Transaction) (apitypes.TypedData, error) {
	if tx.ChainID == nil {
		return apitypes.TypedData{}, errors.New("chain id is not set")
	}
	maxFee, maxPriority := tx.FeeCaps()
	if tx.GasLimit == nil || maxFee == nil {
		return apitypes.TypedData{}, errors.New("gas limit and gas price must be set")
	}

	deps := tx.FactoryDeps()
	depHashes := make([]interface{}, 0, len(deps))
	for i, dep := range deps {
		h, err := create2.HashBytecode(dep)
		if err != nil {
			return apitypes.TypedData{}, fmt.Errorf("hashing factory dependency %d: %w", i, err)
		}
		depHashes = append(depHashes, h.Hex())
	}

	var (
		paymaster      common.Address
		paymasterInput []byte
	)
	if pm := tx.Paymaster(); pm != nil {
		paymaster = pm.Paymaster
		paymasterInput = pm.PaymasterInput
	}

	var to common.Address
	if tx.To != nil {
		to = *tx.To
	}

	msg := apitypes.TypedDataMessage{
		"txType":                 decimal(new(big.Int).SetUint64(uint64(tx.Type))),
		"from":                   addressWord(tx.From),
		"to":                     addressWord(to),
		"gasLimit":               decimal(tx.GasLimit),
		"gasPerPubdataByteLimit": decimal(tx.GasPerPubdataLimit()),
		"maxFeePerGas":           decimal(maxFee),
		"maxPriorityFeePerGas":   decimal(maxPriority),
		"paymaster":              addressWord(paymaster),
		"nonce":                  decimal(new(big.Int).SetUint64(tx.Nonce)),
		"value":                  decimal(tx.Value),
		"data":                   hexutil.Encode(tx.Data),
		"factoryDeps":            depHashes,
		"paymasterInput":         hexutil.Encode(paymasterInput),
	}

	return apitypes.TypedData{
		Types:       txTypes,
		PrimaryType: primaryType,
		Domain:      Domain(tx.ChainID),
		Message:     msg,
	}, nil
}

// StructHash returns the hash of the transaction struct, without the domain.
func StructHash(tx *zktypes.Transaction) (common.Hash, error) {
	td, err := TypedData(tx)
	if err != nil {
		return common.Hash{}, err
	}
	h, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing transaction struct: %w", err)
	}
	return common.BytesToHash(h), nil
}

// Digest returns keccak256(0x1901 || domainSeparator || structHash), the value
// every signer of tx signs.
func Digest(tx *zktypes.Transaction) (common.Hash, error) {
	td, err := TypedData(tx)
	if err != nil {
		return common.Hash{}, err
	}
	h, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing typed data: %w", err)
	}
	return common.BytesToHash(h), nil
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// addresses are typed as uint256 in the transaction struct.
func addressWord(a common.Address) string {
	return new(big.Int).SetBytes(a.Bytes()).String()
}
