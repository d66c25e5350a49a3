package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// EIP712TxType is the envelope type of account-abstraction transactions.
	EIP712TxType uint8 = 0x71

	// DefaultGasPerPubdataLimit is the gas-per-pubdata limit used when the caller does not set one.
	DefaultGasPerPubdataLimit = 50_000
)

// ContractDeployerAddress is the system contract every deployment is routed through.
var ContractDeployerAddress = common.HexToAddress("0x0000000000000000000000000000000000008006")

// ContractDeployedTopic is the id of the ContractDeployer event
// ContractDeployed(address indexed deployer, bytes32 indexed bytecodeHash,
// address indexed contractAddress).
var ContractDeployedTopic = crypto.Keccak256Hash([]byte("ContractDeployed(address,bytes32,address)"))

// PaymasterParams names a paymaster and the input passed to it.
type PaymasterParams struct {
	Paymaster      common.Address
	PaymasterInput []byte
}

// Meta is the custom-data sub structure carried by 0x71 transactions.
type Meta struct {
	GasPerPubdata   *big.Int
	CustomSignature []byte
	FactoryDeps     [][]byte
	PaymasterParams *PaymasterParams
}

// NewMeta returns custom data initialized with the default gas-per-pubdata limit.
func NewMeta() *Meta {
	return &Meta{GasPerPubdata: big.NewInt(DefaultGasPerPubdataLimit)}
}

// TransactionIntent is what a caller wants a smart account to do.
// From is the smart-account address, never the address of a signing key.
type TransactionIntent struct {
	Type  uint8
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// NewIntent builds an intent of the account-abstraction type.
func NewIntent(from common.Address, to *common.Address, value *big.Int, data []byte) TransactionIntent {
	return TransactionIntent{
		Type:  EIP712TxType,
		From:  from,
		To:    to,
		Value: value,
		Data:  data,
	}
}

// Transaction is an intent with every chain-derived field filled in.
// Meta is nil until the assembler initializes it.
type Transaction struct {
	TransactionIntent

	Nonce    uint64
	GasLimit *big.Int
	GasPrice *big.Int
	ChainID  *big.Int

	// MaxFeePerGas and MaxPriorityFeePerGas are optional and fall back to GasPrice.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Meta *Meta
}

// FeeCaps returns the (maxFeePerGas, maxPriorityFeePerGas) pair the network sees.
func (tx *Transaction) FeeCaps() (*big.Int, *big.Int) {
	maxFee := tx.MaxFeePerGas
	if maxFee == nil {
		maxFee = tx.GasPrice
	}
	maxPriority := tx.MaxPriorityFeePerGas
	if maxPriority == nil {
		maxPriority = maxFee
	}
	return maxFee, maxPriority
}

// GasPerPubdataLimit returns the custom-data limit or the network default.
func (tx *Transaction) GasPerPubdataLimit() *big.Int {
	if tx.Meta != nil && tx.Meta.GasPerPubdata != nil {
		return tx.Meta.GasPerPubdata
	}
	return big.NewInt(DefaultGasPerPubdataLimit)
}

// FactoryDeps returns the bytecodes that accompany the transaction.
func (tx *Transaction) FactoryDeps() [][]byte {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.FactoryDeps
}

// Paymaster returns the paymaster params, or nil when the sender pays its own fees.
func (tx *Transaction) Paymaster() *PaymasterParams {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.PaymasterParams
}

// CustomSignature returns the packed signature, nil when unsigned.
func (tx *Transaction) CustomSignature() []byte {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.CustomSignature
}

// Copy returns a deep copy of the transaction.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	cpy.To = copyAddress(tx.To)
	cpy.Value = copyBig(tx.Value)
	cpy.Data = common.CopyBytes(tx.Data)
	cpy.GasLimit = copyBig(tx.GasLimit)
	cpy.GasPrice = copyBig(tx.GasPrice)
	cpy.ChainID = copyBig(tx.ChainID)
	cpy.MaxFeePerGas = copyBig(tx.MaxFeePerGas)
	cpy.MaxPriorityFeePerGas = copyBig(tx.MaxPriorityFeePerGas)
	if tx.Meta != nil {
		meta := &Meta{
			GasPerPubdata:   copyBig(tx.Meta.GasPerPubdata),
			CustomSignature: common.CopyBytes(tx.Meta.CustomSignature),
		}
		if tx.Meta.FactoryDeps != nil {
			meta.FactoryDeps = make([][]byte, len(tx.Meta.FactoryDeps))
			for i, dep := range tx.Meta.FactoryDeps {
				meta.FactoryDeps[i] = common.CopyBytes(dep)
			}
		}
		if pm := tx.Meta.PaymasterParams; pm != nil {
			meta.PaymasterParams = &PaymasterParams{
				Paymaster:      pm.Paymaster,
				PaymasterInput: common.CopyBytes(pm.PaymasterInput),
			}
		}
		cpy.Meta = meta
	}
	return &cpy
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}
