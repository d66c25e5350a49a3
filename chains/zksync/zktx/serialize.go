// Package zktx encodes 0x71 transactions into the byte form accepted by
// eth_sendRawTransaction, and decodes them back.
package zktx

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"

	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

var (
	ErrMissingChainID    = errors.New("chain id is not set")
	ErrMissingFrom       = errors.New("explicitly providing `from` field is required for EIP712 transactions")
	ErrEmptySignature    = errors.New("empty signatures are not supported")
	ErrWrongEnvelopeType = errors.New("not an EIP712 transaction envelope")
	ErrChainIDMismatch   = errors.New("envelope carries two different chain ids")
	ErrInvalidToField    = errors.New("invalid recipient field")

	emptyList = rlp.RawValue{0xc0}
)

// envelope is the RLP field list following the type byte. R and S are the
// unused ECDSA slots, always empty.
type envelope struct {
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   []byte
	Value                *big.Int
	Data                 []byte
	ChainID              *big.Int
	R                    []byte
	S                    []byte
	SignerChainID        *big.Int
	From                 common.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	CustomSignature      []byte
	PaymasterParams      rlp.RawValue
}

type paymasterParams struct {
	Paymaster common.Address
	Input     []byte
}

// Serialize returns 0x71 || rlp(fields) for a populated, usually signed,
// transaction. An unsigned transaction is encoded with an empty signature.
func Serialize(tx *zktypes.Transaction) ([]byte, error) {
	if tx.ChainID == nil {
		return nil, ErrMissingChainID
	}
	if tx.From == (common.Address{}) {
		return nil, ErrMissingFrom
	}
	sig := tx.CustomSignature()
	if sig != nil && len(sig) == 0 {
		return nil, ErrEmptySignature
	}

	maxFee, maxPriority := tx.FeeCaps()
	env := envelope{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: maxPriority,
		MaxFeePerGas:         maxFee,
		GasLimit:             tx.GasLimit,
		Value:                tx.Value,
		Data:                 tx.Data,
		ChainID:              tx.ChainID,
		SignerChainID:        tx.ChainID,
		From:                 tx.From,
		GasPerPubdata:        tx.GasPerPubdataLimit(),
		FactoryDeps:          tx.FactoryDeps(),
		CustomSignature:      sig,
		PaymasterParams:      emptyList,
	}
	if env.FactoryDeps == nil {
		env.FactoryDeps = [][]byte{}
	}
	if tx.To != nil {
		env.To = tx.To.Bytes()
	}
	if pm := tx.Paymaster(); pm != nil {
		enc, err := rlp.EncodeToBytes(paymasterParams{Paymaster: pm.Paymaster, Input: pm.PaymasterInput})
		if err != nil {
			return nil, fmt.Errorf("encoding paymaster params: %w", err)
		}
		env.PaymasterParams = enc
	}

	payload, err := rlp.EncodeToBytes(&env)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction: %w", err)
	}
	return append([]byte{zktypes.EIP712TxType}, payload...), nil
}

// Hex returns the 0x-prefixed form submitted to the network.
func Hex(raw []byte) string {
	return hexutil.Encode(raw)
}

// Decode parses a serialized 0x71 transaction. Empty data and an empty
// signature decode as nil.
func Decode(raw []byte) (*zktypes.Transaction, error) {
	if len(raw) == 0 || raw[0] != zktypes.EIP712TxType {
		return nil, ErrWrongEnvelopeType
	}
	var env envelope
	if err := rlp.DecodeBytes(raw[1:], &env); err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}
	if env.ChainID.Cmp(env.SignerChainID) != 0 {
		return nil, ErrChainIDMismatch
	}

	tx := &zktypes.Transaction{
		TransactionIntent: zktypes.TransactionIntent{
			Type:  zktypes.EIP712TxType,
			From:  env.From,
			Value: env.Value,
		},
		Nonce:                env.Nonce,
		GasLimit:             env.GasLimit,
		GasPrice:             env.MaxFeePerGas,
		ChainID:              env.ChainID,
		MaxFeePerGas:         env.MaxFeePerGas,
		MaxPriorityFeePerGas: env.MaxPriorityFeePerGas,
		Meta: &zktypes.Meta{
			GasPerPubdata: env.GasPerPubdata,
		},
	}
	switch len(env.To) {
	case 0:
	case common.AddressLength:
		to := common.BytesToAddress(env.To)
		tx.To = &to
	default:
		return nil, ErrInvalidToField
	}
	if len(env.Data) > 0 {
		tx.Data = env.Data
	}
	if len(env.CustomSignature) > 0 {
		tx.Meta.CustomSignature = env.CustomSignature
	}
	if len(env.FactoryDeps) > 0 {
		tx.Meta.FactoryDeps = env.FactoryDeps
	}

	kind, content, _, err := rlp.Split(env.PaymasterParams)
	if err != nil || kind != rlp.List {
		return nil, fmt.Errorf("decoding paymaster params: expected list")
	}
	if len(content) > 0 {
		var pm paymasterParams
		if err := rlp.DecodeBytes(env.PaymasterParams, &pm); err != nil {
			return nil, fmt.Errorf("decoding paymaster params: %w", err)
		}
		tx.Meta.PaymasterParams = &zktypes.PaymasterParams{
			Paymaster:      pm.Paymaster,
			PaymasterInput: pm.Input,
		}
	}
	return tx, nil
}
