// Package create2 derives the addresses of contracts deployed through the
// zkSync contract deployer.
package create2

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	wordSize = 32
	maxWords = 1<<16 - 1
)

var (
	// Prefix is keccak256("zksyncCreate2").
	Prefix = crypto.Keccak256Hash([]byte("zksyncCreate2"))
	// CreatePrefix is keccak256("zksyncCreate").
	CreatePrefix = crypto.Keccak256Hash([]byte("zksyncCreate"))

	bytecodeVersion = [2]byte{0x01, 0x00}

	ErrBytecodeLength    = errors.New("bytecode length in bytes must be divisible by 32")
	ErrBytecodeWordCount = errors.New("bytecode length in 32-byte words must be odd")
	ErrBytecodeTooLong   = errors.New("bytecode length must be less than 2^16 words")
)

// HashBytecode returns the versioned bytecode hash the network uses to
// identify deployable code.
func HashBytecode(bytecode []byte) (common.Hash, error) {
	if len(bytecode)%wordSize != 0 {
		return common.Hash{}, ErrBytecodeLength
	}
	words := len(bytecode) / wordSize
	if words > maxWords {
		return common.Hash{}, ErrBytecodeTooLong
	}
	if words%2 == 0 {
		return common.Hash{}, ErrBytecodeWordCount
	}

	h := sha256.Sum256(bytecode)
	copy(h[0:2], bytecodeVersion[:])
	binary.BigEndian.PutUint16(h[2:4], uint16(words))
	return common.Hash(h), nil
}

// Address returns the address at which factory deploys the contract with
// bytecodeHash, salt and ABI-encoded constructor input.
func Address(factory common.Address, bytecodeHash, salt common.Hash, input []byte) common.Address {
	inputHash := crypto.Keccak256Hash(input)
	h := crypto.Keccak256(
		Prefix.Bytes(),
		common.LeftPadBytes(factory.Bytes(), wordSize),
		salt.Bytes(),
		bytecodeHash.Bytes(),
		inputHash.Bytes(),
	)
	return common.BytesToAddress(h[12:])
}

// CreateAddress returns the address of the contract sender deploys with the
// plain create method when its deployment nonce is nonce.
func CreateAddress(sender common.Address, nonce uint64) common.Address {
	var n [wordSize]byte
	binary.BigEndian.PutUint64(n[wordSize-8:], nonce)
	h := crypto.Keccak256(
		CreatePrefix.Bytes(),
		common.LeftPadBytes(sender.Bytes(), wordSize),
		n[:],
	)
	return common.BytesToAddress(h[12:])
}

// EncodeArgs ABI-encodes values as a tuple of the given solidity types,
// in the order the constructor or factory method declares them.
func EncodeArgs(types []string, values ...any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("got %d values for %d types", len(values), len(types))
	}
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parsing abi type %q: %w", t, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args.Pack(values...)
}
