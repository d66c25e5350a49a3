package devnode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	createSelector  = Selector("create(bytes32,bytes32,bytes)")
	create2Selector = Selector("create2(bytes32,bytes32,bytes)")

	// create and create2 take the same (salt, bytecodeHash, input) arguments
	create2Args = mustArguments("bytes32", "bytes32", "bytes")
)

func arguments(types ...string) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parsing abi type %q: %w", t, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

func mustArguments(types ...string) abi.Arguments {
	args, err := arguments(types...)
	if err != nil {
		panic(err)
	}
	return args
}

// deployerCreate2 emulates ContractDeployer.create2(salt, bytecodeHash, input).
func deployerCreate2(st *State, msg Msg) ([]byte, error) {
	values, err := create2Args.Unpack(msg.Args())
	if err != nil {
		return nil, fmt.Errorf("decoding create2 call: %w", err)
	}
	salt := common.Hash(values[0].([32]byte))
	bytecodeHash := common.Hash(values[1].([32]byte))
	input := values[2].([]byte)

	addr, err := st.Deploy(msg.From, bytecodeHash, salt, input)
	if err != nil {
		return nil, err
	}
	return common.LeftPadBytes(addr.Bytes(), 32), nil
}

// deployerCreate emulates ContractDeployer.create(salt, bytecodeHash, input).
// The salt is ignored; the address follows the caller's deployment nonce.
func deployerCreate(st *State, msg Msg) ([]byte, error) {
	values, err := create2Args.Unpack(msg.Args())
	if err != nil {
		return nil, fmt.Errorf("decoding create call: %w", err)
	}
	bytecodeHash := common.Hash(values[1].([32]byte))
	input := values[2].([]byte)

	addr, err := st.Create(msg.From, bytecodeHash, input)
	if err != nil {
		return nil, err
	}
	return common.LeftPadBytes(addr.Bytes(), 32), nil
}
