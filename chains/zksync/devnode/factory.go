package devnode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FactorySpec describes an account factory to emulate. The factory takes the
// account bytecode hash as its only constructor argument.
type FactorySpec struct {
	// DeployMethod is called with a bytes32 salt followed by ArgTypes.
	DeployMethod       string
	ArgTypes           []string
	BytecodeHashGetter string
	// Owners picks the signing owners of a new account from the decoded
	// arguments. Nil means every address argument, in order.
	Owners func(args []any) []common.Address
}

// EmulateFactory makes every contract deployed with factoryBytecodeHash
// behave like an account factory: the getter returns the account bytecode
// hash and the deploy method creates and registers a smart account.
func (n *Node) EmulateFactory(factoryBytecodeHash common.Hash, spec FactorySpec) error {
	deployArgs, err := arguments(append([]string{"bytes32"}, spec.ArgTypes...)...)
	if err != nil {
		return err
	}
	accountArgs, err := arguments(spec.ArgTypes...)
	if err != nil {
		return err
	}
	owners := spec.Owners
	if owners == nil {
		owners = addressArgs
	}
	deploySel := Selector(fmt.Sprintf("%s(%s)", spec.DeployMethod, strings.Join(append([]string{"bytes32"}, spec.ArgTypes...), ",")))
	getterSel := Selector(spec.BytecodeHashGetter + "()")

	n.OnDeploy(factoryBytecodeHash, func(st *State, factory common.Address, input []byte) error {
		if len(input) < 32 {
			return fmt.Errorf("factory constructor expects the account bytecode hash")
		}
		accountHash := common.BytesToHash(input[:32])

		st.Handle(factory, getterSel, func(*State, Msg) ([]byte, error) {
			return accountHash.Bytes(), nil
		})
		st.Handle(factory, deploySel, func(st *State, msg Msg) ([]byte, error) {
			values, err := deployArgs.Unpack(msg.Args())
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", spec.DeployMethod, err)
			}
			salt := common.Hash(values[0].([32]byte))
			rest := values[1:]
			encoded, err := accountArgs.Pack(rest...)
			if err != nil {
				return nil, err
			}
			addr, err := st.Deploy(factory, accountHash, salt, encoded)
			if err != nil {
				return nil, err
			}
			st.RegisterAccount(addr, AccountPolicy{Owners: owners(rest)})
			return common.LeftPadBytes(addr.Bytes(), 32), nil
		})
		return nil
	})
	return nil
}

func addressArgs(args []any) []common.Address {
	var out []common.Address
	for _, a := range args {
		if addr, ok := a.(common.Address); ok {
			out = append(out, addr)
		}
	}
	return out
}
