package devnode

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// Msg is a call or transaction as seen by a contract handler.
type Msg struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Selector returns the 4-byte method id of Data.
func (m Msg) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], m.Data)
	return sel
}

// Args returns the ABI-encoded arguments following the selector.
func (m Msg) Args() []byte {
	if len(m.Data) < 4 {
		return nil
	}
	return m.Data[4:]
}

// Handler emulates one contract method. It runs with the node state locked;
// a returned error reverts the transaction or fails the call.
type Handler func(st *State, msg Msg) ([]byte, error)

// DeployHandler runs after code with a given bytecode hash is deployed.
type DeployHandler func(st *State, addr common.Address, input []byte) error

// AccountPolicy is the validation the node applies to transactions from a
// registered smart account.
type AccountPolicy struct {
	// Owners must sign, in this order.
	Owners []common.Address
	// AllowedTargets, when set, restricts the `to` field.
	AllowedTargets []common.Address
	// AllowedSelectors, when set, restricts the called method. Plain
	// transfers carry no selector and are refused.
	AllowedSelectors [][4]byte
}

func (p AccountPolicy) allows(to *common.Address, data []byte) bool {
	if len(p.AllowedTargets) > 0 {
		if to == nil {
			return false
		}
		found := false
		for _, t := range p.AllowedTargets {
			if t == *to {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(p.AllowedSelectors) > 0 {
		if len(data) < 4 {
			return false
		}
		var sel [4]byte
		copy(sel[:], data)
		for _, s := range p.AllowedSelectors {
			if s == sel {
				return true
			}
		}
		return false
	}
	return true
}

// Deployment records a contract created through the contract deployer.
// Salt is zero for plain create deployments.
type Deployment struct {
	Deployer     common.Address
	Address      common.Address
	BytecodeHash common.Hash
	Salt         common.Hash
	Input        []byte
}

type handlerKey struct {
	addr common.Address
	sel  [4]byte
}

// State is the world state of the node. Handlers receive it directly; code
// outside handlers goes through the locking methods of Node.
type State struct {
	balances     map[common.Address]*uint256.Int
	nonces       map[common.Address]uint64
	deployNonces map[common.Address]uint64
	accounts     map[common.Address]AccountPolicy
	code         map[common.Address][]byte
	bytecodes    map[common.Hash][]byte
	handlers     map[handlerKey]Handler
	onDeploy     map[common.Hash]DeployHandler
	deployments  []Deployment

	// logs emitted by the transaction being executed
	logs []*gethtypes.Log
}

func newState() *State {
	return &State{
		balances:     make(map[common.Address]*uint256.Int),
		nonces:       make(map[common.Address]uint64),
		deployNonces: make(map[common.Address]uint64),
		accounts:     make(map[common.Address]AccountPolicy),
		code:         make(map[common.Address][]byte),
		bytecodes:    make(map[common.Hash][]byte),
		handlers:     make(map[handlerKey]Handler),
		onDeploy:     make(map[common.Hash]DeployHandler),
	}
}

// Selector returns keccak256(signature)[:4].
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature)))
	return sel
}

func (st *State) Balance(addr common.Address) *big.Int {
	if b, ok := st.balances[addr]; ok {
		return b.ToBig()
	}
	return new(big.Int)
}

func (st *State) Fund(addr common.Address, amount *big.Int) {
	if amount == nil {
		return
	}
	add, _ := uint256.FromBig(amount)
	cur := st.balance(addr)
	st.balances[addr] = new(uint256.Int).Add(cur, add)
}

// Transfer moves amount between two balances.
func (st *State) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errors.New("negative amount")
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return errors.New("amount overflows uint256")
	}
	fromBal := st.balance(from)
	if fromBal.Lt(v) {
		return fmt.Errorf("insufficient balance: have %s want %s", fromBal.Dec(), v.Dec())
	}
	st.balances[from] = new(uint256.Int).Sub(fromBal, v)
	st.balances[to] = new(uint256.Int).Add(st.balance(to), v)
	return nil
}

func (st *State) balance(addr common.Address) *uint256.Int {
	if b, ok := st.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}

func (st *State) Nonce(addr common.Address) uint64 {
	return st.nonces[addr]
}

func (st *State) RegisterAccount(addr common.Address, policy AccountPolicy) {
	st.accounts[addr] = policy
}

func (st *State) Account(addr common.Address) (AccountPolicy, bool) {
	p, ok := st.accounts[addr]
	return p, ok
}

func (st *State) Handle(addr common.Address, sel [4]byte, h Handler) {
	st.handlers[handlerKey{addr: addr, sel: sel}] = h
}

func (st *State) OnDeploy(bytecodeHash common.Hash, h DeployHandler) {
	st.onDeploy[bytecodeHash] = h
}

func (st *State) Code(addr common.Address) []byte {
	return st.code[addr]
}

// Deploy creates a contract the way the contract deployer's create2 does
// when called by deployer, and runs the deploy handler registered for the
// bytecode.
func (st *State) Deploy(deployer common.Address, bytecodeHash, salt common.Hash, input []byte) (common.Address, error) {
	addr := create2.Address(deployer, bytecodeHash, salt, input)
	if err := st.deployAt(deployer, addr, bytecodeHash, salt, input); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Create deploys at the address derived from the deployer's deployment
// nonce, which it consumes.
func (st *State) Create(deployer common.Address, bytecodeHash common.Hash, input []byte) (common.Address, error) {
	addr := create2.CreateAddress(deployer, st.deployNonces[deployer])
	if err := st.deployAt(deployer, addr, bytecodeHash, common.Hash{}, input); err != nil {
		return common.Address{}, err
	}
	st.deployNonces[deployer]++
	return addr, nil
}

func (st *State) deployAt(deployer, addr common.Address, bytecodeHash, salt common.Hash, input []byte) error {
	bytecode, ok := st.bytecodes[bytecodeHash]
	if !ok {
		return fmt.Errorf("bytecode %s is not known", bytecodeHash.Hex())
	}
	if len(st.code[addr]) > 0 {
		return fmt.Errorf("code already deployed at %s", addr.Hex())
	}
	st.code[addr] = bytecode
	st.deployments = append(st.deployments, Deployment{
		Deployer:     deployer,
		Address:      addr,
		BytecodeHash: bytecodeHash,
		Salt:         salt,
		Input:        common.CopyBytes(input),
	})
	st.logs = append(st.logs, &gethtypes.Log{
		Address: zktypes.ContractDeployerAddress,
		Topics: []common.Hash{
			zktypes.ContractDeployedTopic,
			common.BytesToHash(deployer.Bytes()),
			bytecodeHash,
			common.BytesToHash(addr.Bytes()),
		},
		Data: []byte{},
	})
	if h, ok := st.onDeploy[bytecodeHash]; ok {
		return h(st, addr, input)
	}
	return nil
}

func (st *State) Deployments() []Deployment {
	return append([]Deployment(nil), st.deployments...)
}

// dispatch runs the handler for msg, or fails when the target has code but
// no matching method.
func (st *State) dispatch(msg Msg) ([]byte, error) {
	if h, ok := st.handlers[handlerKey{addr: msg.To, sel: msg.Selector()}]; ok {
		return h(st, msg)
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	if len(st.code[msg.To]) == 0 {
		// calls to accounts without code only move value
		return nil, nil
	}
	return nil, errors.New("execution reverted: unknown method")
}

// snapshot captures what a reverted transaction must undo.
type snapshot struct {
	balances     map[common.Address]*uint256.Int
	deployNonces map[common.Address]uint64
	deployments  int
	logs         int
}

func (st *State) snapshot() snapshot {
	balances := make(map[common.Address]*uint256.Int, len(st.balances))
	for addr, b := range st.balances {
		balances[addr] = b.Clone()
	}
	nonces := make(map[common.Address]uint64, len(st.deployNonces))
	for addr, n := range st.deployNonces {
		nonces[addr] = n
	}
	return snapshot{
		balances:     balances,
		deployNonces: nonces,
		deployments:  len(st.deployments),
		logs:         len(st.logs),
	}
}

func (st *State) revert(snap snapshot) {
	st.balances = snap.balances
	st.deployNonces = snap.deployNonces
	for _, d := range st.deployments[snap.deployments:] {
		delete(st.code, d.Address)
	}
	st.deployments = st.deployments[:snap.deployments]
	st.logs = st.logs[:snap.logs]
}
