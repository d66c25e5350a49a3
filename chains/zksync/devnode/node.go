// Package devnode is an in-memory zkSync-like JSON-RPC node. It accepts 0x71
// envelopes, checks nonces and account signatures, and moves balances, which
// is enough to run the account flows end to end without a network.
package devnode

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	"github.com/idea404/aa-dc/chains/zksync/eip712"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/zktx"
)

// Reason strings returned by the node, matching the network's wording.
const (
	ReasonAccountValidation = "failed to validate the transaction. reason: Validation revert: Account validation error"
	ReasonFailedToPay       = "failed to validate the transaction. reason: Failed to pay for the transaction"
	ReasonNonceTooLow       = "nonce too low"
	ReasonNonceTooHigh      = "nonce too high"
)

var (
	DefaultChainID  = big.NewInt(260)
	DefaultGasPrice = big.NewInt(250_000_000)

	// FeeCollector receives the fees of every transaction.
	FeeCollector = common.HexToAddress("0x0000000000000000000000000000000000008001")
)

type Option func(*Node)

func WithChainID(chainID *big.Int) Option {
	return func(n *Node) { n.chainID = chainID }
}

func WithGasPrice(price *big.Int) Option {
	return func(n *Node) { n.gasPrice = price }
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) { n.logger = logger.With(zap.String("module", "devnode")) }
}

// Node is a single-process chain that seals one block per transaction.
type Node struct {
	mu sync.Mutex
	st *State

	chainID     *big.Int
	gasPrice    *big.Int
	blockNumber uint64
	receipts    map[common.Hash]*gethtypes.Receipt

	server *rpc.Server
	logger *zap.Logger
}

// New starts a node with an RPC server exposing the eth and evm namespaces.
func New(opts ...Option) (*Node, error) {
	n := &Node{
		st:       newState(),
		chainID:  DefaultChainID,
		gasPrice: DefaultGasPrice,
		receipts: make(map[common.Hash]*gethtypes.Receipt),
		server:   rpc.NewServer(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.server.RegisterName("eth", &ethAPI{n: n}); err != nil {
		return nil, fmt.Errorf("registering eth api: %w", err)
	}
	if err := n.server.RegisterName("evm", &evmAPI{n: n}); err != nil {
		return nil, fmt.Errorf("registering evm api: %w", err)
	}
	n.st.Handle(zktypes.ContractDeployerAddress, createSelector, deployerCreate)
	n.st.Handle(zktypes.ContractDeployerAddress, create2Selector, deployerCreate2)
	return n, nil
}

// Client returns an in-process RPC client.
func (n *Node) Client() *rpc.Client {
	return rpc.DialInProc(n.server)
}

func (n *Node) Close() {
	n.server.Stop()
}

func (n *Node) ChainID() *big.Int {
	return new(big.Int).Set(n.chainID)
}

func (n *Node) GasPrice() *big.Int {
	return new(big.Int).Set(n.gasPrice)
}

// Update runs fn with the state locked.
func (n *Node) Update(fn func(st *State) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.st)
}

func (n *Node) Fund(addr common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.Fund(addr, amount)
}

func (n *Node) Balance(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Balance(addr)
}

func (n *Node) Nonce(addr common.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Nonce(addr)
}

func (n *Node) RegisterAccount(addr common.Address, policy AccountPolicy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.RegisterAccount(addr, policy)
}

func (n *Node) Handle(addr common.Address, sel [4]byte, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.Handle(addr, sel, h)
}

func (n *Node) OnDeploy(bytecodeHash common.Hash, h DeployHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.st.OnDeploy(bytecodeHash, h)
}

func (n *Node) Deployments() []Deployment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st.Deployments()
}

func (n *Node) BlockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blockNumber
}

// Mine seals an empty block.
func (n *Node) Mine() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockNumber++
	return n.blockNumber
}

func (n *Node) receipt(hash common.Hash) *gethtypes.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

// submit validates and executes a serialized transaction. Validation
// failures refuse the transaction; execution failures are included with a
// failed receipt.
func (n *Node) submit(raw []byte) (common.Hash, error) {
	tx, err := zktx.Decode(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx.ChainID.Cmp(n.chainID) != 0 {
		return common.Hash{}, fmt.Errorf("invalid chain id: want %s got %s", n.chainID, tx.ChainID)
	}
	deps := make(map[common.Hash][]byte)
	for i, dep := range tx.FactoryDeps() {
		h, err := create2.HashBytecode(dep)
		if err != nil {
			return common.Hash{}, fmt.Errorf("invalid factory dependency %d: %w", i, err)
		}
		deps[h] = dep
	}
	hash := crypto.Keccak256Hash(raw)

	n.mu.Lock()
	defer n.mu.Unlock()

	expected := n.st.Nonce(tx.From)
	switch {
	case tx.Nonce < expected:
		return common.Hash{}, fmt.Errorf("%s: expected %d got %d", ReasonNonceTooLow, expected, tx.Nonce)
	case tx.Nonce > expected:
		return common.Hash{}, fmt.Errorf("%s: expected %d got %d", ReasonNonceTooHigh, expected, tx.Nonce)
	}
	if err := n.validate(tx); err != nil {
		n.logger.Debug("transaction refused", zap.String("from", tx.From.Hex()), zap.Error(err))
		return common.Hash{}, err
	}

	maxFee, _ := tx.FeeCaps()
	fee := new(big.Int).Mul(tx.GasLimit, maxFee)
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if n.st.Balance(tx.From).Cmp(new(big.Int).Add(fee, value)) < 0 {
		return common.Hash{}, fmt.Errorf("%s: insufficient balance", ReasonFailedToPay)
	}

	// the fee and the nonce are consumed even when execution reverts
	if err := n.st.Transfer(tx.From, FeeCollector, fee); err != nil {
		return common.Hash{}, err
	}
	n.st.nonces[tx.From]++
	for h, dep := range deps {
		n.st.bytecodes[h] = dep
	}

	status := gethtypes.ReceiptStatusSuccessful
	n.st.logs = nil
	if err := n.execute(tx, value); err != nil {
		n.logger.Debug("transaction reverted", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		status = gethtypes.ReceiptStatusFailed
	}
	logs := n.st.logs
	n.st.logs = nil

	n.blockNumber++
	blockHash := crypto.Keccak256Hash(new(big.Int).SetUint64(n.blockNumber).Bytes())
	for i, l := range logs {
		l.TxHash = hash
		l.BlockHash = blockHash
		l.BlockNumber = n.blockNumber
		l.Index = uint(i)
	}
	if logs == nil {
		logs = []*gethtypes.Log{}
	}
	receipt := &gethtypes.Receipt{
		Type:              zktypes.EIP712TxType,
		Status:            status,
		CumulativeGasUsed: tx.GasLimit.Uint64(),
		GasUsed:           tx.GasLimit.Uint64(),
		EffectiveGasPrice: maxFee,
		Logs:              logs,
		TxHash:            hash,
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).SetUint64(n.blockNumber),
	}
	receipt.Bloom = gethtypes.CreateBloom(receipt)
	n.receipts[hash] = receipt
	return hash, nil
}

// validate plays the role of the sender's validation step: a registered
// account requires its owners' signatures in order and an allowed call, any
// other sender must sign with its own key.
func (n *Node) validate(tx *zktypes.Transaction) error {
	digest, err := eip712.Digest(tx)
	if err != nil {
		return fmt.Errorf("%s: %v", ReasonAccountValidation, err)
	}
	signers, err := recoverSigners(digest, tx.CustomSignature())
	if err != nil {
		return errors.New(ReasonAccountValidation)
	}

	want := []common.Address{tx.From}
	policy, isAccount := n.st.Account(tx.From)
	if isAccount {
		want = policy.Owners
		if !policy.allows(tx.To, tx.Data) {
			return errors.New(ReasonAccountValidation)
		}
	}
	if len(signers) != len(want) {
		return errors.New(ReasonAccountValidation)
	}
	for i := range want {
		if signers[i] != want[i] {
			return errors.New(ReasonAccountValidation)
		}
	}
	return nil
}

func (n *Node) execute(tx *zktypes.Transaction, value *big.Int) error {
	if tx.To == nil {
		return errors.New("contract creation must go through the contract deployer")
	}
	snap := n.st.snapshot()
	if err := n.st.Transfer(tx.From, *tx.To, value); err != nil {
		return err
	}
	_, err := n.st.dispatch(Msg{From: tx.From, To: *tx.To, Value: value, Data: tx.Data})
	if err != nil {
		n.st.revert(snap)
	}
	return err
}

func recoverSigners(digest common.Hash, packed []byte) ([]common.Address, error) {
	if len(packed) == 0 || len(packed)%crypto.SignatureLength != 0 {
		return nil, fmt.Errorf("invalid signature length %d", len(packed))
	}
	var out []common.Address
	for i := 0; i < len(packed); i += crypto.SignatureLength {
		sig := common.CopyBytes(packed[i : i+crypto.SignatureLength])
		if sig[crypto.RecoveryIDOffset] >= 27 {
			sig[crypto.RecoveryIDOffset] -= 27
		}
		pub, err := crypto.SigToPub(digest.Bytes(), sig)
		if err != nil {
			return nil, err
		}
		out = append(out, crypto.PubkeyToAddress(*pub))
	}
	return out, nil
}
