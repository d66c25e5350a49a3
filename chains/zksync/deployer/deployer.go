// Package deployer publishes compiled contracts through the zkSync contract
// deployer and binds to them afterwards.
package deployer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/wallet"
)

const contractDeployerABI = `[{"inputs":[{"internalType":"bytes32","name":"_salt","type":"bytes32"},{"internalType":"bytes32","name":"_bytecodeHash","type":"bytes32"},{"internalType":"bytes","name":"_input","type":"bytes"}],"name":"create","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"payable","type":"function"},{"inputs":[{"internalType":"bytes32","name":"_salt","type":"bytes32"},{"internalType":"bytes32","name":"_bytecodeHash","type":"bytes32"},{"internalType":"bytes","name":"_input","type":"bytes"}],"name":"create2","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"payable","type":"function"}]`

var contractDeployer = mustParseABI(contractDeployerABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// DeployOpts tunes a deployment. The zero value deploys through create, at
// an address following the account's deployment nonce, with an estimated gas
// limit. A Salt switches to create2 and a predictable address.
type DeployOpts struct {
	Salt     *common.Hash
	GasLimit *big.Int
}

// Deployer sends deployment transactions from an account and reads the
// deployed contracts through caller.
type Deployer struct {
	account      *wallet.Account
	caller       bind.ContractCaller
	artifactsDir string
	logger       *zap.Logger
}

func New(account *wallet.Account, caller bind.ContractCaller, artifactsDir string, logger *zap.Logger) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if artifactsDir == "" {
		artifactsDir = DefaultArtifactsDir
	}
	return &Deployer{
		account:      account,
		caller:       caller,
		artifactsDir: artifactsDir,
		logger:       logger.With(zap.String("module", "deployer")),
	}
}

func (d *Deployer) Account() *wallet.Account {
	return d.account
}

func (d *Deployer) Logger() *zap.Logger {
	return d.logger
}

func (d *Deployer) Caller() bind.ContractCaller {
	return d.caller
}

// LoadArtifact reads the named contract from the artifacts directory.
func (d *Deployer) LoadArtifact(name string) (*Artifact, error) {
	return LoadArtifact(d.artifactsDir, name)
}

type deployment struct {
	tx           *zktypes.Transaction
	bytecodeHash common.Hash
	// address is known up front for create2 only
	address  *common.Address
	artifact *Artifact
}

func (d *Deployer) prepare(ctx context.Context, artifact *Artifact, args []any, opts *DeployOpts, factoryDeps [][]byte) (*deployment, error) {
	if opts == nil {
		opts = &DeployOpts{}
	}
	bytecodeHash, err := artifact.BytecodeHash()
	if err != nil {
		return nil, fmt.Errorf("hashing %s bytecode: %w", artifact.ContractName, err)
	}
	input, err := artifact.EncodeConstructor(args...)
	if err != nil {
		return nil, err
	}
	method, salt := "create", common.Hash{}
	var addr *common.Address
	if opts.Salt != nil {
		method, salt = "create2", *opts.Salt
		a := create2.Address(d.account.Address(), bytecodeHash, salt, input)
		addr = &a
	}
	data, err := contractDeployer.Pack(method, [32]byte(salt), [32]byte(bytecodeHash), input)
	if err != nil {
		return nil, fmt.Errorf("encoding %s call: %w", method, err)
	}

	deps := append([][]byte{artifact.Bytecode}, factoryDeps...)
	to := zktypes.ContractDeployerAddress
	tx, err := d.account.Populate(ctx, &to, big.NewInt(0), data, &wallet.PopulateOpts{
		GasLimit:    opts.GasLimit,
		FactoryDeps: deps,
	})
	if err != nil {
		return nil, err
	}
	return &deployment{
		tx:           tx,
		bytecodeHash: bytecodeHash,
		address:      addr,
		artifact:     artifact,
	}, nil
}

// EstimateDeployFee returns gasLimit * gasPrice of the deployment.
func (d *Deployer) EstimateDeployFee(ctx context.Context, artifact *Artifact, args ...any) (*big.Int, error) {
	dep, err := d.prepare(ctx, artifact, args, nil, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(dep.tx.GasLimit, dep.tx.GasPrice), nil
}

// Deploy publishes artifact with constructor args and waits for inclusion.
// The artifact bytecode is always sent as the first factory dependency.
func (d *Deployer) Deploy(ctx context.Context, artifact *Artifact, args []any, opts *DeployOpts, factoryDeps ...[]byte) (*DeployedContract, error) {
	dep, err := d.prepare(ctx, artifact, args, opts, factoryDeps)
	if err != nil {
		return nil, err
	}
	pending, err := d.account.SendPopulated(ctx, dep.tx)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", artifact.ContractName, err)
	}
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", artifact.ContractName, err)
	}
	addr := dep.address
	if addr == nil {
		if addr = deployedAddress(receipt, d.account.Address(), dep.bytecodeHash); addr == nil {
			return nil, fmt.Errorf("deploying %s: no ContractDeployed event in receipt of %s", artifact.ContractName, pending.Hash.Hex())
		}
	}

	d.logger.Info("contract deployed",
		zap.String("contract", artifact.ContractName),
		zap.String("address", addr.Hex()),
		zap.String("tx_hash", pending.Hash.Hex()))
	contract := Bind(*addr, artifact, d.caller)
	contract.TxHash = pending.Hash
	return contract, nil
}

// deployedAddress finds the contract deployer's ContractDeployed event for
// deployer and bytecodeHash in receipt.
func deployedAddress(receipt *gethtypes.Receipt, deployer common.Address, bytecodeHash common.Hash) *common.Address {
	for _, l := range receipt.Logs {
		if l.Address != zktypes.ContractDeployerAddress || len(l.Topics) != 4 {
			continue
		}
		if l.Topics[0] != zktypes.ContractDeployedTopic ||
			l.Topics[1] != common.BytesToHash(deployer.Bytes()) ||
			l.Topics[2] != bytecodeHash {
			continue
		}
		addr := common.BytesToAddress(l.Topics[3].Bytes())
		return &addr
	}
	return nil
}

// DeployedContract is a handle on a contract at a known address.
type DeployedContract struct {
	Address  common.Address
	TxHash   common.Hash
	Artifact *Artifact

	bound *bind.BoundContract
}

// Bind attaches to an existing contract.
func Bind(addr common.Address, artifact *Artifact, caller bind.ContractCaller) *DeployedContract {
	return &DeployedContract{
		Address:  addr,
		Artifact: artifact,
		bound:    bind.NewBoundContract(addr, artifact.ABI, caller, nil, nil),
	}
}

// Call runs a view method.
func (c *DeployedContract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w", c.Artifact.ContractName, method, err)
	}
	return out, nil
}

// Transact sends a state-changing call from account and waits for inclusion.
func (c *DeployedContract) Transact(ctx context.Context, account *wallet.Account, opts *wallet.PopulateOpts, method string, args ...any) (*gethtypes.Receipt, error) {
	data, err := c.Artifact.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s.%s: %w", c.Artifact.ContractName, method, err)
	}
	return account.Execute(ctx, &c.Address, big.NewInt(0), data, opts)
}
