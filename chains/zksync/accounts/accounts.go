// Package accounts deploys account factories and smart accounts and funds
// them, following the recipes of the bundled account contracts.
package accounts

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	"github.com/idea404/aa-dc/chains/zksync/deployer"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/wallet"
)

// AccountDeployGasLimit is the gas limit used for factory calls that deploy
// an account; estimation of nested deployments is unreliable on dev nodes.
var AccountDeployGasLimit = big.NewInt(10_000_000)

// Recipe describes how a factory deploys one kind of account.
type Recipe struct {
	FactoryContract string
	AccountContract string
	// DeployMethod takes a bytes32 salt followed by ArgTypes.
	DeployMethod string
	// BytecodeHashGetter is the factory view returning the account bytecode hash.
	BytecodeHashGetter string
	ArgTypes           []string
}

var (
	TwoUserMultisig = Recipe{
		FactoryContract:    "AAFactory",
		AccountContract:    "TwoUserMultisig",
		DeployMethod:       "deployAccount",
		BytecodeHashGetter: "aaBytecodeHash",
		ArgTypes:           []string{"address", "address"},
	}
	PensionAccount = Recipe{
		FactoryContract:    "PensionAccountFactory",
		AccountContract:    "PensionAccount",
		DeployMethod:       "deployPensionAccount",
		BytecodeHashGetter: "pensionAccountBytecodeHash",
		ArgTypes:           []string{"address", "address", "address", "address", "address", "address"},
	}
	SharedRestrictedAccount = Recipe{
		FactoryContract:    "SharedRestrictedAccountFactory",
		AccountContract:    "SharedRestrictedAccount",
		DeployMethod:       "deployAccount",
		BytecodeHashGetter: "aaBytecodeHash",
		ArgTypes:           []string{"address"},
	}
	SharedAccountWithRestrictions = Recipe{
		FactoryContract:    "SharedAccountWithRestrictionsFactory",
		AccountContract:    "SharedAccountWithRestrictions",
		DeployMethod:       "deployAccount",
		BytecodeHashGetter: "aaBytecodeHash",
		ArgTypes:           []string{"address"},
	}
)

var recipes = map[string]Recipe{
	TwoUserMultisig.AccountContract:               TwoUserMultisig,
	PensionAccount.AccountContract:                PensionAccount,
	SharedRestrictedAccount.AccountContract:       SharedRestrictedAccount,
	SharedAccountWithRestrictions.AccountContract: SharedAccountWithRestrictions,
}

// RecipeFor looks a recipe up by account contract name.
func RecipeFor(accountContract string) (Recipe, error) {
	r, ok := recipes[accountContract]
	if !ok {
		names := make([]string, 0, len(recipes))
		for name := range recipes {
			names = append(names, name)
		}
		sort.Strings(names)
		return Recipe{}, fmt.Errorf("unknown account contract %q, expected one of %s", accountContract, strings.Join(names, ", "))
	}
	return r, nil
}

// DeployFactory deploys the recipe's factory with the account bytecode hash
// as constructor argument and the account bytecode as factory dependency.
func DeployFactory(ctx context.Context, d *deployer.Deployer, r Recipe, opts *deployer.DeployOpts) (*deployer.DeployedContract, error) {
	accountArtifact, err := d.LoadArtifact(r.AccountContract)
	if err != nil {
		return nil, err
	}
	factoryArtifact, err := d.LoadArtifact(r.FactoryContract)
	if err != nil {
		return nil, err
	}
	return DeployFactoryArtifacts(ctx, d, factoryArtifact, accountArtifact, opts)
}

// DeployFactoryArtifacts is DeployFactory with artifacts already loaded.
func DeployFactoryArtifacts(ctx context.Context, d *deployer.Deployer, factory, account *deployer.Artifact, opts *deployer.DeployOpts) (*deployer.DeployedContract, error) {
	bytecodeHash, err := account.BytecodeHash()
	if err != nil {
		return nil, fmt.Errorf("hashing %s bytecode: %w", account.ContractName, err)
	}
	fee, err := d.EstimateDeployFee(ctx, factory, [32]byte(bytecodeHash))
	if err != nil {
		return nil, err
	}
	d.Logger().Info("estimated deployment fee",
		zap.String("contract", factory.ContractName),
		zap.Stringer("fee_wei", fee))
	return d.Deploy(ctx, factory, []any{[32]byte(bytecodeHash)}, opts, account.Bytecode)
}

// DeployAccount calls the factory to deploy an account and returns the
// account address derived from the factory's bytecode hash. The derived
// address must hold code afterwards.
func DeployAccount(ctx context.Context, d *deployer.Deployer, factory *deployer.DeployedContract, r Recipe, salt common.Hash, args ...any) (common.Address, error) {
	input, err := create2.EncodeArgs(r.ArgTypes, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("encoding %s arguments: %w", r.AccountContract, err)
	}

	callArgs := append([]any{[32]byte(salt)}, args...)
	if _, err := factory.Transact(ctx, d.Account(), &wallet.PopulateOpts{GasLimit: AccountDeployGasLimit}, r.DeployMethod, callArgs...); err != nil {
		return common.Address{}, fmt.Errorf("deploying %s: %w", r.AccountContract, err)
	}

	out, err := factory.Call(ctx, r.BytecodeHashGetter)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%s returned %d values", r.BytecodeHashGetter, len(out))
	}
	bytecodeHash, ok := out[0].([32]byte)
	if !ok {
		return common.Address{}, fmt.Errorf("%s returned %T, want bytes32", r.BytecodeHashGetter, out[0])
	}
	addr := create2.Address(factory.Address, bytecodeHash, salt, input)
	code, err := d.Caller().CodeAt(ctx, addr, nil)
	if err != nil {
		return common.Address{}, &zktypes.TransportError{Op: "eth_getCode", Err: err}
	}
	if len(code) == 0 {
		return common.Address{}, fmt.Errorf("no %s deployed at derived address %s", r.AccountContract, addr.Hex())
	}
	return addr, nil
}

// Fund sends amount from an account to `to`.
func Fund(ctx context.Context, from *wallet.Account, to common.Address, amount *big.Int) (*gethtypes.Receipt, error) {
	return from.Transfer(ctx, to, amount)
}

// RandomSalt returns 32 random bytes.
func RandomSalt() (common.Hash, error) {
	var salt common.Hash
	if _, err := rand.Read(salt[:]); err != nil {
		return common.Hash{}, err
	}
	return salt, nil
}

// MockAddress keeps the hex characters of base and right-pads them with
// zeros to an address, e.g. "dogecoin" becomes 0xdec000...0.
func MockAddress(base string) common.Address {
	var b strings.Builder
	for _, r := range base {
		if strings.ContainsRune("0123456789abcdefABCDEF", r) {
			b.WriteRune(r)
		}
	}
	hex := b.String()
	if len(hex) > 2*common.AddressLength {
		hex = hex[:2*common.AddressLength]
	}
	return common.HexToAddress("0x" + hex + strings.Repeat("0", 2*common.AddressLength-len(hex)))
}
