package deployer_test

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	"github.com/idea404/aa-dc/chains/zksync/deployer"
	"github.com/idea404/aa-dc/chains/zksync/devnode"
	"github.com/idea404/aa-dc/chains/zksync/provider"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/wallet"
)

const counterArtifact = `{
  "contractName": "Counter",
  "sourceName": "contracts/Counter.sol",
  "abi": [
    {"inputs":[{"internalType":"uint256","name":"start","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},
    {"inputs":[],"name":"value","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
    {"inputs":[],"name":"increment","outputs":[],"stateMutability":"nonpayable","type":"function"}
  ],
  "bytecode": "0x0100000000000000000000000000000000000000000000000000000000000000",
  "factoryDeps": {}
}`

func setup(t *testing.T) (*devnode.Node, *deployer.Deployer) {
	t.Helper()
	node, err := devnode.New()
	require.NoError(t, err)
	t.Cleanup(node.Close)
	rc := node.Client()
	t.Cleanup(rc.Close)
	client := provider.NewClient(ethclient.NewClient(rc), provider.WithPollInterval(10*time.Millisecond))

	key, err := wallet.KeyFromHex("0x7726827caac94a7f9e1b160f7ea819f172f7b6f9d2a97f992c38edeab82d4110")
	require.NoError(t, err)
	node.Fund(key.Address(), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Counter.json"), []byte(counterArtifact), 0o644))

	account := wallet.NewAccount(wallet.NewOwnKeySigner(key), client, nil)
	return node, deployer.New(account, client.Caller(), dir, nil)
}

// emulateCounter gives deployed Counter contracts a value() view and an
// increment() method.
func emulateCounter(t *testing.T, node *devnode.Node, a *deployer.Artifact) {
	t.Helper()
	hash, err := a.BytecodeHash()
	require.NoError(t, err)
	node.OnDeploy(hash, func(st *devnode.State, addr common.Address, input []byte) error {
		value := new(big.Int).SetBytes(input)
		st.Handle(addr, devnode.Selector("value()"), func(*devnode.State, devnode.Msg) ([]byte, error) {
			return common.LeftPadBytes(value.Bytes(), 32), nil
		})
		st.Handle(addr, devnode.Selector("increment()"), func(*devnode.State, devnode.Msg) ([]byte, error) {
			value.Add(value, big.NewInt(1))
			return nil, nil
		})
		return nil
	})
}

func TestDeploy(t *testing.T) {
	node, d := setup(t)
	ctx := context.Background()

	artifact, err := d.LoadArtifact("Counter")
	require.NoError(t, err)
	emulateCounter(t, node, artifact)

	fee, err := d.EstimateDeployFee(ctx, artifact, big.NewInt(41))
	require.NoError(t, err)
	require.Positive(t, fee.Sign())

	salt := common.HexToHash("0x01")
	contract, err := d.Deploy(ctx, artifact, []any{big.NewInt(41)}, &deployer.DeployOpts{Salt: &salt})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, contract.TxHash)

	hash, err := artifact.BytecodeHash()
	require.NoError(t, err)
	input, err := artifact.EncodeConstructor(big.NewInt(41))
	require.NoError(t, err)
	require.Equal(t, create2.Address(d.Account().Address(), hash, salt, input), contract.Address)

	deployments := node.Deployments()
	require.Len(t, deployments, 1)
	require.Equal(t, contract.Address, deployments[0].Address)

	out, err := contract.Call(ctx, "value")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(41), out[0])

	_, err = contract.Transact(ctx, d.Account(), nil, "increment")
	require.NoError(t, err)
	out, err = contract.Call(ctx, "value")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), out[0])

	// redeploying with the same salt and arguments reverts
	_, err = d.Deploy(ctx, artifact, []any{big.NewInt(41)}, &deployer.DeployOpts{Salt: &salt})
	var failed *zktypes.ReceiptFailedError
	require.ErrorAs(t, err, &failed)
}

func TestDeployTwiceWithoutSalt(t *testing.T) {
	node, d := setup(t)
	ctx := context.Background()

	artifact, err := d.LoadArtifact("Counter")
	require.NoError(t, err)
	emulateCounter(t, node, artifact)

	first, err := d.Deploy(ctx, artifact, []any{big.NewInt(1)}, nil)
	require.NoError(t, err)
	second, err := d.Deploy(ctx, artifact, []any{big.NewInt(1)}, nil)
	require.NoError(t, err)

	require.NotEqual(t, first.Address, second.Address)
	require.Equal(t, create2.CreateAddress(d.Account().Address(), 0), first.Address)
	require.Equal(t, create2.CreateAddress(d.Account().Address(), 1), second.Address)

	deployments := node.Deployments()
	require.Len(t, deployments, 2)
	require.Equal(t, first.Address, deployments[0].Address)
	require.Equal(t, second.Address, deployments[1].Address)

	out, err := second.Call(ctx, "value")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), out[0])
}

func TestDeployBadArgs(t *testing.T) {
	_, d := setup(t)
	artifact, err := d.LoadArtifact("Counter")
	require.NoError(t, err)

	_, err = d.Deploy(context.Background(), artifact, []any{"not a number"}, nil)
	require.Error(t, err)
}
