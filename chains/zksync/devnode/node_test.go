package devnode

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/idea404/aa-dc/chains/zksync/create2"
	"github.com/idea404/aa-dc/chains/zksync/eip712"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/zktx"
)

func newNode(t *testing.T) *Node {
	t.Helper()
	n, err := New()
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func newTx(from common.Address, nonce uint64, to common.Address, value int64, data []byte) *zktypes.Transaction {
	return &zktypes.Transaction{
		TransactionIntent: zktypes.NewIntent(from, &to, big.NewInt(value), data),
		Nonce:             nonce,
		GasLimit:          big.NewInt(300_000),
		GasPrice:          DefaultGasPrice,
		ChainID:           DefaultChainID,
		Meta:              zktypes.NewMeta(),
	}
}

func signedTransfer(t *testing.T, from common.Address, nonce uint64, to common.Address, value int64, keys ...[]byte) []byte {
	t.Helper()
	return signTx(t, newTx(from, nonce, to, value, nil), keys...)
}

func signTx(t *testing.T, tx *zktypes.Transaction, keys ...[]byte) []byte {
	t.Helper()
	digest, err := eip712.Digest(tx)
	require.NoError(t, err)
	var packed []byte
	for _, k := range keys {
		pk, err := crypto.ToECDSA(k)
		require.NoError(t, err)
		sig, err := crypto.Sign(digest.Bytes(), pk)
		require.NoError(t, err)
		sig[64] += 27
		packed = append(packed, sig...)
	}
	tx.Meta.CustomSignature = packed
	raw, err := zktx.Serialize(tx)
	require.NoError(t, err)
	return raw
}

var (
	key1 = common.FromHex("0x7726827caac94a7f9e1b160f7ea819f172f7b6f9d2a97f992c38edeab82d4110")
	key2 = common.FromHex("0xac1e735be8536c6534bb4f17f06f6afc73b2b5ba84ac2cfb12f7461b20c0bbe3")

	addr1 = common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	addr2 = common.HexToAddress("0xa61464658AfeAf65CccaaFD3a512b69A83B77618")

	multisig = common.HexToAddress("0x99d1d61b9e0ff26ff6ae2ce0d6018840005c64c2")
	sink     = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

func TestSubmitTransfer(t *testing.T) {
	n := newNode(t)
	n.Fund(addr1, big.NewInt(1e18))

	hash, err := n.submit(signedTransfer(t, addr1, 0, sink, 7, key1))
	require.NoError(t, err)

	r := n.receipt(hash)
	require.NotNil(t, r)
	require.Equal(t, uint64(1), r.Status)
	require.Equal(t, big.NewInt(7), n.Balance(sink))
	require.Equal(t, uint64(1), n.Nonce(addr1))
	require.Equal(t, uint64(1), n.BlockNumber())

	fee := new(big.Int).Mul(big.NewInt(300_000), DefaultGasPrice)
	want := new(big.Int).Sub(big.NewInt(1e18), new(big.Int).Add(fee, big.NewInt(7)))
	require.Equal(t, want, n.Balance(addr1))
	require.Equal(t, fee, n.Balance(FeeCollector))
}

func TestSubmitRejections(t *testing.T) {
	n := newNode(t)
	n.Fund(addr1, big.NewInt(1e18))
	n.Fund(multisig, big.NewInt(1e18))
	n.RegisterAccount(multisig, AccountPolicy{Owners: []common.Address{addr1, addr2}})

	tests := []struct {
		name   string
		raw    []byte
		reason string
	}{
		{"wrong key", signedTransfer(t, addr1, 0, sink, 1, key2), ReasonAccountValidation},
		{"nonce too high", signedTransfer(t, addr1, 5, sink, 1, key1), ReasonNonceTooHigh},
		{"multisig one signature", signedTransfer(t, multisig, 0, sink, 1, key1), ReasonAccountValidation},
		{"multisig swapped", signedTransfer(t, multisig, 0, sink, 1, key2, key1), ReasonAccountValidation},
		{"unfunded", signedTransfer(t, addr2, 0, sink, 1, key2), ReasonFailedToPay},
		{"not a 0x71 envelope", []byte{0x02, 0xc0}, "failed to decode transaction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.submit(tt.raw)
			require.ErrorContains(t, err, tt.reason)
		})
	}
	require.Zero(t, n.Balance(sink).Sign())

	_, err := n.submit(signedTransfer(t, multisig, 0, sink, 1, key1, key2))
	require.NoError(t, err)
	_, err = n.submit(signedTransfer(t, multisig, 0, sink, 1, key1, key2))
	require.ErrorContains(t, err, ReasonNonceTooLow)
}

func TestSubmitBadFactoryDependency(t *testing.T) {
	n := newNode(t)
	n.Fund(addr1, big.NewInt(1e18))

	// the digest covers dependency hashes, so the envelope carries a dummy signature
	tx := newTx(addr1, 0, sink, 1, nil)
	tx.Meta.FactoryDeps = [][]byte{make([]byte, 33)}
	tx.Meta.CustomSignature = make([]byte, crypto.SignatureLength)
	raw, err := zktx.Serialize(tx)
	require.NoError(t, err)

	_, err = n.submit(raw)
	require.ErrorContains(t, err, "invalid factory dependency")
	require.ErrorIs(t, err, create2.ErrBytecodeLength)

	require.Equal(t, big.NewInt(1e18), n.Balance(addr1))
	require.Zero(t, n.Nonce(addr1))
	require.Zero(t, n.Balance(FeeCollector).Sign())
	require.Zero(t, n.BlockNumber())
}

func deployTx(t *testing.T, from common.Address, nonce uint64, sel [4]byte, bytecode, input []byte) *zktypes.Transaction {
	t.Helper()
	hash, err := create2.HashBytecode(bytecode)
	require.NoError(t, err)
	args, err := create2Args.Pack([32]byte{}, [32]byte(hash), input)
	require.NoError(t, err)
	tx := newTx(from, nonce, zktypes.ContractDeployerAddress, 0, append(sel[:], args...))
	tx.Meta.FactoryDeps = [][]byte{bytecode}
	return tx
}

func TestSubmitCreate(t *testing.T) {
	n := newNode(t)
	n.Fund(addr1, big.NewInt(1e18))
	bytecode := make([]byte, 32)
	hash, err := create2.HashBytecode(bytecode)
	require.NoError(t, err)

	for nonce := uint64(0); nonce < 2; nonce++ {
		txHash, err := n.submit(signTx(t, deployTx(t, addr1, nonce, createSelector, bytecode, nil), key1))
		require.NoError(t, err)

		r := n.receipt(txHash)
		require.Equal(t, uint64(1), r.Status)
		require.Len(t, r.Logs, 1)
		l := r.Logs[0]
		want := create2.CreateAddress(addr1, nonce)
		require.Equal(t, zktypes.ContractDeployerAddress, l.Address)
		require.Equal(t, []common.Hash{
			zktypes.ContractDeployedTopic,
			common.BytesToHash(addr1.Bytes()),
			hash,
			common.BytesToHash(want.Bytes()),
		}, l.Topics)
		require.Equal(t, txHash, l.TxHash)
		require.Equal(t, r.BlockNumber.Uint64(), l.BlockNumber)
		require.Equal(t, bytecode, n.st.Code(want))
	}

	deployments := n.Deployments()
	require.Len(t, deployments, 2)
	require.NotEqual(t, deployments[0].Address, deployments[1].Address)
}

func TestSubmitCreateReverted(t *testing.T) {
	n := newNode(t)
	n.Fund(addr1, big.NewInt(1e18))
	bytecode := make([]byte, 32)
	hash, err := create2.HashBytecode(bytecode)
	require.NoError(t, err)
	n.OnDeploy(hash, func(*State, common.Address, []byte) error {
		return errors.New("constructor reverted")
	})

	txHash, err := n.submit(signTx(t, deployTx(t, addr1, 0, createSelector, bytecode, nil), key1))
	require.NoError(t, err)
	r := n.receipt(txHash)
	require.Equal(t, uint64(0), r.Status)
	require.Empty(t, r.Logs)
	require.Empty(t, n.Deployments())
	require.Empty(t, n.st.Code(create2.CreateAddress(addr1, 0)))
	// the deployment nonce is not consumed
	require.Zero(t, n.st.deployNonces[addr1])
}

func TestAllowList(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	sel := Selector("testFunction1()")
	policy := AccountPolicy{
		AllowedTargets:   []common.Address{target},
		AllowedSelectors: [][4]byte{sel},
	}

	require.True(t, policy.allows(&target, sel[:]))
	require.False(t, policy.allows(&sink, sel[:]))
	require.False(t, policy.allows(&target, nil))
	other := Selector("testFunction2()")
	require.False(t, policy.allows(&target, other[:]))
	require.False(t, policy.allows(nil, sel[:]))
	require.True(t, AccountPolicy{}.allows(&sink, nil))
}

func TestDeployThroughContractDeployer(t *testing.T) {
	n := newNode(t)
	bytecode := make([]byte, 96)
	bytecode[0] = 0x01
	hash, err := create2.HashBytecode(bytecode)
	require.NoError(t, err)

	var deployed common.Address
	n.OnDeploy(hash, func(st *State, addr common.Address, input []byte) error {
		deployed = addr
		st.RegisterAccount(addr, AccountPolicy{Owners: []common.Address{common.BytesToAddress(input)}})
		return nil
	})

	input := common.LeftPadBytes(addr1.Bytes(), 32)
	err = n.Update(func(st *State) error {
		_, err := st.Deploy(addr2, hash, common.Hash{}, input)
		return err
	})
	require.ErrorContains(t, err, "not known")

	err = n.Update(func(st *State) error {
		st.bytecodes[hash] = bytecode
		args, err := create2Args.Pack([32]byte{}, [32]byte(hash), input)
		if err != nil {
			return err
		}
		out, err := st.dispatch(Msg{
			From: addr2,
			To:   zktypes.ContractDeployerAddress,
			Data: append(create2Selector[:], args...),
		})
		if err != nil {
			return err
		}
		require.Equal(t, common.LeftPadBytes(deployed.Bytes(), 32), out)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, create2.Address(addr2, hash, common.Hash{}, input), deployed)
	deployments := n.Deployments()
	require.Len(t, deployments, 1)
	require.Equal(t, deployed, deployments[0].Address)

	policy, ok := n.st.Account(deployed)
	require.True(t, ok)
	require.Equal(t, []common.Address{addr1}, policy.Owners)

	// same salt and input collide
	err = n.Update(func(st *State) error {
		_, err := st.Deploy(addr2, hash, common.Hash{}, input)
		return err
	})
	require.ErrorContains(t, err, "already deployed")
}

func TestDispatch(t *testing.T) {
	n := newNode(t)
	contract := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	sel := Selector("value()")
	n.Handle(contract, sel, func(*State, Msg) ([]byte, error) {
		return common.LeftPadBytes([]byte{42}, 32), nil
	})

	out, err := n.st.dispatch(Msg{To: contract, Data: sel[:]})
	require.NoError(t, err)
	require.Equal(t, byte(42), out[31])

	n.st.code[contract] = []byte{1}
	unknown := Selector("missing()")
	_, err = n.st.dispatch(Msg{To: contract, Data: unknown[:]})
	require.ErrorContains(t, err, "execution reverted")

	out, err = n.st.dispatch(Msg{To: sink, Data: unknown[:]})
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestTransferGuards(t *testing.T) {
	st := newState()
	st.Fund(addr1, big.NewInt(5))
	require.Error(t, st.Transfer(addr1, addr2, big.NewInt(6)))
	require.Error(t, st.Transfer(addr1, addr2, big.NewInt(-1)))
	require.NoError(t, st.Transfer(addr1, addr2, nil))
	require.NoError(t, st.Transfer(addr1, addr2, big.NewInt(5)))
	require.Zero(t, st.Balance(addr1).Sign())
	require.Equal(t, big.NewInt(5), st.Balance(addr2))
}

func TestMine(t *testing.T) {
	n := newNode(t)
	require.Equal(t, uint64(1), n.Mine())
	require.Equal(t, uint64(2), n.Mine())
	require.Equal(t, uint64(2), n.BlockNumber())
}
