package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/idea404/aa-dc/chains/zksync/eip712"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/zktx"
)

var (
	smartAccount = common.HexToAddress("0x4dc9df9449a4105075fef08c3dea6f4b808e4680")
	recipient    = common.HexToAddress("0x1dd65b0248d1ac83a8c10f2fe35a658a6e2fda37")
)

func populatedTx(from common.Address) *zktypes.Transaction {
	to := recipient
	return &zktypes.Transaction{
		TransactionIntent: zktypes.NewIntent(from, &to, big.NewInt(10), nil),
		Nonce:             3,
		GasLimit:          big.NewInt(500_000),
		GasPrice:          big.NewInt(250_000_000),
		ChainID:           big.NewInt(260),
		Meta:              zktypes.NewMeta(),
	}
}

func TestSignerAddress(t *testing.T) {
	k1 := mustKey(t, richKeyHex)
	k2 := mustKey(t, secondKeyHex)

	tests := []struct {
		name   string
		signer *SmartAccountSigner
		want   common.Address
		kind   IdentityKind
	}{
		{"single", NewSingleSigner(smartAccount, k1), smartAccount, AbstractSmartAccount},
		{"dual", NewDualSigner(smartAccount, k1, k2), smartAccount, AbstractSmartAccount},
		{"own key", NewOwnKeySigner(k1), k1.Address(), OwnKeyDerived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.Equal(t, tt.want, tt.signer.Address())
			}
			require.Equal(t, tt.kind, tt.signer.Identity().Kind)
		})
	}
	require.NotEqual(t, k1.Address(), NewSingleSigner(smartAccount, k1).Address())
}

func TestSignTransactionSingle(t *testing.T) {
	k := mustKey(t, richKeyHex)
	signer := NewSingleSigner(smartAccount, k)
	tx := populatedTx(smartAccount)

	raw, err := signer.SignTransaction(tx)
	require.NoError(t, err)
	require.Equal(t, zktypes.EIP712TxType, raw[0])
	require.Len(t, tx.CustomSignature(), 65)

	decoded, err := zktx.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, smartAccount, decoded.From)
	require.Equal(t, tx.CustomSignature(), decoded.CustomSignature())

	digest, err := eip712.Digest(decoded)
	require.NoError(t, err)
	recovered, err := RecoverSigner(digest, decoded.CustomSignature())
	require.NoError(t, err)
	require.Equal(t, k.Address(), recovered)
}

func TestSignTransactionDual(t *testing.T) {
	k1 := mustKey(t, richKeyHex)
	k2 := mustKey(t, secondKeyHex)

	tx := populatedTx(smartAccount)
	_, err := NewDualSigner(smartAccount, k1, k2).SignTransaction(tx)
	require.NoError(t, err)
	ordered := tx.CustomSignature()

	tx2 := populatedTx(smartAccount)
	_, err = NewDualSigner(smartAccount, k2, k1).SignTransaction(tx2)
	require.NoError(t, err)
	require.NotEqual(t, ordered, tx2.CustomSignature())

	digest, err := eip712.Digest(tx)
	require.NoError(t, err)
	parts, err := SplitSignatures(ordered)
	require.NoError(t, err)
	first, err := RecoverSigner(digest, parts[0])
	require.NoError(t, err)
	second, err := RecoverSigner(digest, parts[1])
	require.NoError(t, err)
	require.Equal(t, k1.Address(), first)
	require.Equal(t, k2.Address(), second)
}

func TestSignTransactionErrors(t *testing.T) {
	k := mustKey(t, richKeyHex)
	signer := NewSingleSigner(smartAccount, k)

	tx := populatedTx(smartAccount)
	tx.Meta = nil
	_, err := signer.SignTransaction(tx)
	require.ErrorIs(t, err, zktypes.ErrMissingCustomData)

	_, err = signer.SignTransaction(populatedTx(k.Address()))
	require.Error(t, err)

	tx = populatedTx(smartAccount)
	tx.ChainID = nil
	_, err = signer.SignTransaction(tx)
	require.Error(t, err)
}

func TestSignTransactionKeepsTxOnFailure(t *testing.T) {
	k := mustKey(t, richKeyHex)
	previous := []byte{0x01, 0x02, 0x03}

	// a zero sender hashes fine but cannot be serialized
	tx := populatedTx(common.Address{})
	tx.Meta.CustomSignature = previous
	_, err := NewSingleSigner(common.Address{}, k).SignTransaction(tx)
	require.ErrorIs(t, err, zktx.ErrMissingFrom)
	require.Equal(t, previous, tx.CustomSignature())

	tx = populatedTx(smartAccount)
	tx.Meta.CustomSignature = previous
	_, err = NewSingleSigner(smartAccount, k).SignTransaction(tx)
	require.NoError(t, err)
	require.Len(t, tx.CustomSignature(), 65)
}

func TestSignerPolicy(t *testing.T) {
	k1 := mustKey(t, richKeyHex)
	k2 := mustKey(t, secondKeyHex)

	require.Equal(t, []common.Address{k1.Address()}, NewSingleSigner(smartAccount, k1).Policy().Signers())
	require.Equal(t, []common.Address{k1.Address()}, NewOwnKeySigner(k1).Policy().Signers())
	require.Equal(t, []common.Address{k2.Address(), k1.Address()}, NewDualSigner(smartAccount, k2, k1).Policy().Signers())
	require.IsType(t, DualPolicy{}, NewDualSigner(smartAccount, k1, k2).Policy())
}

func TestSignTransactionResign(t *testing.T) {
	k := mustKey(t, richKeyHex)
	signer := NewSingleSigner(smartAccount, k)
	tx := populatedTx(smartAccount)

	raw1, err := signer.SignTransaction(tx)
	require.NoError(t, err)
	// signing again ignores the attached signature when hashing
	raw2, err := signer.SignTransaction(tx)
	require.NoError(t, err)
	require.Equal(t, raw1, raw2)

	tx.Nonce++
	raw3, err := signer.SignTransaction(tx)
	require.NoError(t, err)
	require.NotEqual(t, raw1, raw3)
}
