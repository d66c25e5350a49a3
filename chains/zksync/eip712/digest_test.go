package eip712

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

func sampleTx() *zktypes.Transaction {
	to := common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	value, _ := new(big.Int).SetString("10000000000000000000", 10)
	return &zktypes.Transaction{
		TransactionIntent: zktypes.NewIntent(
			common.HexToAddress("0x2222222222222222222222222222222222222222"),
			&to,
			value,
			common.FromHex("0xdeadbeef"),
		),
		Nonce:    5,
		GasLimit: big.NewInt(1_000_000),
		GasPrice: big.NewInt(250_000_000),
		ChainID:  big.NewInt(260),
		Meta:     zktypes.NewMeta(),
	}
}

func seqBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestDomainSeparator(t *testing.T) {
	tests := []struct {
		chainID int64
		want    string
	}{
		{260, "0xc45dc49b15b65fc61d587350dee45ae95b92abefd26985df11dd926751b44bbb"},
		{324, "0x38d6914dece859729eb1096cb0287992db769d1cfb35027c07a15c58c30ee62e"},
	}
	for _, tt := range tests {
		got, err := DomainSeparator(big.NewInt(tt.chainID))
		require.NoError(t, err)
		require.Equal(t, tt.want, got.Hex())
	}

	_, err := DomainSeparator(nil)
	require.Error(t, err)
}

func TestTransactionTypeHash(t *testing.T) {
	want := "0x848e1bfa1ac4e3576b728bda6721b215c70a7799a5b4866282a71bab954baac8"
	got := crypto.Keccak256Hash([]byte("Transaction(uint256 txType,uint256 from,uint256 to,uint256 gasLimit,uint256 gasPerPubdataByteLimit,uint256 maxFeePerGas,uint256 maxPriorityFeePerGas,uint256 paymaster,uint256 nonce,uint256 value,bytes data,bytes32[] factoryDeps,bytes paymasterInput)"))
	require.Equal(t, want, got.Hex())

	doc, err := TypedData(sampleTx())
	require.NoError(t, err)
	require.Equal(t, want, common.BytesToHash(doc.TypeHash(primaryType)).Hex())
}

func TestDigest(t *testing.T) {
	tx := sampleTx()

	structHash, err := StructHash(tx)
	require.NoError(t, err)
	require.Equal(t, "0xdfa2f44d4b65ef2af7d1d557592a87f655c5be32375f55cb3305c94518f84140", structHash.Hex())

	digest, err := Digest(tx)
	require.NoError(t, err)
	require.Equal(t, "0x6feb4ccf85a1df459428169fa87ab37650dd78d26457d4984a704187e9665a41", digest.Hex())

	domain, err := DomainSeparator(tx.ChainID)
	require.NoError(t, err)
	manual := crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash.Bytes())
	require.Equal(t, manual, digest)
}

func TestDigestWithFactoryDeps(t *testing.T) {
	tx := sampleTx()
	tx.Meta.FactoryDeps = [][]byte{seqBytes(96)}

	digest, err := Digest(tx)
	require.NoError(t, err)
	require.Equal(t, "0xcfcf63643804eb6bc2066789cd48db4b0e1eefa75c4270bf76b6992ff86e8595", digest.Hex())

	tx.Meta.FactoryDeps = [][]byte{seqBytes(64)}
	_, err = Digest(tx)
	require.Error(t, err)
}

func TestDigestIgnoresCustomSignature(t *testing.T) {
	tx := sampleTx()
	before, err := Digest(tx)
	require.NoError(t, err)

	tx.Meta.CustomSignature = common.FromHex("0xaaaa")
	after, err := Digest(tx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDigestDefaults(t *testing.T) {
	tx := sampleTx()
	withMeta, err := Digest(tx)
	require.NoError(t, err)

	// A nil custom-data container hashes with the default limit and no paymaster.
	tx.Meta = nil
	withoutMeta, err := Digest(tx)
	require.NoError(t, err)
	require.Equal(t, withMeta, withoutMeta)

	// Explicit fee caps equal to the gas price change nothing.
	tx.MaxFeePerGas = big.NewInt(250_000_000)
	tx.MaxPriorityFeePerGas = big.NewInt(250_000_000)
	capped, err := Digest(tx)
	require.NoError(t, err)
	require.Equal(t, withMeta, capped)
}

func TestDigestSensitivity(t *testing.T) {
	base, err := Digest(sampleTx())
	require.NoError(t, err)

	mutations := map[string]func(tx *zktypes.Transaction){
		"chain id":  func(tx *zktypes.Transaction) { tx.ChainID = big.NewInt(324) },
		"nonce":     func(tx *zktypes.Transaction) { tx.Nonce++ },
		"value":     func(tx *zktypes.Transaction) { tx.Value = big.NewInt(1) },
		"data":      func(tx *zktypes.Transaction) { tx.Data = nil },
		"to":        func(tx *zktypes.Transaction) { tx.To = nil },
		"gas limit": func(tx *zktypes.Transaction) { tx.GasLimit = big.NewInt(1) },
		"pubdata":   func(tx *zktypes.Transaction) { tx.Meta.GasPerPubdata = big.NewInt(800) },
		"paymaster": func(tx *zktypes.Transaction) {
			tx.Meta.PaymasterParams = &zktypes.PaymasterParams{
				Paymaster:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
				PaymasterInput: common.FromHex("0x8c5a3445"),
			}
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tx := sampleTx()
			mutate(tx)
			got, err := Digest(tx)
			require.NoError(t, err)
			require.NotEqual(t, base, got)
		})
	}
}

func TestDigestErrors(t *testing.T) {
	tx := sampleTx()
	tx.ChainID = nil
	_, err := Digest(tx)
	require.Error(t, err)

	tx = sampleTx()
	tx.GasPrice = nil
	_, err = Digest(tx)
	require.Error(t, err)

	tx = sampleTx()
	tx.GasLimit = nil
	_, err = StructHash(tx)
	require.Error(t, err)
}
