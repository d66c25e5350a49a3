package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	ethhd "github.com/cosmos/evm/crypto/hd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthDerivationPathPrefix is the BIP-44 account prefix, the index is appended.
const EthDerivationPathPrefix = "m/44'/60'/0'/0/"

// Key is a secp256k1 signing key. It signs digests, never transactions.
type Key struct {
	PrivKey *ecdsa.PrivateKey
}

// NewKey wraps an existing private key.
func NewKey(privKey *ecdsa.PrivateKey) *Key {
	return &Key{PrivKey: privKey}
}

// KeyFromHex parses a hex private key, with or without 0x prefix.
func KeyFromHex(hexKey string) (*Key, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKey(pk), nil
}

// GenerateKey creates a fresh random key.
func GenerateKey() (*Key, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKey(pk), nil
}

// KeysFromMnemonic derives n keys at m/44'/60'/0'/0/{0..n-1}.
func KeysFromMnemonic(mnemonic string, n int) ([]*Key, error) {
	m := strings.TrimSpace(mnemonic)
	if m == "" {
		return nil, fmt.Errorf("mnemonic is empty")
	}
	keys := make([]*Key, n)
	for i := range n {
		derivedPrivKey, err := ethhd.EthSecp256k1.Derive()(m, "", fmt.Sprintf("%s%d", EthDerivationPathPrefix, i))
		if err != nil {
			return nil, fmt.Errorf("mnemonic[%d]: derive failed: %w", i, err)
		}
		pk, err := crypto.ToECDSA(derivedPrivKey)
		if err != nil {
			return nil, fmt.Errorf("mnemonic[%d]: invalid ECDSA key: %w", i, err)
		}
		keys[i] = NewKey(pk)
	}
	return keys, nil
}

// Address returns the address derived from the public key.
func (k *Key) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivKey.PublicKey)
}

// FormattedAddress returns the checksummed hex address.
func (k *Key) FormattedAddress() string {
	return k.Address().Hex()
}

// SignDigest signs a 32-byte digest. The result is r || s || v with v in
// {27, 28}; signing is deterministic.
func (k *Key) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), k.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced a 65-byte signature over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := common.CopyBytes(sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
