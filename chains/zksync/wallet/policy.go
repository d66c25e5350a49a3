package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// SigningPolicy turns a transaction digest into the custom signature the
// account's validation logic expects. The set of policies is closed.
type SigningPolicy interface {
	Sign(digest common.Hash) ([]byte, error)
	// Signers returns the signing addresses in packing order.
	Signers() []common.Address

	policy()
}

// SinglePolicy signs with one key; the signature is used unmodified.
type SinglePolicy struct {
	Key *Key
}

func (p SinglePolicy) Sign(digest common.Hash) ([]byte, error) {
	if p.Key == nil {
		return nil, errors.New("single policy has no key")
	}
	return p.Key.SignDigest(digest)
}

func (p SinglePolicy) Signers() []common.Address {
	return []common.Address{p.Key.Address()}
}

func (SinglePolicy) policy() {}

// DualPolicy signs with two keys over the same digest and packs the
// signatures as first || second.
type DualPolicy struct {
	First  *Key
	Second *Key
}

func (p DualPolicy) Sign(digest common.Hash) ([]byte, error) {
	if p.First == nil || p.Second == nil {
		return nil, errors.New("dual policy needs two keys")
	}
	sig1, err := p.First.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("first signer: %w", err)
	}
	sig2, err := p.Second.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("second signer: %w", err)
	}
	return append(sig1, sig2...), nil
}

func (p DualPolicy) Signers() []common.Address {
	return []common.Address{p.First.Address(), p.Second.Address()}
}

func (DualPolicy) policy() {}

// SplitSignatures cuts a packed custom signature into its 65-byte parts.
func SplitSignatures(packed []byte) ([][]byte, error) {
	const n = 65
	if len(packed) == 0 || len(packed)%n != 0 {
		return nil, fmt.Errorf("packed signature length %d is not a multiple of %d", len(packed), n)
	}
	out := make([][]byte, 0, len(packed)/n)
	for i := 0; i < len(packed); i += n {
		out = append(out, packed[i:i+n])
	}
	return out, nil
}

// AttachSignature stores sig as the transaction's custom signature.
func AttachSignature(tx *zktypes.Transaction, sig []byte) error {
	if tx.Meta == nil {
		return zktypes.ErrMissingCustomData
	}
	tx.Meta.CustomSignature = sig
	return nil
}
