package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idea404/aa-dc/chains/zksync/eip712"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
	"github.com/idea404/aa-dc/chains/zksync/zktx"
)

// IdentityKind tells whether a signer reports its own key address or the
// address of a smart account.
type IdentityKind int

const (
	OwnKeyDerived IdentityKind = iota
	AbstractSmartAccount
)

func (k IdentityKind) String() string {
	switch k {
	case OwnKeyDerived:
		return "own-key"
	case AbstractSmartAccount:
		return "smart-account"
	default:
		return fmt.Sprintf("IdentityKind(%d)", int(k))
	}
}

// AccountIdentity is the address a signer acts for.
type AccountIdentity struct {
	Kind    IdentityKind
	Account common.Address
}

func OwnKey() AccountIdentity {
	return AccountIdentity{Kind: OwnKeyDerived}
}

func SmartAccount(addr common.Address) AccountIdentity {
	return AccountIdentity{Kind: AbstractSmartAccount, Account: addr}
}

// SmartAccountSigner signs 0x71 transactions on behalf of an account with a
// signing policy. The keys it holds never appear as the sender.
type SmartAccountSigner struct {
	identity AccountIdentity
	policy   SigningPolicy
}

// NewSingleSigner signs for account with one owner key.
func NewSingleSigner(account common.Address, key *Key) *SmartAccountSigner {
	return &SmartAccountSigner{identity: SmartAccount(account), policy: SinglePolicy{Key: key}}
}

// NewDualSigner signs for a two-owner account; owner1 signs first.
func NewDualSigner(account common.Address, owner1, owner2 *Key) *SmartAccountSigner {
	return &SmartAccountSigner{identity: SmartAccount(account), policy: DualPolicy{First: owner1, Second: owner2}}
}

// NewOwnKeySigner sends 0x71 transactions from the key's own address.
func NewOwnKeySigner(key *Key) *SmartAccountSigner {
	return &SmartAccountSigner{identity: OwnKey(), policy: SinglePolicy{Key: key}}
}

// Address returns the address transactions are sent from.
func (s *SmartAccountSigner) Address() common.Address {
	if s.identity.Kind == AbstractSmartAccount {
		return s.identity.Account
	}
	return s.policy.Signers()[0]
}

func (s *SmartAccountSigner) Identity() AccountIdentity {
	return s.identity
}

func (s *SmartAccountSigner) Policy() SigningPolicy {
	return s.policy
}

// SignTransaction computes the digest of tx, signs it under the policy and
// returns the serialized envelope. The packed signature is attached to tx
// only once serialization succeeded.
func (s *SmartAccountSigner) SignTransaction(tx *zktypes.Transaction) ([]byte, error) {
	if tx.Meta == nil {
		return nil, zktypes.ErrMissingCustomData
	}
	if tx.From != s.Address() {
		return nil, fmt.Errorf("transaction sender %s does not match signer address %s", tx.From.Hex(), s.Address().Hex())
	}

	digest, err := eip712.Digest(tx)
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}
	sig, err := s.policy.Sign(digest)
	if err != nil {
		return nil, err
	}
	signed := tx.Copy()
	if err := AttachSignature(signed, sig); err != nil {
		return nil, err
	}
	raw, err := zktx.Serialize(signed)
	if err != nil {
		return nil, err
	}
	tx.Meta.CustomSignature = signed.Meta.CustomSignature
	return raw, nil
}
