package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/provider"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// Account sends transactions from one address through a provider.
type Account struct {
	signer    *SmartAccountSigner
	provider  provider.Provider
	assembler *Assembler
	logger    *zap.Logger
}

// NewAccount binds a signer to a provider.
func NewAccount(signer *SmartAccountSigner, p provider.Provider, logger *zap.Logger) *Account {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("account", signer.Address().Hex()))
	return &Account{
		signer:    signer,
		provider:  p,
		assembler: NewAssembler(p, logger),
		logger:    logger,
	}
}

// Address returns the sender address
func (a *Account) Address() common.Address {
	return a.signer.Address()
}

// FormattedAddress returns the checksummed sender address
func (a *Account) FormattedAddress() string {
	return a.Address().Hex()
}

func (a *Account) Signer() *SmartAccountSigner {
	return a.signer
}

// Populate builds a transaction from this account without signing it.
func (a *Account) Populate(ctx context.Context, to *common.Address, value *big.Int, data []byte, opts *PopulateOpts) (*zktypes.Transaction, error) {
	return a.assembler.Populate(ctx, zktypes.NewIntent(a.Address(), to, value, data), opts)
}

// SendTransaction populates, signs and broadcasts a transaction.
func (a *Account) SendTransaction(ctx context.Context, to *common.Address, value *big.Int, data []byte, opts *PopulateOpts) (*provider.PendingTransaction, error) {
	tx, err := a.Populate(ctx, to, value, data, opts)
	if err != nil {
		return nil, err
	}
	return a.SendPopulated(ctx, tx)
}

// SendPopulated signs and broadcasts an already populated transaction.
func (a *Account) SendPopulated(ctx context.Context, tx *zktypes.Transaction) (*provider.PendingTransaction, error) {
	raw, err := a.signer.SignTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	pending, err := a.provider.SendRawTransaction(ctx, raw)
	if err != nil {
		a.logger.Info("transaction refused", zap.Uint64("nonce", tx.Nonce), zap.Error(err))
		return nil, err
	}
	a.logger.Info("transaction sent",
		zap.String("tx_hash", pending.Hash.Hex()),
		zap.Uint64("nonce", tx.Nonce))
	return pending, nil
}

// Execute sends a transaction and waits for its receipt.
func (a *Account) Execute(ctx context.Context, to *common.Address, value *big.Int, data []byte, opts *PopulateOpts) (*gethtypes.Receipt, error) {
	pending, err := a.SendTransaction(ctx, to, value, data, opts)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Transfer moves amount of the base token to `to` and waits for inclusion.
func (a *Account) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*gethtypes.Receipt, error) {
	return a.Execute(ctx, &to, amount, nil, nil)
}

// Balance returns the account balance
func (a *Account) Balance(ctx context.Context) (*big.Int, error) {
	return a.provider.GetBalance(ctx, a.Address())
}

// Nonce returns the current nonce for the account
func (a *Account) Nonce(ctx context.Context) (uint64, error) {
	return a.provider.GetTransactionCount(ctx, a.Address())
}
