package wallet

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/provider"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// PopulateOpts overrides values the assembler would otherwise query.
type PopulateOpts struct {
	Nonce           *uint64
	GasLimit        *big.Int
	GasPerPubdata   *big.Int
	FactoryDeps     [][]byte
	PaymasterParams *zktypes.PaymasterParams
}

// Assembler completes transaction intents from network state.
type Assembler struct {
	provider provider.Provider
	logger   *zap.Logger
}

func NewAssembler(p provider.Provider, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{provider: p, logger: logger.With(zap.String("module", "assembler"))}
}

// Populate fills nonce, gas price, chain id and gas limit, in that order,
// and initializes the custom data. The first provider error is returned as is.
func (a *Assembler) Populate(ctx context.Context, intent zktypes.TransactionIntent, opts *PopulateOpts) (*zktypes.Transaction, error) {
	if opts == nil {
		opts = &PopulateOpts{}
	}
	if intent.Type == 0 {
		intent.Type = zktypes.EIP712TxType
	}

	tx := &zktypes.Transaction{TransactionIntent: intent, Meta: zktypes.NewMeta()}
	if opts.GasPerPubdata != nil {
		tx.Meta.GasPerPubdata = opts.GasPerPubdata
	}
	tx.Meta.FactoryDeps = opts.FactoryDeps
	tx.Meta.PaymasterParams = opts.PaymasterParams

	if opts.Nonce != nil {
		tx.Nonce = *opts.Nonce
	} else {
		nonce, err := a.provider.GetTransactionCount(ctx, intent.From)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		tx.Nonce = nonce
	}

	gasPrice, err := a.provider.GetGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	tx.GasPrice = gasPrice

	network, err := a.provider.GetNetwork(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get network: %w", err)
	}
	tx.ChainID = network.ChainID

	if opts.GasLimit != nil {
		tx.GasLimit = opts.GasLimit
	} else {
		gasLimit, err := a.provider.EstimateGas(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		tx.GasLimit = gasLimit
	}

	a.logger.Debug("populated transaction",
		zap.String("from", tx.From.Hex()),
		zap.Uint64("nonce", tx.Nonce),
		zap.Stringer("gas_price", tx.GasPrice),
		zap.Stringer("gas_limit", tx.GasLimit),
		zap.Stringer("chain_id", tx.ChainID))
	return tx, nil
}
