// Package provider is the network-facing collaborator of the transaction
// flows: nonce, fee and chain queries, gas estimation, broadcast and receipts.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/idea404/aa-dc/chains/zksync/metrics"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// DefaultPollInterval is how often Wait asks for a receipt.
const DefaultPollInterval = 500 * time.Millisecond

// Network describes the chain a provider is connected to.
type Network struct {
	ChainID *big.Int
}

// Provider is everything the assembler and the signers need from the network.
type Provider interface {
	GetTransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	GetNetwork(ctx context.Context) (Network, error)
	EstimateGas(ctx context.Context, tx *zktypes.Transaction) (*big.Int, error)
	SendRawTransaction(ctx context.Context, raw []byte) (*PendingTransaction, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// ReceiptReader fetches receipts by hash and reports ethereum.NotFound for
// transactions that are not included yet.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// PendingTransaction is a broadcast transaction whose receipt can be awaited.
type PendingTransaction struct {
	Hash common.Hash

	receipts     ReceiptReader
	pollInterval time.Duration
	sentAt       time.Time
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewPendingTransaction returns a handle polling receipts every pollInterval.
func NewPendingTransaction(hash common.Hash, receipts ReceiptReader, pollInterval time.Duration) *PendingTransaction {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &PendingTransaction{
		Hash:         hash,
		receipts:     receipts,
		pollInterval: pollInterval,
		sentAt:       time.Now(),
		logger:       zap.NewNop(),
	}
}

// Wait blocks until the transaction is included or ctx is done. There is no
// internal timeout. A reverted transaction returns its receipt together with
// a *ReceiptFailedError.
func (p *PendingTransaction) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.receipts.TransactionReceipt(ctx, p.Hash)
		switch {
		case err == nil:
			success := receipt.Status == gethtypes.ReceiptStatusSuccessful
			p.metrics.ObserveReceipt(success, p.sentAt)
			p.logger.Debug("transaction included",
				zap.String("tx_hash", p.Hash.Hex()),
				zap.Uint64("status", receipt.Status),
				zap.Uint64("gas_used", receipt.GasUsed))
			if !success {
				return receipt, &zktypes.ReceiptFailedError{TxHash: p.Hash}
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// not included yet
		case ctx.Err() != nil:
			return nil, fmt.Errorf("waiting for transaction %s: %w", p.Hash.Hex(), ctx.Err())
		default:
			return nil, &zktypes.TransportError{Op: "eth_getTransactionReceipt", Err: err}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction %s: %w", p.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
