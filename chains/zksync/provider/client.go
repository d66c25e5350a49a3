package provider

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idea404/aa-dc/chains/zksync/metrics"
	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// EthClient is the subset of the go-ethereum client the provider reads through.
type EthClient interface {
	ethereum.BlockNumberReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasPricer
	ethereum.TransactionReader
	ethereum.ChainIDReader
	Client() *rpc.Client
}

var _ Provider = (*Client)(nil)

// Client is a Provider backed by a JSON-RPC endpoint.
type Client struct {
	eth          EthClient
	logger       *zap.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.With(zap.String("module", "provider")) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPollInterval sets how often pending transactions poll for receipts.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// Dial connects to an HTTP or websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	tr := &http.Transport{
		MaxConnsPerHost:     64,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	hc := &http.Client{
		Transport: tr,
		Timeout:   30 * time.Second, // per-request ceiling
	}
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, &zktypes.TransportError{Op: "dial " + url, Err: err}
	}
	return NewClient(ethclient.NewClient(rpcClient), opts...), nil
}

// NewClient wraps an existing go-ethereum client.
func NewClient(eth EthClient, opts ...Option) *Client {
	c := &Client{
		eth:          eth,
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Caller exposes the client for read-only contract bindings.
func (c *Client) Caller() bind.ContractCaller {
	return c.eth
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Client().Close()
}

// GetTransactionCount returns the latest nonce of addr.
func (c *Client) GetTransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := c.eth.NonceAt(ctx, addr, nil)
	if err != nil {
		return 0, &zktypes.TransportError{Op: "eth_getTransactionCount", Err: err}
	}
	return nonce, nil
}

func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &zktypes.TransportError{Op: "eth_gasPrice", Err: err}
	}
	return price, nil
}

func (c *Client) GetNetwork(ctx context.Context) (Network, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return Network{}, &zktypes.TransportError{Op: "eth_chainId", Err: err}
	}
	return Network{ChainID: chainID}, nil
}

func (c *Client) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, &zktypes.TransportError{Op: "eth_getBalance", Err: err}
	}
	return balance, nil
}

// Balances fetches the balances of addrs concurrently.
func (c *Client) Balances(ctx context.Context, addrs []common.Address) (map[common.Address]*big.Int, error) {
	balances := make([]*big.Int, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, addr := range addrs {
		g.Go(func() error {
			b, err := c.GetBalance(gctx, addr)
			if err != nil {
				return err
			}
			balances[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[common.Address]*big.Int, len(addrs))
	for i, addr := range addrs {
		out[addr] = balances[i]
	}
	return out, nil
}

// EstimateGas asks the node for the gas limit of tx, including its custom
// data so that account validation is part of the estimate.
func (c *Client) EstimateGas(ctx context.Context, tx *zktypes.Transaction) (*big.Int, error) {
	var gas hexutil.Big
	if err := c.eth.Client().CallContext(ctx, &gas, "eth_estimateGas", toCallArg(tx)); err != nil {
		return nil, classify("eth_estimateGas", err)
	}
	return gas.ToInt(), nil
}

// SendRawTransaction broadcasts a serialized transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (*PendingTransaction, error) {
	var hash common.Hash
	err := c.eth.Client().CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw))
	c.metrics.ObserveBroadcast(err)
	if err != nil {
		classified := classify("eth_sendRawTransaction", err)
		c.metrics.ObserveRejection(rejectionClass(classified))
		c.logger.Debug("broadcast failed", zap.Error(classified))
		return nil, classified
	}
	c.logger.Debug("broadcast transaction", zap.String("tx_hash", hash.Hex()))

	pending := NewPendingTransaction(hash, c.eth, c.pollInterval)
	pending.logger = c.logger
	pending.metrics = c.metrics
	return pending, nil
}

// AdvanceBlocks mines n empty blocks on a development node and returns the
// resulting block number.
func (c *Client) AdvanceBlocks(ctx context.Context, n int) (uint64, error) {
	for i := 0; i < n; i++ {
		if err := c.eth.Client().CallContext(ctx, nil, "evm_mine"); err != nil {
			return 0, &zktypes.TransportError{Op: "evm_mine", Err: err}
		}
	}
	number, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, &zktypes.TransportError{Op: "eth_blockNumber", Err: err}
	}
	return number, nil
}

type paymasterArg struct {
	Paymaster      common.Address `json:"paymaster"`
	PaymasterInput []int          `json:"paymasterInput"`
}

type eip712MetaArg struct {
	GasPerPubdata   *hexutil.Big  `json:"gasPerPubdata"`
	FactoryDeps     [][]int       `json:"factoryDeps,omitempty"`
	CustomSignature hexutil.Bytes `json:"customSignature,omitempty"`
	PaymasterParams *paymasterArg `json:"paymasterParams,omitempty"`
}

type callArg struct {
	From       common.Address  `json:"from"`
	To         *common.Address `json:"to,omitempty"`
	Value      *hexutil.Big    `json:"value,omitempty"`
	Data       hexutil.Bytes   `json:"data,omitempty"`
	Type       hexutil.Uint64  `json:"type"`
	Eip712Meta *eip712MetaArg  `json:"eip712Meta"`
}

// toCallArg renders byte arrays of the custom data as number arrays, the
// shape zkSync nodes accept.
func toCallArg(tx *zktypes.Transaction) callArg {
	arg := callArg{
		From: tx.From,
		To:   tx.To,
		Data: tx.Data,
		Type: hexutil.Uint64(zktypes.EIP712TxType),
		Eip712Meta: &eip712MetaArg{
			GasPerPubdata:   (*hexutil.Big)(tx.GasPerPubdataLimit()),
			CustomSignature: tx.CustomSignature(),
		},
	}
	if tx.Value != nil {
		arg.Value = (*hexutil.Big)(tx.Value)
	}
	for _, dep := range tx.FactoryDeps() {
		arg.Eip712Meta.FactoryDeps = append(arg.Eip712Meta.FactoryDeps, byteArray(dep))
	}
	if pm := tx.Paymaster(); pm != nil {
		arg.Eip712Meta.PaymasterParams = &paymasterArg{
			Paymaster:      pm.Paymaster,
			PaymasterInput: byteArray(pm.PaymasterInput),
		}
	}
	return arg
}

func byteArray(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

