package devnode

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	intrinsicGas   = 21_000
	validationGas  = 250_000
	gasPerDataByte = 16
	gasPerDepByte  = 4
)

type ethAPI struct {
	n *Node
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.n.ChainID())
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(api.n.GasPrice())
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.n.BlockNumber())
}

func (api *ethAPI) GetTransactionCount(addr common.Address, block *string) hexutil.Uint64 {
	return hexutil.Uint64(api.n.Nonce(addr))
}

func (api *ethAPI) GetBalance(addr common.Address, block *string) *hexutil.Big {
	return (*hexutil.Big)(api.n.Balance(addr))
}

func (api *ethAPI) GetCode(addr common.Address, block *string) hexutil.Bytes {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return common.CopyBytes(api.n.st.Code(addr))
}

type eip712Meta struct {
	FactoryDeps [][]int `json:"factoryDeps"`
}

type estimateArgs struct {
	From       common.Address  `json:"from"`
	To         *common.Address `json:"to"`
	Value      *hexutil.Big    `json:"value"`
	Data       hexutil.Bytes   `json:"data"`
	Eip712Meta *eip712Meta     `json:"eip712Meta"`
}

// EstimateGas charges a flat validation overhead plus calldata and factory
// dependency bytes. It does not execute anything.
func (api *ethAPI) EstimateGas(args estimateArgs) (hexutil.Uint64, error) {
	if args.From == (common.Address{}) {
		return 0, errors.New("from is required")
	}
	gas := uint64(intrinsicGas+validationGas) + gasPerDataByte*uint64(len(args.Data))
	if args.Eip712Meta != nil {
		for _, dep := range args.Eip712Meta.FactoryDeps {
			gas += gasPerDepByte * uint64(len(dep))
		}
	}
	return hexutil.Uint64(gas), nil
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	return api.n.submit(input)
}

// GetTransactionReceipt returns nil for unknown hashes.
func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *gethtypes.Receipt {
	return api.n.receipt(hash)
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

func (api *ethAPI) Call(ctx context.Context, args callArgs, block *string) (hexutil.Bytes, error) {
	if args.To == nil {
		return nil, errors.New("call without target")
	}
	msg := Msg{To: *args.To, Data: args.Input, Value: new(big.Int)}
	if len(msg.Data) == 0 {
		msg.Data = args.Data
	}
	if args.From != nil {
		msg.From = *args.From
	}
	if args.Value != nil {
		msg.Value = args.Value.ToInt()
	}

	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return api.n.st.dispatch(msg)
}

type evmAPI struct {
	n *Node
}

// Mine seals an empty block.
func (api *evmAPI) Mine() {
	api.n.Mine()
}
