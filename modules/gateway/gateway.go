package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"casa-relay/lib/logger"
	"casa-relay/lib/relayerr"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Gateway is the per-chain handle every relay component talks to.
type Gateway interface {
	ChainID() *big.Int
	// TransactionCount includes transactions still sitting in the node's pool.
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	Call(ctx context.Context, to common.Address, calldata []byte) ([]byte, error)
	BuildTransaction(ctx context.Context, from common.Address, nonce uint64, to common.Address, data []byte, value *big.Int) (*types.Transaction, error)
	SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	Close()
}

// backend is the part of *ethclient.Client the gateway uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// gas estimates get this much headroom, in percent
const gasHeadroom = 20

type ethGateway struct {
	chainID      *big.Int
	client       backend
	pollInterval time.Duration
	log          *slog.Logger
}

var _ Gateway = &ethGateway{}

func newEthGateway(chainID *big.Int, client backend, pollInterval time.Duration, log *slog.Logger) *ethGateway {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &ethGateway{
		chainID:      chainID,
		client:       client,
		pollInterval: pollInterval,
		log:          logger.Or(log, "gateway").With("chain", chainID.String()),
	}
}

func (g *ethGateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}

func (g *ethGateway) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := g.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, unavailable("transaction count", err)
	}
	return n, nil
}

func (g *ethGateway) Call(ctx context.Context, to common.Address, calldata []byte) ([]byte, error) {
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return nil, unavailable("eth_call", err)
	}
	return out, nil
}

func (g *ethGateway) BuildTransaction(
	ctx context.Context,
	from common.Address,
	nonce uint64,
	to common.Address,
	data []byte,
	value *big.Int,
) (*types.Transaction, error) {
	if value == nil {
		value = new(big.Int)
	}

	gas, err := g.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data, Value: value})
	if err != nil {
		return nil, classify("estimate gas", err, relayerr.ErrBroadcastRejected)
	}
	gas += gas * gasHeadroom / 100

	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, unavailable("latest header", err)
	}

	if head.BaseFee == nil {
		price, err := g.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, unavailable("gas price", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		}), nil
	}

	tip, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, unavailable("gas tip", err)
	}
	// leaves room for the base fee to double before the tx is priced out
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

func (g *ethGateway) SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classify("send raw transaction", err, relayerr.ErrBroadcastRejected)
	}
	return signed.Hash(), nil
}

// WaitForReceipt polls until the receipt shows up or ctx ends. Lookup errors
// other than "not found" are treated as transient, same as bind.WaitMined.
func (g *ethGateway) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			g.log.Debug("receipt lookup failed", "tx", hash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w: %w", hash.Hex(), relayerr.ErrConfirmationTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *ethGateway) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	b, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, unavailable("balance", err)
	}
	return b, nil
}

func (g *ethGateway) Close() {
	g.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, relayerr.ErrRpcUnavailable, err)
}

// classify tells node-side rejections (a JSON-RPC error object in the reply)
// apart from transport failures.
func classify(op string, err error, rejected error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w: %w", op, rejected, err)
	}
	return unavailable(op, err)
}
