package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"casa-relay/lib/contracts"
	"casa-relay/lib/logger"
	"casa-relay/lib/relayerr"
	"casa-relay/lib/units"
	"casa-relay/lib/utils"
	a "casa-relay/modules/aggregate"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"
	"casa-relay/modules/relay"

	"github.com/JustinKnueppel/go-result"
	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ===== types =====

// Collector charges the owner a fixed fee on every configured fee chain once
// their relayed transaction has confirmed. It is best effort: a failed
// collection is logged once and dropped, never retried and never reported
// back to the caller of the original relay.
type Collector struct {
	pipeline *relay.Pipeline
	gateways relay.Gateways
	timeout  time.Duration
	log      *slog.Logger
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// guards wg.Add against Stop
	mu      sync.Mutex
	stopped bool
}

// ===== interface assertions =====

var _ a.Plugin = &Collector{}
var _ relay.Observer = &Collector{}

// ===== constructor =====

func New(pipeline *relay.Pipeline, gateways relay.Gateways, confirmationTimeout time.Duration, log *slog.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		pipeline: pipeline,
		gateways: gateways,
		timeout:  confirmationTimeout,
		log:      logger.Or(log, "fees"),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

// ===== implementing the a.Plugin interface =====

func (c *Collector) Init() error {
	c.pipeline.Observe(c)
	return nil
}

func (c *Collector) Start() *promise.Promise[any] {
	return utils.PromiseResolve[any](nil)
}

// Stop abandons the waits of in-flight collections and lets them finish.
// Collections scheduled after Stop fail straight away.
func (c *Collector) Stop() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.Wait()
	return nil
}

// ===== relay.Observer =====

// OnSubmitted schedules one collection per fee target. Fee transfers are
// sent with Pipeline.Submit, which does not notify observers, so they never
// lead to further fees.
func (c *Collector) OnSubmitted(sub relay.Submission) {
	for _, target := range c.gateways.Registry().FeeTargets() {
		c.Collect(sub.Hash, sub.Request.ChainID, target, sub.Request.Owner)
	}
}

// ===== collection =====

// Collect runs one fee collection in the background. Every outcome,
// including a panic, ends in exactly one log record.
func (c *Collector) Collect(txHash common.Hash, source chains.ChainID, target chains.FeeTarget, owner common.Address) {
	c.metrics.IncrementScheduled()
	attrs := []any{
		"source_chain", source.String(),
		"source_tx", txHash.Hex(),
		"fee_chain", target.Chain.ID.String(),
		"amount", target.Amount,
		"owner", owner.Hex(),
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.report(result.Err[*common.Hash](ErrStopped), attrs)
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	task := utils.Go(func() (common.Hash, error) {
		res := c.collect(c.ctx, txHash, source, target, owner)
		if res.IsErr() {
			return common.Hash{}, res.UnwrapErr()
		}
		return res.Unwrap(), nil
	})

	go func() {
		defer c.wg.Done()
		hash, err := task.Await(context.Background())
		c.report(resultWrap(hash, err), attrs)
	}()
}

var ErrStopped = errors.New("fee collector stopped")

func (c *Collector) report(res result.Result[*common.Hash], attrs []any) {
	result.MapOrElse(
		res,
		func(err error) any {
			c.metrics.RecordFailure(err)
			attrs = append(attrs, "kind", relayerr.Kind(err), "err", err)
			var panicErr *utils.PanicError
			if errors.As(err, &panicErr) {
				attrs = append(attrs, "stack", string(panicErr.Stack))
			}
			c.log.Error("fee collection failed", attrs...)
			return nil
		},
		func(hash *common.Hash) any {
			c.metrics.IncrementCollected()
			attrs = append(attrs, "fee_tx", hash.Hex())
			c.log.Info("fee submitted", attrs...)
			return nil
		},
	)
}

// Wait blocks until every scheduled collection has logged its outcome.
func (c *Collector) Wait() {
	c.wg.Wait()
}

func (c *Collector) collect(
	ctx context.Context,
	txHash common.Hash,
	source chains.ChainID,
	target chains.FeeTarget,
	owner common.Address,
) result.Result[common.Hash] {
	return result.AndThen(
		c.confirm(ctx, source, txHash),
		func(*types.Receipt) result.Result[common.Hash] {
			return result.AndThen(
				c.transferCalldata(ctx, target),
				func(calldata []byte) result.Result[common.Hash] {
					token, _ := target.Chain.FeeToken.Take()
					sub, err := c.pipeline.Submit(ctx, relay.Request{
						ChainID: target.Chain.ID,
						Owner:   owner,
						To:      token,
						Value:   uint256.NewInt(0),
						Data:    calldata,
					})
					return resultWrap(sub.Hash, err)
				},
			)
		},
	)
}

// confirm waits for txHash on source, bounded by the confirmation timeout.
// A reverted transaction executed nothing, so it is not charged.
func (c *Collector) confirm(ctx context.Context, source chains.ChainID, txHash common.Hash) result.Result[*types.Receipt] {
	gw, err := c.gateways.Get(ctx, source)
	if err != nil {
		return result.Err[*types.Receipt](err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := gw.WaitForReceipt(waitCtx, txHash)
	if err != nil {
		return result.Err[*types.Receipt](err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result.Err[*types.Receipt](fmt.Errorf("%w: %s on chain %s", relayerr.ErrTransactionReverted, txHash.Hex(), source))
	}
	return result.Ok(receipt)
}

// transferCalldata encodes transfer(operator, amount) with amount scaled by
// the fee token's on-chain decimals.
func (c *Collector) transferCalldata(ctx context.Context, target chains.FeeTarget) result.Result[[]byte] {
	token, err := target.Chain.FeeToken.Take()
	if err != nil {
		return result.Err[[]byte](fmt.Errorf("fee chain %s: no fee token: %w", target.Chain.ID, err))
	}

	gw, err := c.gateways.Get(ctx, target.Chain.ID)
	if err != nil {
		return result.Err[[]byte](err)
	}

	return result.AndThen(
		c.decimals(ctx, gw, token),
		func(decimals uint8) result.Result[[]byte] {
			return result.AndThen(
				resultWrap(units.ToBaseUnits(target.Amount, decimals)),
				func(amount *big.Int) result.Result[[]byte] {
					return resultWrap(contracts.PackTransfer(c.pipeline.Operator(), amount))
				},
			)
		},
	)
}

func (c *Collector) decimals(ctx context.Context, gw gateway.Gateway, token common.Address) result.Result[uint8] {
	calldata, err := contracts.PackDecimals()
	if err != nil {
		return result.Err[uint8](err)
	}
	out, err := gw.Call(ctx, token, calldata)
	if err != nil {
		return result.Err[uint8](err)
	}
	d, err := contracts.UnpackDecimals(out)
	if err != nil {
		return result.Err[uint8](fmt.Errorf("%w: decimals of %s: %w", relayerr.ErrRpcUnavailable, token.Hex(), err))
	}
	return result.Ok(d)
}

func resultWrap[T any](res T, err error) result.Result[T] {
	if err != nil {
		return result.Err[T](err)
	}
	return result.Ok(res)
}
