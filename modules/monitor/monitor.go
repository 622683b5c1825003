package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"casa-relay/lib/logger"
	agg "casa-relay/modules/aggregate"
	"casa-relay/modules/chains"
	"casa-relay/modules/relay"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
)

// ===== types =====

type Balance struct {
	Chain chains.ChainID
	Wei   *big.Int
	Low   bool
	Err   error
}

// balanceMonitor watches the operator's native balance on every configured
// chain. The operator pays gas for every relay, so an empty account means
// every request on that chain starts failing with a rejected broadcast.
type balanceMonitor struct {
	gateways  relay.Gateways
	operator  common.Address
	schedule  string
	threshold *big.Int
	log       *slog.Logger

	cron *cron.Cron
	stop chan struct{}
	once sync.Once
}

type BalanceMonitor = *balanceMonitor

// ===== interface assertions =====

var _ agg.Plugin = &balanceMonitor{}

// ===== constructor =====

// New checks on schedule (a cron spec or descriptor such as "@every 10m")
// and warns when a balance drops below thresholdWei.
func New(
	gateways relay.Gateways,
	operator common.Address,
	schedule string,
	thresholdWei string,
	log *slog.Logger,
) (BalanceMonitor, error) {
	threshold, err := uint256.FromDecimal(thresholdWei)
	if err != nil {
		return nil, fmt.Errorf("low balance threshold %q: %w", thresholdWei, err)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("balance check schedule %q: %w", schedule, err)
	}

	return &balanceMonitor{
		gateways:  gateways,
		operator:  operator,
		schedule:  schedule,
		threshold: threshold.ToBig(),
		log:       logger.Or(log, "monitor"),
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		stop:      make(chan struct{}),
	}, nil
}

// ===== implementing plugin interface =====

func (m *balanceMonitor) Init() error {
	return nil
}

// Check reads the operator balance on every chain once. Failures are logged
// and reported per chain, never returned.
func (m *balanceMonitor) Check(ctx context.Context) []Balance {
	ids := m.gateways.Registry().IDs()
	out := make([]Balance, 0, len(ids))

	for _, id := range ids {
		b := Balance{Chain: id}
		gw, err := m.gateways.Get(ctx, id)
		if err == nil {
			b.Wei, err = gw.BalanceAt(ctx, m.operator)
		}

		switch {
		case err != nil:
			b.Err = err
			m.log.Error("balance check failed", "chain", id.String(), "operator", m.operator.Hex(), "err", err)
		case b.Wei.Cmp(m.threshold) < 0:
			b.Low = true
			m.log.Warn("operator balance low", "chain", id.String(), "operator", m.operator.Hex(), "wei", b.Wei.String(), "threshold", m.threshold.String())
		default:
			m.log.Info("operator balance", "chain", id.String(), "wei", b.Wei.String())
		}
		out = append(out, b)
	}
	return out
}

func (m *balanceMonitor) Start() *promise.Promise[any] {
	return promise.New(func(resolve func(any), reject func(error)) {
		// create a ctx that cancels when the stop chan is closed
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-m.stop
			cancel()
		}()

		// run once immediately
		go m.Check(ctx)

		_, err := m.cron.AddFunc(m.schedule, func() {
			select {
			case <-m.stop:
				return
			default:
				m.Check(ctx)
			}
		})
		if err != nil {
			reject(err)
			return
		}
		m.cron.Start()
		resolve(nil)
	})
}

func (m *balanceMonitor) Stop() error {
	m.once.Do(func() {
		close(m.stop)
	})
	<-m.cron.Stop().Done()
	return nil
}
