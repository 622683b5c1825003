package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"casa-relay/lib/logger"
	"casa-relay/lib/relayerr"
	"casa-relay/lib/utils"
	a "casa-relay/modules/aggregate"
	"casa-relay/modules/chains"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Dialer func(ctx context.Context, chain chains.Chain) (Gateway, error)

// Set hands out one Gateway per configured chain. Connections are dialled on
// first use and reused afterwards; ethclient is safe for concurrent use.
// Dialling happens under the chain's own slot, so a slow endpoint only holds
// up requests for its chain.
type Set struct {
	registry *chains.Registry
	dial     Dialer
	log      *slog.Logger

	// fixed at construction, one per registry chain
	slots map[chains.ChainID]*slot

	mu     sync.Mutex
	closed bool
}

type slot struct {
	dialing chan struct{}
	// guarded by Set.mu
	gw Gateway
}

var _ a.Plugin = &Set{}

func NewSet(registry *chains.Registry, pollInterval time.Duration, log *slog.Logger) *Set {
	log = logger.Or(log, "gateway")
	return NewSetWithDialer(registry, EthDialer(pollInterval, log), log)
}

func NewSetWithDialer(registry *chains.Registry, dial Dialer, log *slog.Logger) *Set {
	return &Set{
		registry: registry,
		dial:     dial,
		log:      logger.Or(log, "gateway"),
		slots:    newSlots(registry),
	}
}

func newSlots(registry *chains.Registry) map[chains.ChainID]*slot {
	slots := make(map[chains.ChainID]*slot)
	for _, id := range registry.IDs() {
		slots[id] = &slot{dialing: make(chan struct{}, 1)}
	}
	return slots
}

// EthDialer connects over JSON-RPC and checks that the endpoint serves the
// chain it is configured for.
func EthDialer(pollInterval time.Duration, log *slog.Logger) Dialer {
	return func(ctx context.Context, chain chains.Chain) (Gateway, error) {
		client, err := ethclient.DialContext(ctx, chain.RPCURL)
		if err != nil {
			return nil, unavailable("dial "+chain.RPCURL, err)
		}
		remote, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, unavailable("chain id", err)
		}
		if remote.Cmp(chain.ID.Big()) != 0 {
			client.Close()
			return nil, fmt.Errorf("%w: %s serves chain %s, expected %s", relayerr.ErrRpcUnavailable, chain.RPCURL, remote, chain.ID)
		}
		return newEthGateway(chain.ID.Big(), client, pollInterval, log), nil
	}
}

func (s *Set) Registry() *chains.Registry {
	return s.registry
}

// Get returns the gateway for id. A failed dial is not cached so the next
// request tries again. Concurrent first requests for one chain share a dial.
func (s *Set) Get(ctx context.Context, id chains.ChainID) (Gateway, error) {
	chain, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	sl := s.slots[id]

	if gw, err := s.cached(sl); gw != nil || err != nil {
		return gw, err
	}

	select {
	case sl.dialing <- struct{}{}:
	case <-ctx.Done():
		return nil, unavailable("dial "+chain.RPCURL, ctx.Err())
	}
	defer func() { <-sl.dialing }()

	if gw, err := s.cached(sl); gw != nil || err != nil {
		return gw, err
	}

	gw, err := s.dial(ctx, chain)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		gw.Close()
		return nil, errClosed
	}
	sl.gw = gw
	s.log.Debug("connected", "chain", id.String(), "rpc", chain.RPCURL)
	return gw, nil
}

var errClosed = fmt.Errorf("%w: gateways closed", relayerr.ErrRpcUnavailable)

func (s *Set) cached(sl *slot) (Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	return sl.gw, nil
}

func (s *Set) Init() error {
	return nil
}

func (s *Set) Start() *promise.Promise[any] {
	return utils.PromiseResolve[any](nil)
}

// Stop closes every connection. A dial still in flight closes its own
// connection when it finishes.
func (s *Set) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, sl := range s.slots {
		if sl.gw != nil {
			sl.gw.Close()
			sl.gw = nil
		}
	}
	return nil
}
