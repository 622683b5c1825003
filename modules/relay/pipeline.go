package relay

import (
	"context"
	"log/slog"
	"sync"

	"casa-relay/lib/logger"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"
	"casa-relay/modules/operator"
	"casa-relay/modules/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// Gateways is satisfied by *gateway.Set.
type Gateways interface {
	Registry() *chains.Registry
	Get(ctx context.Context, id chains.ChainID) (gateway.Gateway, error)
}

type Submission struct {
	Request Request
	Wallet  wallet.SmartWallet
	Kind    wallet.CallKind
	Hash    common.Hash
	Nonce   uint64
}

// Observer is told about every user-facing submission after Relay returned
// its hash. OnSubmitted must not block.
type Observer interface {
	OnSubmitted(Submission)
}

type Pipeline struct {
	gateways   Gateways
	resolver   *wallet.Resolver
	builder    *wallet.Builder
	serializer *operator.Serializer
	metrics    *Metrics
	log        *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

func New(gateways Gateways, serializer *operator.Serializer, log *slog.Logger) *Pipeline {
	return &Pipeline{
		gateways:   gateways,
		resolver:   wallet.NewResolver(),
		builder:    wallet.NewBuilder(),
		serializer: serializer,
		metrics:    NewMetrics(),
		log:        logger.Or(log, "relay"),
	}
}

func (p *Pipeline) Observe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

func (p *Pipeline) Operator() common.Address {
	return p.serializer.Account().Address()
}

func (p *Pipeline) Registry() *chains.Registry {
	return p.gateways.Registry()
}

// Relay submits req and returns the transaction hash as soon as the node
// accepted it. Observers hear about the submission afterwards.
func (p *Pipeline) Relay(ctx context.Context, req Request) (common.Hash, error) {
	p.metrics.IncrementRequest()
	sub, err := p.Submit(ctx, req)
	if err != nil {
		p.metrics.RecordFailure(err)
		return common.Hash{}, err
	}
	p.metrics.RecordSubmitted(sub.Kind == wallet.CreateAndCall)

	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()
	for _, o := range observers {
		o.OnSubmitted(sub)
	}
	return sub.Hash, nil
}

// Submit runs resolve, build, then the serialized sign and broadcast.
// Nothing is kept between calls; a failed call can simply be retried.
// Unlike Relay it neither notifies observers nor counts towards Metrics.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Submission, error) {
	if err := req.Validate(); err != nil {
		return Submission{}, err
	}
	chain, err := p.gateways.Registry().Lookup(req.ChainID)
	if err != nil {
		return Submission{}, err
	}
	gw, err := p.gateways.Get(ctx, req.ChainID)
	if err != nil {
		return Submission{}, err
	}

	w, err := p.resolver.Resolve(ctx, chain, gw, req.Owner)
	if err != nil {
		return Submission{}, err
	}

	prepared, err := p.builder.Build(ctx, chain, gw, w, req.To, req.BigValue(), req.Data)
	if err != nil {
		return Submission{}, err
	}

	b, err := p.serializer.Submit(ctx, req.ChainID, gw, prepared.Target, prepared.Calldata, nil)
	if err != nil {
		return Submission{}, err
	}

	p.log.Debug("relayed",
		"chain", req.ChainID.String(),
		"owner", req.Owner.Hex(),
		"wallet", w.Address.Hex(),
		"kind", prepared.Kind.String(),
		"envelope_nonce", prepared.Envelope.Nonce.String(),
		"tx", b.Hash.Hex(),
	)

	return Submission{
		Request: req,
		Wallet:  w,
		Kind:    prepared.Kind,
		Hash:    b.Hash,
		Nonce:   b.Nonce,
	}, nil
}
