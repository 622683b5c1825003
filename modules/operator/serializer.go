package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"casa-relay/lib/logger"
	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Broadcast struct {
	Hash  common.Hash
	Nonce uint64
	Tx    *types.Transaction
}

// how long the node may report a pending count below our own before the
// transactions we broadcast are taken as dropped from its pool
const defaultLeadWindow = 30 * time.Second

// Serializer is the only place that allocates operator nonces. Each chain has
// its own exclusive section: at most one read-nonce, build, sign, broadcast
// sequence runs per chain at any time. Chains never wait on each other.
type Serializer struct {
	account *Account
	log     *slog.Logger

	leadWindow time.Duration

	mu       sync.Mutex
	sections map[chains.ChainID]chan struct{}
	leads    map[chains.ChainID]*lead
}

// lead is the operator's own view of a chain's next nonce.
type lead struct {
	next uint64
	// when the node was first seen reporting less than next, zero if it is
	// caught up
	behindSince time.Time
}

func NewSerializer(account *Account, log *slog.Logger) *Serializer {
	return &Serializer{
		account:    account,
		log:        logger.Or(log, "operator"),
		leadWindow: defaultLeadWindow,
		sections:   make(map[chains.ChainID]chan struct{}),
		leads:      make(map[chains.ChainID]*lead),
	}
}

// SetLeadWindow changes how long a lagging pending count is outranked by the
// local count.
func (s *Serializer) SetLeadWindow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadWindow = d
}

func (s *Serializer) Account() *Account {
	return s.account
}

func (s *Serializer) section(id chains.ChainID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		sec = make(chan struct{}, 1)
		s.sections[id] = sec
	}
	return sec
}

// WithExclusiveAccess runs fn while holding chain id's exclusive section.
// Waiting for the section gives up when ctx ends.
func (s *Serializer) WithExclusiveAccess(ctx context.Context, id chains.ChainID, fn func() error) error {
	sec := s.section(id)
	select {
	case sec <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for operator on chain %s: %w", id, ctx.Err())
	}
	defer func() { <-sec }()

	return fn()
}

// nonceFor picks the nonce for the next broadcast on id given the node's
// pending count. The local count after our last accepted broadcast wins while
// the node has been behind it for less than leadWindow. After that the node's
// count is used again, which refills the gap a dropped transaction left.
func (s *Serializer) nonceFor(id chains.ChainID, pending uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[id]
	if !ok {
		return pending
	}
	if pending >= l.next {
		l.behindSince = time.Time{}
		return pending
	}

	now := time.Now()
	if l.behindSince.IsZero() {
		l.behindSince = now
	}
	if now.Sub(l.behindSince) < s.leadWindow {
		return l.next
	}

	s.log.Warn("node never caught up with broadcast nonces, using its count",
		"chain", id.String(), "local", l.next, "pending", pending, "behind_for", now.Sub(l.behindSince).String())
	delete(s.leads, id)
	return pending
}

func (s *Serializer) accepted(id chains.ChainID, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		l = &lead{}
		s.leads[id] = l
	}
	l.next = nonce + 1
}

func (s *Serializer) forget(id chains.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leads, id)
}

// Submit sends a transaction from the operator account to `to` on chain id.
// The nonce is normally the node's pending count. A node briefly lagging behind
// our own accepted broadcasts cannot make us reuse a nonce (see nonceFor).
// A broadcast that fails leaves the counter where it was.
func (s *Serializer) Submit(
	ctx context.Context,
	id chains.ChainID,
	gw gateway.Gateway,
	to common.Address,
	data []byte,
	value *big.Int,
) (Broadcast, error) {
	var out Broadcast
	err := s.WithExclusiveAccess(ctx, id, func() error {
		pending, err := gw.TransactionCount(ctx, s.account.Address())
		if err != nil {
			return err
		}
		nonce := s.nonceFor(id, pending)

		tx, err := gw.BuildTransaction(ctx, s.account.Address(), nonce, to, data, value)
		if err != nil {
			return err
		}
		signed, err := s.account.Sign(tx, gw.ChainID())
		if err != nil {
			return err
		}
		hash, err := gw.SendRawTransaction(ctx, signed)
		if err != nil {
			if errors.Is(err, relayerr.ErrBroadcastRejected) {
				// the node disagrees with our view; re-read from chain next time
				s.forget(id)
			}
			return err
		}

		s.accepted(id, nonce)
		out = Broadcast{Hash: hash, Nonce: nonce, Tx: signed}
		s.log.Info("broadcast", "chain", id.String(), "nonce", nonce, "tx", hash.Hex(), "to", to.Hex())
		return nil
	})
	return out, err
}
