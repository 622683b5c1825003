package chains

import (
	"fmt"
	"math/big"
	"slices"

	"casa-relay/lib/relayerr"
	"casa-relay/lib/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/moznion/go-optional"
)

type ChainID uint64

func (id ChainID) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

func (id ChainID) String() string {
	return fmt.Sprint(uint64(id))
}

type Chain struct {
	ID       ChainID
	Name     string
	RPCURL   string
	Factory  common.Address
	FeeToken optional.Option[common.Address]
}

type FeeTarget struct {
	Chain  Chain
	Amount string
}

// Registry is built once at startup and never mutated afterwards, so it is
// safe to share between goroutines without locking.
type Registry struct {
	chains map[ChainID]Chain
	fees   []FeeTarget
}

func NewRegistry(factory string, chains []ChainConfig, fees []FeeChainConfig) (*Registry, error) {
	defaultFactory, err := parseAddress("factory", factory, true)
	if err != nil {
		return nil, err
	}

	r := &Registry{chains: make(map[ChainID]Chain, len(chains))}
	for _, c := range chains {
		id := ChainID(c.ChainId)
		if id == 0 {
			return nil, fmt.Errorf("chain config: chain id must be set")
		}
		if _, dup := r.chains[id]; dup {
			return nil, fmt.Errorf("chain %d: configured twice", id)
		}
		if c.RpcUrl == "" {
			return nil, fmt.Errorf("chain %d: rpc url must be set", id)
		}

		chain := Chain{ID: id, Name: c.Name, RPCURL: c.RpcUrl, Factory: defaultFactory}
		if c.Factory != "" {
			if chain.Factory, err = parseAddress(fmt.Sprintf("chain %d factory", id), c.Factory, true); err != nil {
				return nil, err
			}
		}
		if chain.Factory == (common.Address{}) {
			return nil, fmt.Errorf("chain %d: no wallet factory configured", id)
		}
		if c.FeeToken != "" {
			token, err := parseAddress(fmt.Sprintf("chain %d fee token", id), c.FeeToken, false)
			if err != nil {
				return nil, err
			}
			chain.FeeToken = optional.Some(token)
		}
		r.chains[id] = chain
	}

	for _, f := range fees {
		chain, ok := r.chains[ChainID(f.ChainId)]
		if !ok {
			return nil, fmt.Errorf("fee chain %d: %w", f.ChainId, relayerr.ErrUnknownChain)
		}
		if chain.FeeToken.IsNone() {
			return nil, fmt.Errorf("fee chain %d: no fee token configured", f.ChainId)
		}
		if err := units.Validate(f.Amount); err != nil {
			return nil, fmt.Errorf("fee chain %d: %w", f.ChainId, err)
		}
		r.fees = append(r.fees, FeeTarget{Chain: chain, Amount: f.Amount})
	}

	return r, nil
}

func (r *Registry) Lookup(id ChainID) (Chain, error) {
	c, ok := r.chains[id]
	if !ok {
		return Chain{}, fmt.Errorf("chain %d: %w", id, relayerr.ErrUnknownChain)
	}
	return c, nil
}

func (r *Registry) IDs() []ChainID {
	ids := make([]ChainID, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) FeeTargets() []FeeTarget {
	return slices.Clone(r.fees)
}

func parseAddress(what, s string, allowEmpty bool) (common.Address, error) {
	if s == "" {
		if allowEmpty {
			return common.Address{}, nil
		}
		return common.Address{}, fmt.Errorf("%s: %w: empty address", what, relayerr.ErrInvalidInput)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %w: %q is not an address", what, relayerr.ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}
