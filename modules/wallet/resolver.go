package wallet

import (
	"context"
	"fmt"

	"casa-relay/lib/contracts"
	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"

	"github.com/ethereum/go-ethereum/common"
)

// SmartWallet is derived per request and never cached: another relay
// request may deploy it at any time.
type SmartWallet struct {
	Owner    common.Address
	Index    uint64
	Deployed bool
	// Address is the deterministic wallet address, valid before deployment.
	Address common.Address
}

type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve asks the chain's factory for owner's wallet. It only reads.
func (r *Resolver) Resolve(ctx context.Context, chain chains.Chain, gw gateway.Gateway, owner common.Address) (SmartWallet, error) {
	calldata, err := contracts.PackGetWallet(owner)
	if err != nil {
		return SmartWallet{}, fmt.Errorf("%w: %w", relayerr.ErrInvalidInput, err)
	}

	out, err := gw.Call(ctx, chain.Factory, calldata)
	if err != nil {
		return SmartWallet{}, fmt.Errorf("resolve wallet for %s: %w", owner.Hex(), err)
	}

	deployed, addr, err := contracts.UnpackGetWallet(out)
	if err != nil {
		return SmartWallet{}, fmt.Errorf("resolve wallet for %s: %w: %w", owner.Hex(), relayerr.ErrRpcUnavailable, err)
	}
	if addr == (common.Address{}) {
		return SmartWallet{}, fmt.Errorf("resolve wallet for %s: %w: factory returned the zero address", owner.Hex(), relayerr.ErrRpcUnavailable)
	}

	return SmartWallet{
		Owner:    owner,
		Index:    contracts.WalletIndex,
		Deployed: deployed,
		Address:  addr,
	}, nil
}
