package wallet

import (
	"context"
	"fmt"
	"math/big"

	"casa-relay/lib/contracts"
	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"

	"github.com/ethereum/go-ethereum/common"
)

type CallKind int

const (
	// CreateAndCall deploys the wallet through the factory and executes the
	// envelope in the same transaction.
	CreateAndCall CallKind = iota
	// OperatorCall executes the envelope on an already deployed wallet.
	OperatorCall
)

func (k CallKind) String() string {
	switch k {
	case CreateAndCall:
		return "createWalletAndCall"
	case OperatorCall:
		return "operatorCall"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// PreparedCall is what the operator will send: Calldata to Target.
type PreparedCall struct {
	Kind     CallKind
	Target   common.Address
	Envelope contracts.CasaCall
	Calldata []byte
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build wraps (to, value, data) in a CasaCall for w. An undeployed wallet has
// executed nothing yet so its envelope nonce is 0; a deployed wallet's nonce
// is read from the wallet itself. That read is not atomic with the later
// broadcast: a racing request for the same wallet can make the contract
// reject one of the two.
func (b *Builder) Build(
	ctx context.Context,
	chain chains.Chain,
	gw gateway.Gateway,
	w SmartWallet,
	to common.Address,
	value *big.Int,
	data []byte,
) (PreparedCall, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}

	envelope := contracts.CasaCall{
		Nonce:   new(big.Int),
		ChainId: chain.ID.Big(),
		From:    w.Address,
		To:      to,
		Value:   value,
		Data:    data,
	}

	if !w.Deployed {
		calldata, err := contracts.PackCreateWalletAndCall(w.Owner, envelope)
		if err != nil {
			return PreparedCall{}, fmt.Errorf("%w: %w", relayerr.ErrInvalidInput, err)
		}
		return PreparedCall{Kind: CreateAndCall, Target: chain.Factory, Envelope: envelope, Calldata: calldata}, nil
	}

	nonce, err := b.walletNonce(ctx, gw, w.Address)
	if err != nil {
		return PreparedCall{}, err
	}
	envelope.Nonce = nonce

	calldata, err := contracts.PackOperatorCall(envelope)
	if err != nil {
		return PreparedCall{}, fmt.Errorf("%w: %w", relayerr.ErrInvalidInput, err)
	}
	return PreparedCall{Kind: OperatorCall, Target: w.Address, Envelope: envelope, Calldata: calldata}, nil
}

func (b *Builder) walletNonce(ctx context.Context, gw gateway.Gateway, walletAddr common.Address) (*big.Int, error) {
	calldata, err := contracts.PackNonces(walletAddr)
	if err != nil {
		return nil, err
	}
	out, err := gw.Call(ctx, walletAddr, calldata)
	if err != nil {
		return nil, fmt.Errorf("wallet nonce %s: %w", walletAddr.Hex(), err)
	}
	nonce, err := contracts.UnpackNonces(out)
	if err != nil {
		return nil, fmt.Errorf("wallet nonce %s: %w: %w", walletAddr.Hex(), relayerr.ErrRpcUnavailable, err)
	}
	return nonce, nil
}
