package relay_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"casa-relay/lib/contracts"
	"casa-relay/lib/relayerr"
	"casa-relay/lib/test_utils"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"
	"casa-relay/modules/operator"
	"casa-relay/modules/relay"
	"casa-relay/modules/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const factoryHex = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var (
	factory = common.HexToAddress(factoryHex)
	owner   = common.HexToAddress("0xAAAaAAaaaaAAAaaaAaaAAAAAAaAaaaAaaAAAaAAa")
	target  = common.HexToAddress("0xBbBBbBbBbbbbbBbbbBBBbbbBbbBbbbbbbBBBbBbB")
)

type fixture struct {
	pipeline *relay.Pipeline
	arb      *test_utils.MockGateway
	base     *test_utils.MockGateway
	account  *operator.Account
}

func newFixture(t *testing.T) *fixture {
	registry, err := chains.NewRegistry(factoryHex, []chains.ChainConfig{
		{ChainId: 421614, RpcUrl: "http://arb"},
		{ChainId: 84532, RpcUrl: "http://base"},
	}, nil)
	require.NoError(t, err)

	f := &fixture{
		arb:  test_utils.NewMockGateway(421614, factory),
		base: test_utils.NewMockGateway(84532, factory),
	}
	set := gateway.NewSetWithDialer(registry, func(ctx context.Context, chain chains.Chain) (gateway.Gateway, error) {
		if chain.ID == 421614 {
			return f.arb, nil
		}
		return f.base, nil
	}, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	f.account = operator.NewAccountFromKey(key)
	f.pipeline = relay.New(set, operator.NewSerializer(f.account, nil), nil)
	return f
}

func envelopeOf(t *testing.T, method abi.Method, data []byte, arg int) contracts.CasaCall {
	t.Helper()
	require.Equal(t, method.ID, data[:4])
	vals, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return *abi.ConvertType(vals[arg], new(contracts.CasaCall)).(*contracts.CasaCall)
}

func TestFirstRequestDeploysWallet(t *testing.T) {
	f := newFixture(t)

	req, err := relay.ParseRequest("421614", owner.Hex(), target.Hex(), "0x", "")
	require.NoError(t, err)

	hash, err := f.pipeline.Relay(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, hash.Bytes(), 32)
	assert.NotEqual(t, common.Hash{}, hash)

	sent := f.arb.SentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash())
	assert.Equal(t, factory, *sent[0].To())
	assert.Equal(t, 0, sent[0].Value().Sign())

	env := envelopeOf(t, contracts.FactoryABI.Methods["createWalletAndCall"], sent[0].Data(), 2)
	assert.Equal(t, int64(0), env.Nonce.Int64())
	assert.Equal(t, int64(421614), env.ChainId.Int64())
	assert.Equal(t, test_utils.WalletAddress(factory, owner), env.From)
	assert.Equal(t, target, env.To)
	assert.Equal(t, int64(0), env.Value.Int64())
	assert.Empty(t, env.Data)

	assert.Empty(t, f.base.SentTxs(), "other chains untouched")
}

func TestSecondRequestUsesOperatorCall(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Relay(context.Background(), relay.Request{
		ChainID: 421614, Owner: owner, To: target, Value: uint256.NewInt(0), Data: []byte{},
	})
	require.NoError(t, err)

	// deployment confirmed, the wallet executed one call
	f.arb.SetWallet(owner, true, 1)

	hash, err := f.pipeline.Relay(context.Background(), relay.Request{
		ChainID: 421614, Owner: owner, To: target, Value: uint256.NewInt(0), Data: []byte{},
	})
	require.NoError(t, err)

	sent := f.arb.SentTxs()
	require.Len(t, sent, 2)
	walletAddr := test_utils.WalletAddress(factory, owner)
	assert.Equal(t, hash, sent[1].Hash())
	assert.Equal(t, walletAddr, *sent[1].To())
	assert.Equal(t, uint64(1), sent[1].Nonce(), "operator nonce advanced")

	env := envelopeOf(t, contracts.WalletABI.Methods["operatorCall"], sent[1].Data(), 0)
	assert.Equal(t, int64(1), env.Nonce.Int64())
	assert.Equal(t, walletAddr, env.From)
}

func TestValueAndDataCarriedInEnvelope(t *testing.T) {
	f := newFixture(t)
	req, err := relay.ParseRequest("84532", owner.Hex(), target.Hex(), "0xa9059cbb", "1000000000000000000")
	require.NoError(t, err)

	_, err = f.pipeline.Relay(context.Background(), req)
	require.NoError(t, err)

	sent := f.base.SentTxs()
	require.Len(t, sent, 1)
	env := envelopeOf(t, contracts.FactoryABI.Methods["createWalletAndCall"], sent[0].Data(), 2)
	assert.Equal(t, "1000000000000000000", env.Value.String())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, env.Data)
	assert.Equal(t, int64(84532), env.ChainId.Int64())
}

func TestFailuresSurfaceSynchronously(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Relay(context.Background(), relay.Request{ChainID: 1, Owner: owner, To: target})
	assert.ErrorIs(t, err, relayerr.ErrUnknownChain)

	f.arb.CallErr = relayerr.ErrRpcUnavailable
	_, err = f.pipeline.Relay(context.Background(), relay.Request{ChainID: 421614, Owner: owner, To: target})
	assert.ErrorIs(t, err, relayerr.ErrRpcUnavailable)
	f.arb.CallErr = nil

	f.arb.SetSendErr(relayerr.ErrBroadcastRejected)
	_, err = f.pipeline.Relay(context.Background(), relay.Request{ChainID: 421614, Owner: owner, To: target})
	assert.ErrorIs(t, err, relayerr.ErrBroadcastRejected)

	snap := f.pipeline.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.Requests)
	assert.Equal(t, int64(0), snap.Submitted)
	assert.Equal(t, int64(1), snap.FailedKind["unknown_chain"])
	assert.Equal(t, int64(1), snap.FailedKind["rpc_unavailable"])
	assert.Equal(t, int64(1), snap.FailedKind["broadcast_rejected"])
}

type recorder struct {
	mu   sync.Mutex
	subs []relay.Submission
}

func (r *recorder) OnSubmitted(s relay.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
}

func TestObserversSeePrimarySubmissionsOnly(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.pipeline.Observe(rec)

	hash, err := f.pipeline.Relay(context.Background(), relay.Request{ChainID: 421614, Owner: owner, To: target})
	require.NoError(t, err)
	_, err = f.pipeline.Submit(context.Background(), relay.Request{ChainID: 84532, Owner: owner, To: target})
	require.NoError(t, err)

	require.Len(t, rec.subs, 1)
	assert.Equal(t, hash, rec.subs[0].Hash)
	assert.Equal(t, wallet.CreateAndCall, rec.subs[0].Kind)
	assert.Equal(t, chains.ChainID(421614), rec.subs[0].Request.ChainID)

	snap := f.pipeline.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Requests, "Submit is not a user request")
	assert.Equal(t, int64(1), snap.Submitted)
}

func TestConcurrentRelaysAcrossChains(t *testing.T) {
	const perChain = 20
	f := newFixture(t)

	wg := sync.WaitGroup{}
	for i := 0; i < perChain; i++ {
		for _, id := range []chains.ChainID{421614, 84532} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.pipeline.Relay(context.Background(), relay.Request{
					ChainID: id,
					Owner:   common.BigToAddress(big.NewInt(int64(i + 1))),
					To:      target,
				})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, gw := range []*test_utils.MockGateway{f.arb, f.base} {
		sent := gw.SentTxs()
		require.Len(t, sent, perChain)
		for i, tx := range sent {
			assert.Equal(t, uint64(i), tx.Nonce())
		}
		assert.False(t, gw.IsOverlapping())
	}
}

func TestParseRequestRejectsBadInput(t *testing.T) {
	cases := [][5]string{
		{"abc", owner.Hex(), target.Hex(), "0x", ""},
		{"421614", "0x123", target.Hex(), "0x", ""},
		{"421614", owner.Hex(), "nope", "0x", ""},
		{"421614", owner.Hex(), target.Hex(), "0xzz", ""},
		{"421614", owner.Hex(), target.Hex(), "0xabc", ""},
		{"421614", owner.Hex(), target.Hex(), "0x", "-1"},
		{"421614", "0x0000000000000000000000000000000000000000", target.Hex(), "0x", ""},
	}
	for _, c := range cases {
		_, err := relay.ParseRequest(c[0], c[1], c[2], c[3], c[4])
		assert.ErrorIs(t, err, relayerr.ErrInvalidInput, c)
	}

	req, err := relay.ParseRequest("421614", owner.Hex(), target.Hex(), "deadbeef", "7")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, req.Data)
	assert.Equal(t, uint64(7), req.Value.Uint64())
}
