package chains_test

import (
	"testing"
	"time"

	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const factory = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var testChains = []chains.ChainConfig{
	{ChainId: 421614, RpcUrl: "http://arb", FeeToken: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"},
	{ChainId: 84532, RpcUrl: "http://base", FeeToken: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"},
	{ChainId: 534351, RpcUrl: "http://scroll", Factory: "0x0000000000000000000000000000000000000abc"},
}

func TestRegistryLookup(t *testing.T) {
	r, err := chains.NewRegistry(factory, testChains, nil)
	require.NoError(t, err)

	c, err := r.Lookup(421614)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(factory), c.Factory)
	assert.Equal(t, "http://arb", c.RPCURL)
	assert.True(t, c.FeeToken.IsSome())

	scroll, err := r.Lookup(534351)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xabc"), scroll.Factory)
	assert.True(t, scroll.FeeToken.IsNone())

	_, err = r.Lookup(1)
	assert.ErrorIs(t, err, relayerr.ErrUnknownChain)

	assert.Equal(t, []chains.ChainID{84532, 421614, 534351}, r.IDs())
}

func TestRegistryFeeTargets(t *testing.T) {
	r, err := chains.NewRegistry(factory, testChains, []chains.FeeChainConfig{{ChainId: 84532, Amount: "0.01"}})
	require.NoError(t, err)

	targets := r.FeeTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, chains.ChainID(84532), targets[0].Chain.ID)
	assert.Equal(t, "0.01", targets[0].Amount)
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	_, err := chains.NewRegistry("", testChains[:1], nil)
	assert.Error(t, err, "no factory anywhere")

	_, err = chains.NewRegistry("not-an-address", testChains, nil)
	assert.ErrorIs(t, err, relayerr.ErrInvalidInput)

	_, err = chains.NewRegistry(factory, []chains.ChainConfig{testChains[0], testChains[0]}, nil)
	assert.Error(t, err)

	_, err = chains.NewRegistry(factory, testChains, []chains.FeeChainConfig{{ChainId: 1, Amount: "1"}})
	assert.ErrorIs(t, err, relayerr.ErrUnknownChain)

	_, err = chains.NewRegistry(factory, testChains, []chains.FeeChainConfig{{ChainId: 534351, Amount: "1"}})
	assert.Error(t, err, "fee chain without a token")

	_, err = chains.NewRegistry(factory, testChains, []chains.FeeChainConfig{{ChainId: 84532, Amount: "one"}})
	assert.Error(t, err)
}

func TestParseFeeChains(t *testing.T) {
	fees, err := chains.ParseFeeChains("84532:0.01, 421614:0.02")
	require.NoError(t, err)
	assert.Equal(t, []chains.FeeChainConfig{
		{ChainId: 84532, Amount: "0.01"},
		{ChainId: 421614, Amount: "0.02"},
	}, fees)

	_, err = chains.ParseFeeChains("84532")
	assert.Error(t, err)
	_, err = chains.ParseFeeChains("x:1")
	assert.Error(t, err)
}

func TestRelayConfigEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	rc := chains.NewRelayConfig(dir)
	require.NoError(t, rc.Init())

	err := rc.ApplyEnv(chains.Env{
		OperatorPk: "secret",
		Factory:    factory,
		HttpAddr:   "127.0.0.1:9999",
		FeeChains:  "84532:0.01",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", rc.GetHttpAddr())
	assert.Equal(t, 30*time.Second, rc.NonceLeadWindow())
	r, err := rc.Registry()
	require.NoError(t, err)
	assert.Len(t, r.FeeTargets(), 1)
	assert.Len(t, r.IDs(), 3)

	reloaded := chains.NewRelayConfig(dir)
	require.NoError(t, reloaded.Init())
	assert.Equal(t, "", reloaded.Get().Factory)
	assert.Equal(t, "0.0.0.0:8000", reloaded.GetHttpAddr())
}
