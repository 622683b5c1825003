package monitor_test

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"casa-relay/lib/logger"
	"casa-relay/lib/relayerr"
	"casa-relay/lib/test_utils"
	"casa-relay/modules/chains"
	"casa-relay/modules/gateway"
	"casa-relay/modules/monitor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== mocks =====

const factoryHex = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var operator = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func mockGateways(t *testing.T) (*gateway.Set, *test_utils.MockGateway, *test_utils.MockGateway) {
	registry, err := chains.NewRegistry(factoryHex, []chains.ChainConfig{
		{ChainId: 421614, RpcUrl: "http://arb"},
		{ChainId: 84532, RpcUrl: "http://base"},
	}, nil)
	require.NoError(t, err)

	arb := test_utils.NewMockGateway(421614, common.HexToAddress(factoryHex))
	base := test_utils.NewMockGateway(84532, common.HexToAddress(factoryHex))
	set := gateway.NewSetWithDialer(registry, func(ctx context.Context, chain chains.Chain) (gateway.Gateway, error) {
		if chain.ID == 421614 {
			return arb, nil
		}
		return base, nil
	}, nil)
	return set, arb, base
}

// ===== tests =====

func TestCheckFlagsLowBalance(t *testing.T) {
	set, arb, base := mockGateways(t)
	arb.Balance = big.NewInt(5)
	base.Balance = big.NewInt(1e18)

	capture := logger.NewCapture()
	m, err := monitor.New(set, operator, "@every 1h", "1000", capture.Logger())
	require.NoError(t, err)

	report := m.Check(context.Background())
	require.Len(t, report, 2)

	// sorted by chain id
	assert.Equal(t, chains.ChainID(84532), report[0].Chain)
	assert.False(t, report[0].Low)
	assert.Equal(t, chains.ChainID(421614), report[1].Chain)
	assert.True(t, report[1].Low)
	assert.Equal(t, int64(5), report[1].Wei.Int64())

	assert.Equal(t, 1, capture.Count(slog.LevelWarn))
	assert.Equal(t, 1, capture.Count(slog.LevelInfo))
}

func TestCheckSurvivesRpcFailure(t *testing.T) {
	set, arb, _ := mockGateways(t)
	arb.CallErr = relayerr.ErrRpcUnavailable

	capture := logger.NewCapture()
	m, err := monitor.New(set, operator, "@every 1h", "0", capture.Logger())
	require.NoError(t, err)

	report := m.Check(context.Background())
	require.Len(t, report, 2)
	assert.ErrorIs(t, report[1].Err, relayerr.ErrRpcUnavailable)
	assert.NoError(t, report[0].Err)
	assert.Equal(t, 1, capture.Count(slog.LevelError))
}

func TestNewRejectsBadConfig(t *testing.T) {
	set, _, _ := mockGateways(t)

	_, err := monitor.New(set, operator, "whenever", "1", nil)
	assert.Error(t, err)

	_, err = monitor.New(set, operator, "@every 1m", "-5", nil)
	assert.Error(t, err)
}

func TestMonitorChecksOnStart(t *testing.T) {
	set, _, _ := mockGateways(t)
	capture := logger.NewCapture()
	m, err := monitor.New(set, operator, "@every 1h", "1", capture.Logger())
	require.NoError(t, err)

	test_utils.RunPlugin(t, m, true)

	assert.Eventually(t, func() bool {
		return capture.Count(slog.LevelInfo) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
