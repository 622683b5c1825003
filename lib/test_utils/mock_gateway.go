package test_utils

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"casa-relay/lib/contracts"
	"casa-relay/lib/relayerr"
	"casa-relay/modules/gateway"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type MockWallet struct {
	Deployed bool
	Nonce    uint64
}

// MockGateway is an in-memory chain. It answers the factory, wallet and
// ERC-20 reads the relay makes and records every broadcast.
type MockGateway struct {
	Id      *big.Int
	Factory common.Address

	mu sync.Mutex
	// PendingCount is the operator transaction count the "node" reports.
	PendingCount uint64
	// Wallets is keyed by owner.
	Wallets  map[common.Address]*MockWallet
	Decimals uint8
	Balance  *big.Int

	CallErr    error
	CountErr   error
	SendErr    error
	ReceiptErr error
	// ReceiptDelay is how long WaitForReceipt blocks before returning.
	ReceiptDelay  time.Duration
	ReceiptStatus uint64

	Sent        []*types.Transaction
	SentAt      []time.Time
	ReceiptsFor []common.Hash
	Calls       int

	inFlight    int
	Overlapping bool
	closed      bool
}

var _ gateway.Gateway = &MockGateway{}

func NewMockGateway(chainID int64, factory common.Address) *MockGateway {
	return &MockGateway{
		Id:            big.NewInt(chainID),
		Factory:       factory,
		Wallets:       make(map[common.Address]*MockWallet),
		Decimals:      6,
		Balance:       big.NewInt(1e18),
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// WalletAddress derives the counterfactual wallet address the mock factory
// reports for owner.
func WalletAddress(factory, owner common.Address) common.Address {
	index := common.LeftPadBytes(big.NewInt(contracts.WalletIndex).Bytes(), 32)
	return common.BytesToAddress(crypto.Keccak256(factory.Bytes(), owner.Bytes(), index)[12:])
}

func (m *MockGateway) SetWallet(owner common.Address, deployed bool, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Wallets[owner] = &MockWallet{Deployed: deployed, Nonce: nonce}
}

func (m *MockGateway) SetSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendErr = err
}

func (m *MockGateway) SentTxs() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Transaction{}, m.Sent...)
}

func (m *MockGateway) SentTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time{}, m.SentAt...)
}

func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func (m *MockGateway) ChainID() *big.Int {
	return new(big.Int).Set(m.Id)
}

func (m *MockGateway) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	m.inFlight++
	if m.inFlight > 1 {
		m.Overlapping = true
	}
	return m.PendingCount, nil
}

func (m *MockGateway) Call(ctx context.Context, to common.Address, calldata []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.CallErr != nil {
		return nil, m.CallErr
	}
	if len(calldata) < 4 {
		return nil, fmt.Errorf("%w: short calldata", relayerr.ErrRpcUnavailable)
	}

	selector, args := calldata[:4], calldata[4:]
	switch {
	case bytes.Equal(selector, contracts.Selector("getWallet")):
		vals, err := contracts.FactoryABI.Methods["getWallet"].Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		owner := vals[0].(common.Address)
		deployed := false
		if w, ok := m.Wallets[owner]; ok {
			deployed = w.Deployed
		}
		return contracts.FactoryABI.Methods["getWallet"].Outputs.Pack(deployed, WalletAddress(m.Factory, owner))

	case bytes.Equal(selector, contracts.Selector("nonces")):
		vals, err := contracts.WalletABI.Methods["nonces"].Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		walletAddr := vals[0].(common.Address)
		for owner, w := range m.Wallets {
			if WalletAddress(m.Factory, owner) == walletAddr && to == walletAddr {
				return contracts.WalletABI.Methods["nonces"].Outputs.Pack(new(big.Int).SetUint64(w.Nonce))
			}
		}
		return nil, fmt.Errorf("%w: no wallet at %s", relayerr.ErrRpcUnavailable, walletAddr.Hex())

	case bytes.Equal(selector, contracts.Selector("decimals")):
		return contracts.ERC20ABI.Methods["decimals"].Outputs.Pack(m.Decimals)
	}
	return nil, fmt.Errorf("%w: unknown selector %x", relayerr.ErrRpcUnavailable, selector)
}

func (m *MockGateway) BuildTransaction(
	ctx context.Context,
	from common.Address,
	nonce uint64,
	to common.Address,
	data []byte,
	value *big.Int,
) (*types.Transaction, error) {
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   m.ChainID(),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       200_000,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

func (m *MockGateway) SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	if m.SendErr != nil {
		return common.Hash{}, m.SendErr
	}
	m.Sent = append(m.Sent, signed)
	m.SentAt = append(m.SentAt, time.Now())
	if signed.Nonce()+1 > m.PendingCount {
		m.PendingCount = signed.Nonce() + 1
	}
	return signed.Hash(), nil
}

func (m *MockGateway) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	delay, status, receiptErr := m.ReceiptDelay, m.ReceiptStatus, m.ReceiptErr
	m.ReceiptsFor = append(m.ReceiptsFor, hash)
	m.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", relayerr.ErrConfirmationTimeout, ctx.Err())
	}
	if receiptErr != nil {
		return nil, receiptErr
	}
	return &types.Receipt{TxHash: hash, Status: status}, nil
}

func (m *MockGateway) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallErr != nil {
		return nil, m.CallErr
	}
	return new(big.Int).Set(m.Balance), nil
}

func (m *MockGateway) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *MockGateway) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockGateway) IsOverlapping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Overlapping
}
