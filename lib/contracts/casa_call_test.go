package contracts_test

import (
	"math/big"
	"testing"

	"casa-relay/lib/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0xAAAaAAaaaaAAAaaaAaaAAAAAAaAaaaAaaAAAaAAa")
	target = common.HexToAddress("0xBbBBbBbBbbbbbBbbbBBBbbbBbbBbbbbbbBBBbBbB")
	wallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func decodeCall(t *testing.T, parsed abi.ABI, method string, calldata []byte) []interface{} {
	t.Helper()
	m := parsed.Methods[method]
	require.Equal(t, m.ID, calldata[:4])
	vals, err := m.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	return vals
}

func TestGetWalletRoundTrip(t *testing.T) {
	calldata, err := contracts.PackGetWallet(owner)
	require.NoError(t, err)

	args := decodeCall(t, contracts.FactoryABI, "getWallet", calldata)
	assert.Equal(t, owner, args[0])
	assert.Equal(t, 0, args[1].(*big.Int).Sign())

	reply, err := contracts.FactoryABI.Methods["getWallet"].Outputs.Pack(true, wallet)
	require.NoError(t, err)
	exists, addr, err := contracts.UnpackGetWallet(reply)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, wallet, addr)
}

func TestUnpackGetWalletMalformed(t *testing.T) {
	_, _, err := contracts.UnpackGetWallet([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, contracts.ErrMalformedReply)
}

func TestPackCreateWalletAndCall(t *testing.T) {
	call := contracts.CasaCall{
		Nonce:   big.NewInt(0),
		ChainId: big.NewInt(421614),
		From:    wallet,
		To:      target,
		Value:   big.NewInt(0),
		Data:    []byte{},
	}
	calldata, err := contracts.PackCreateWalletAndCall(owner, call)
	require.NoError(t, err)

	args := decodeCall(t, contracts.FactoryABI, "createWalletAndCall", calldata)
	assert.Equal(t, owner, args[0])

	decoded := *abi.ConvertType(args[2], new(contracts.CasaCall)).(*contracts.CasaCall)
	assert.Equal(t, int64(0), decoded.Nonce.Int64())
	assert.Equal(t, int64(421614), decoded.ChainId.Int64())
	assert.Equal(t, wallet, decoded.From)
	assert.Equal(t, target, decoded.To)
	assert.Empty(t, decoded.Data)
}

func TestPackOperatorCall(t *testing.T) {
	call := contracts.CasaCall{
		Nonce:   big.NewInt(1),
		ChainId: big.NewInt(84532),
		From:    wallet,
		To:      target,
		Value:   big.NewInt(5),
		Data:    []byte{0xde, 0xad},
	}
	calldata, err := contracts.PackOperatorCall(call)
	require.NoError(t, err)

	args := decodeCall(t, contracts.WalletABI, "operatorCall", calldata)
	decoded := *abi.ConvertType(args[0], new(contracts.CasaCall)).(*contracts.CasaCall)
	assert.Equal(t, int64(1), decoded.Nonce.Int64())
	assert.Equal(t, int64(5), decoded.Value.Int64())
	assert.Equal(t, []byte{0xde, 0xad}, decoded.Data)
}

func TestCasaCallBounds(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	call := contracts.CasaCall{
		Nonce:   tooBig,
		ChainId: big.NewInt(1),
		Value:   big.NewInt(0),
	}
	assert.ErrorIs(t, call.Validate(), contracts.ErrFieldOverflow)

	call.Nonce = big.NewInt(-1)
	assert.ErrorIs(t, call.Validate(), contracts.ErrFieldOverflow)

	call.Nonce = new(big.Int).Sub(tooBig, big.NewInt(1))
	assert.NoError(t, call.Validate())

	call.Value = nil
	assert.ErrorIs(t, call.Validate(), contracts.ErrFieldOverflow)
}

func TestNoncesAndDecimals(t *testing.T) {
	calldata, err := contracts.PackNonces(wallet)
	require.NoError(t, err)
	args := decodeCall(t, contracts.WalletABI, "nonces", calldata)
	assert.Equal(t, wallet, args[0])

	reply, err := contracts.WalletABI.Methods["nonces"].Outputs.Pack(big.NewInt(3))
	require.NoError(t, err)
	n, err := contracts.UnpackNonces(reply)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Int64())

	reply, err = contracts.ERC20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
	require.NoError(t, err)
	d, err := contracts.UnpackDecimals(reply)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestPackTransfer(t *testing.T) {
	calldata, err := contracts.PackTransfer(target, big.NewInt(10_000))
	require.NoError(t, err)
	args := decodeCall(t, contracts.ERC20ABI, "transfer", calldata)
	assert.Equal(t, target, args[0])
	assert.Equal(t, int64(10_000), args[1].(*big.Int).Int64())
	assert.Equal(t, contracts.ERC20ABI.Methods["transfer"].ID, contracts.Selector("transfer"))
}
