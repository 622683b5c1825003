package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WalletIndex is the only wallet index the relay ever derives per owner.
const WalletIndex = 0

var (
	ErrFieldOverflow  = errors.New("field overflows its abi type")
	ErrMalformedReply = errors.New("malformed contract reply")
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// CasaCall mirrors the Wallet.CasaCall struct. Field names must stay in sync
// with the tuple component names, the abi packer matches them by name.
type CasaCall struct {
	Nonce   *big.Int
	ChainId *big.Int
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte
}

func (c CasaCall) Validate() error {
	if err := checkRange("nonce", c.Nonce, maxUint128); err != nil {
		return err
	}
	if err := checkRange("chainId", c.ChainId, maxUint128); err != nil {
		return err
	}
	return checkRange("value", c.Value, maxUint256)
}

func checkRange(name string, v *big.Int, max *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is nil", ErrFieldOverflow, name)
	}
	if v.Sign() < 0 || v.Cmp(max) > 0 {
		return fmt.Errorf("%w: %s=%s", ErrFieldOverflow, name, v)
	}
	return nil
}

func walletIndex() *big.Int {
	return big.NewInt(WalletIndex)
}

func PackGetWallet(owner common.Address) ([]byte, error) {
	return FactoryABI.Pack("getWallet", owner, walletIndex())
}

// UnpackGetWallet decodes the (exists, wallet) pair returned by getWallet.
func UnpackGetWallet(out []byte) (bool, common.Address, error) {
	vals, err := FactoryABI.Unpack("getWallet", out)
	if err != nil {
		return false, common.Address{}, fmt.Errorf("%w: getWallet: %w", ErrMalformedReply, err)
	}
	if len(vals) != 2 {
		return false, common.Address{}, fmt.Errorf("%w: getWallet returned %d values", ErrMalformedReply, len(vals))
	}
	exists, ok := vals[0].(bool)
	if !ok {
		return false, common.Address{}, fmt.Errorf("%w: getWallet exists is %T", ErrMalformedReply, vals[0])
	}
	wallet, ok := vals[1].(common.Address)
	if !ok {
		return false, common.Address{}, fmt.Errorf("%w: getWallet wallet is %T", ErrMalformedReply, vals[1])
	}
	return exists, wallet, nil
}

func PackCreateWalletAndCall(owner common.Address, call CasaCall) ([]byte, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	return FactoryABI.Pack("createWalletAndCall", owner, walletIndex(), call)
}

func PackOperatorCall(call CasaCall) ([]byte, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	return WalletABI.Pack("operatorCall", call)
}

func PackNonces(wallet common.Address) ([]byte, error) {
	return WalletABI.Pack("nonces", wallet)
}

func UnpackNonces(out []byte) (*big.Int, error) {
	vals, err := WalletABI.Unpack("nonces", out)
	if err != nil {
		return nil, fmt.Errorf("%w: nonces: %w", ErrMalformedReply, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%w: nonces returned %d values", ErrMalformedReply, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: nonces is %T", ErrMalformedReply, vals[0])
	}
	return n, nil
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if err := checkRange("amount", amount, maxUint256); err != nil {
		return nil, err
	}
	return ERC20ABI.Pack("transfer", to, amount)
}

func PackDecimals() ([]byte, error) {
	return ERC20ABI.Pack("decimals")
}

func UnpackDecimals(out []byte) (uint8, error) {
	vals, err := ERC20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals: %w", ErrMalformedReply, err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("%w: decimals returned %d values", ErrMalformedReply, len(vals))
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals is %T", ErrMalformedReply, vals[0])
	}
	return d, nil
}

// Selector returns the 4-byte method id of name, searching the factory,
// wallet and ERC-20 abis in that order.
func Selector(name string) []byte {
	if m, ok := FactoryABI.Methods[name]; ok {
		return m.ID
	}
	if m, ok := WalletABI.Methods[name]; ok {
		return m.ID
	}
	if m, ok := ERC20ABI.Methods[name]; ok {
		return m.ID
	}
	return nil
}
