package operator

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"casa-relay/lib/relayerr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is the operator's signing capability. It is built once at startup
// and handed to the components allowed to use it.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewAccount(hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: operator private key is empty", relayerr.ErrInvalidInput)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: operator private key: %w", relayerr.ErrInvalidInput, err)
	}
	return NewAccountFromKey(key), nil
}

func NewAccountFromKey(key *ecdsa.PrivateKey) *Account {
	return &Account{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a *Account) Address() common.Address {
	return a.address
}

// Sign is deterministic for a given tx and chain id.
func (a *Account) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

func (a *Account) String() string {
	return "operator(" + a.address.Hex() + ")"
}
