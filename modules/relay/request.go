package relay

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Request is one intent: execute (To, Value, Data) as if sent by Owner.
type Request struct {
	ChainID chains.ChainID
	Owner   common.Address
	To      common.Address
	Value   *uint256.Int
	Data    []byte
}

func (r Request) Validate() error {
	if r.ChainID == 0 {
		return fmt.Errorf("%w: chain id must be set", relayerr.ErrInvalidInput)
	}
	if r.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner must not be the zero address", relayerr.ErrInvalidInput)
	}
	return nil
}

func (r Request) BigValue() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value.ToBig()
}

// ParseRequest turns the raw query values into a Request. Every field is
// checked before any chain is contacted.
func ParseRequest(chainID, owner, to, data, value string) (Request, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(chainID), 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: chain_id %q", relayerr.ErrInvalidInput, chainID)
	}

	ownerAddr, err := parseAddress("for_", owner)
	if err != nil {
		return Request{}, err
	}
	toAddr, err := parseAddress("to", to)
	if err != nil {
		return Request{}, err
	}

	payload, err := parseData(data)
	if err != nil {
		return Request{}, err
	}

	amount := new(uint256.Int)
	if value = strings.TrimSpace(value); value != "" {
		if amount, err = uint256.FromDecimal(value); err != nil {
			return Request{}, fmt.Errorf("%w: value %q: %w", relayerr.ErrInvalidInput, value, err)
		}
	}

	req := Request{
		ChainID: chains.ChainID(id),
		Owner:   ownerAddr,
		To:      toAddr,
		Value:   amount,
		Data:    payload,
	}
	return req, req.Validate()
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", relayerr.ErrInvalidInput, field, s)
	}
	return common.HexToAddress(s), nil
}

// parseData accepts "0x", "0x<hex>" and bare hex.
func parseData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if s == "0x" || s == "0X" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(strings.Replace(s, "0X", "0x", 1))
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", relayerr.ErrInvalidInput, err)
	}
	return b, nil
}
