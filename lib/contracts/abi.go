package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const casaCallComponents = `[
	{"internalType": "uint128", "name": "nonce", "type": "uint128"},
	{"internalType": "uint128", "name": "chainId", "type": "uint128"},
	{"internalType": "address", "name": "from", "type": "address"},
	{"internalType": "address", "name": "to", "type": "address"},
	{"internalType": "uint256", "name": "value", "type": "uint256"},
	{"internalType": "bytes", "name": "data", "type": "bytes"}
]`

const FactoryABIJSON = `[
	{"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
	{"inputs": [], "name": "ERC1167FailedCreateClone", "type": "error"},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "index", "type": "uint256"}
		],
		"name": "createWallet",
		"outputs": [{"internalType": "address", "name": "wallet", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "index", "type": "uint256"},
			{"components": ` + casaCallComponents + `, "internalType": "struct Wallet.CasaCall", "name": "call", "type": "tuple"}
		],
		"name": "createWalletAndCall",
		"outputs": [{"internalType": "address", "name": "wallet", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "index", "type": "uint256"}
		],
		"name": "getWallet",
		"outputs": [
			{"internalType": "bool", "name": "exists", "type": "bool"},
			{"internalType": "address", "name": "wallet", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "implementation",
		"outputs": [{"internalType": "contract Wallet", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const WalletABIJSON = `[
	{
		"inputs": [{"internalType": "address", "name": "owner", "type": "address"}],
		"name": "nonces",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"components": ` + casaCallComponents + `, "internalType": "struct Wallet.CasaCall", "name": "call", "type": "tuple"}
		],
		"name": "operatorCall",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const ERC20ABIJSON = `[
	{
		"inputs": [
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	FactoryABI = mustParse(FactoryABIJSON)
	WalletABI  = mustParse(WalletABIJSON)
	ERC20ABI   = mustParse(ERC20ABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
