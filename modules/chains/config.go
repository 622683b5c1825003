package chains

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"casa-relay/lib/units"
	"casa-relay/modules/config"
)

type ChainConfig struct {
	ChainId uint64
	Name    string `json:",omitempty"`
	RpcUrl  string
	// Factory overrides the global wallet factory for this chain.
	Factory  string `json:",omitempty"`
	FeeToken string `json:",omitempty"`
}

type FeeChainConfig struct {
	ChainId uint64
	// Amount is a fixed-point decimal in whole tokens, e.g. "0.01".
	Amount string
}

type relayConfig struct {
	HttpAddr             string
	Factory              string
	Chains               []ChainConfig
	FeeChains            []FeeChainConfig
	ConfirmationTimeout  string
	ReceiptPollInterval  string
	NonceLeadWindow      string
	BalanceCheckSchedule string
	LowBalanceWei        string
}

// Env is the environment overlay. OperatorPk is only ever held in memory.
type Env struct {
	OperatorPk string `mapstructure:"OPERATOR_PK"`
	Factory    string `mapstructure:"FACTORY"`
	LogLevel   string `mapstructure:"LOGLEVEL"`
	HttpAddr   string `mapstructure:"HTTP_ADDR"`
	FeeChains  string `mapstructure:"FEE_CHAINS"`
}

func LoadEnv() (Env, error) {
	env := Env{LogLevel: "INFO"}
	if err := config.DecodeEnv(&env); err != nil {
		return Env{}, err
	}
	return env, nil
}

type relayConfigStruct struct {
	*config.Config[relayConfig]
}

type RelayConfig = *relayConfigStruct

func NewRelayConfig(dataDir ...string) RelayConfig {
	var dataDirPtr *string
	if len(dataDir) > 0 {
		dataDirPtr = &dataDir[0]
	}

	return &relayConfigStruct{config.New(relayConfig{
		HttpAddr: "0.0.0.0:8000",
		Chains: []ChainConfig{
			{ChainId: 421614, Name: "arbitrum-sepolia", RpcUrl: "https://sepolia-rollup.arbitrum.io/rpc", FeeToken: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"},
			{ChainId: 84532, Name: "base-sepolia", RpcUrl: "https://sepolia.base.org", FeeToken: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"},
			{ChainId: 534351, Name: "scroll-sepolia", RpcUrl: "https://sepolia-rpc.scroll.io"},
		},
		FeeChains:            []FeeChainConfig{},
		ConfirmationTimeout:  "5m",
		ReceiptPollInterval:  "2s",
		NonceLeadWindow:      "30s",
		BalanceCheckSchedule: "@every 10m",
		LowBalanceWei:        "10000000000000000",
	}, dataDirPtr)}
}

// ApplyEnv overlays environment values on top of the file config without
// persisting them.
func (rc *relayConfigStruct) ApplyEnv(env Env) error {
	var fees []FeeChainConfig
	if env.FeeChains != "" {
		parsed, err := ParseFeeChains(env.FeeChains)
		if err != nil {
			return err
		}
		fees = parsed
	}

	rc.Override(func(c *relayConfig) {
		if env.Factory != "" {
			c.Factory = env.Factory
		}
		if env.HttpAddr != "" {
			c.HttpAddr = env.HttpAddr
		}
		if fees != nil {
			c.FeeChains = fees
		}
	})
	return nil
}

func (rc *relayConfigStruct) SetHttpAddr(addr string) error {
	return rc.Update(func(c *relayConfig) {
		c.HttpAddr = addr
	})
}

func (rc *relayConfigStruct) GetHttpAddr() string {
	return rc.Get().HttpAddr
}

func (rc *relayConfigStruct) ConfirmationTimeout() time.Duration {
	return parseDuration(rc.Get().ConfirmationTimeout, 5*time.Minute)
}

func (rc *relayConfigStruct) ReceiptPollInterval() time.Duration {
	return parseDuration(rc.Get().ReceiptPollInterval, 2*time.Second)
}

func (rc *relayConfigStruct) NonceLeadWindow() time.Duration {
	return parseDuration(rc.Get().NonceLeadWindow, 30*time.Second)
}

func (rc *relayConfigStruct) BalanceCheckSchedule() string {
	if s := rc.Get().BalanceCheckSchedule; s != "" {
		return s
	}
	return "@every 10m"
}

func (rc *relayConfigStruct) LowBalanceWei() string {
	return rc.Get().LowBalanceWei
}

// Registry builds the immutable chain registry from the current values.
func (rc *relayConfigStruct) Registry() (*Registry, error) {
	c := rc.Get()
	return NewRegistry(c.Factory, c.Chains, c.FeeChains)
}

// ParseFeeChains parses "84532:0.01,421614:0.02".
func ParseFeeChains(s string) ([]FeeChainConfig, error) {
	var out []FeeChainConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, amount, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("fee chain %q: expected <chain id>:<amount>", part)
		}
		chainId, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("fee chain %q: %w", part, err)
		}
		amount = strings.TrimSpace(amount)
		if err := units.Validate(amount); err != nil {
			return nil, fmt.Errorf("fee chain %q: %w", part, err)
		}
		out = append(out, FeeChainConfig{ChainId: chainId, Amount: amount})
	}
	return out, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
