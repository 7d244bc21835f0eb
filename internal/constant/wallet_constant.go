package constant

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

type Network string

const (
	NetworkSolana   Network = "solana"
	NetworkEthereum Network = "ethereum"
	NetworkTron     Network = "tron"
)

// SupportedNetworks lists every network the engine can derive, watch and sweep.
var SupportedNetworks = []Network{
	NetworkSolana,
	NetworkEthereum,
	NetworkTron,
}

// 各链最小单位的小数位: lamport / wei / sun
var networkDecimals = map[Network]int32{
	NetworkSolana:   9,
	NetworkEthereum: 18,
	NetworkTron:     6,
}

var networkSymbols = map[Network]string{
	NetworkSolana:   "SOL",
	NetworkEthereum: "ETH",
	NetworkTron:     "TRX",
}

// IsNetworkSupported checks if a given network is in the list of supported networks.
func IsNetworkSupported(network string) bool {
	for _, supported := range SupportedNetworks {
		if string(supported) == network {
			return true
		}
	}
	return false
}

// ParseNetwork accepts the canonical name or the coin symbol, case-insensitively.
func ParseNetwork(s string) (Network, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "solana", "sol":
		return NetworkSolana, nil
	case "ethereum", "eth":
		return NetworkEthereum, nil
	case "tron", "trx":
		return NetworkTron, nil
	}
	return "", fmt.Errorf("unsupported network: %s", s)
}

// Decimals 返回链原生币的小数位
func (n Network) Decimals() int32 {
	return networkDecimals[n]
}

func (n Network) Symbol() string {
	return networkSymbols[n]
}

func (n Network) String() string {
	return string(n)
}

// ToMainUnit converts a minor-unit amount (lamport, wei, sun) into SOL, ETH or TRX.
func (n Network) ToMainUnit(amount *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -n.Decimals())
}
