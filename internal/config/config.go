package config

import (
	"time"

	"custody/internal/constant"

	"github.com/zeromicro/go-zero/rest"
)

type SolanaConf struct {
	Enabled           bool   `json:",default=true"`
	RpcUrl            string `json:",default=https://api.mainnet-beta.solana.com"`
	WsUrl             string `json:",default=wss://api.mainnet-beta.solana.com"`
	CollectionAddress string `json:",optional"`
	Commitment        string `json:",default=confirmed,options=processed|confirmed|finalized"`
}

type EthereumConf struct {
	Enabled           bool   `json:",default=true"`
	RpcUrl            string `json:",optional"`
	WsUrl             string `json:",optional"`
	ChainId           int64  `json:",default=1"`
	CollectionAddress string `json:",optional"`
	// FallbackGasPriceWei is used when the node's gas oracle fails.
	FallbackGasPriceWei int64 `json:",default=20000000000"`
}

type TronConf struct {
	Enabled           bool          `json:",default=true"`
	ApiUrl            string        `json:",default=https://api.trongrid.io"`
	ApiKey            string        `json:",optional,env=TRON_PRO_API_KEY"`
	CollectionAddress string        `json:",optional"`
	PollInterval      time.Duration `json:",default=3s"`
	FeeReserveSun     int64         `json:",default=1000000"`
}

type WatcherConf struct {
	RefreshInterval   time.Duration `json:",default=5m"`
	ConnectTimeout    time.Duration `json:",default=10s"`
	ReconnectAttempts int           `json:",default=5"`
	ReconnectDelay    time.Duration `json:",default=2s"`
	MaxReconnectDelay time.Duration `json:",default=30s"`
}

type DepositConf struct {
	// Timeout bounds pricing, crediting and publishing one deposit.
	Timeout time.Duration `json:",default=30s"`
}

type SweepConf struct {
	// 是否在入账后自动归集
	AutoSweep   bool          `json:",default=true"`
	Concurrency int           `json:",default=4"`
	MinInterval time.Duration `json:",default=500ms"`
	Timeout     time.Duration `json:",default=60s"`
}

type PriceConf struct {
	ApiUrl   string        `json:",default=https://api.coingecko.com/api/v3"`
	CacheTTL time.Duration `json:",default=5m"`
	Timeout  time.Duration `json:",default=10s"`
}

type KafkaConf struct {
	Brokers []string `json:",optional"`
	Topic   string   `json:",default=custody.deposits"`
}

type Config struct {
	rest.RestConf
	Postgres struct {
		DSN string `json:",env=POSTGRES_DSN"`
	}
	Custody struct {
		// MasterSeedHex is the BIP39 seed (16-64 bytes) in hex. Keep it out of config files.
		MasterSeedHex string `json:",env=CUSTODY_MASTER_SEED"`
	}
	Solana   SolanaConf
	Ethereum EthereumConf
	Tron     TronConf
	Watcher  WatcherConf
	Deposit  DepositConf
	Sweep    SweepConf
	Price    PriceConf
	Kafka    KafkaConf `json:",optional"`
}

// Enabled reports whether network is switched on in this config.
func (c Config) Enabled(network constant.Network) bool {
	switch network {
	case constant.NetworkSolana:
		return c.Solana.Enabled
	case constant.NetworkEthereum:
		return c.Ethereum.Enabled
	case constant.NetworkTron:
		return c.Tron.Enabled
	}
	return false
}

// EnabledNetworks lists the enabled networks in canonical order.
func (c Config) EnabledNetworks() []constant.Network {
	var out []constant.Network
	for _, n := range constant.SupportedNetworks {
		if c.Enabled(n) {
			out = append(out, n)
		}
	}
	return out
}
