package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// DepositEvent is emitted by a watcher when an address balance goes up.
type DepositEvent struct {
	Network         string          `json:"network"`
	Address         string          `json:"address"`
	UserId          string          `json:"userId"`
	AccountIndex    uint32          `json:"accountIndex"`
	PreviousBalance *big.Int        `json:"previousBalance"` // 最小单位
	NewBalance      *big.Int        `json:"newBalance"`
	Delta           *big.Int        `json:"delta"`
	Amount          decimal.Decimal `json:"amount"` // 主单位 (SOL/ETH/TRX)
	Timestamp       time.Time       `json:"timestamp"`
}

// CreditedDeposit is what the event stream carries once a deposit is credited.
type CreditedDeposit struct {
	DepositEvent
	TxHash    string          `json:"txHash"`
	AmountUSD decimal.Decimal `json:"amountUsd"`
	PriceUSD  decimal.Decimal `json:"priceUsd"`
}
