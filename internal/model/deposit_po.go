package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DepositStatusCredited = "credited"
)

// PendingDeposits is the idempotency table: one row per (user_id, tx_hash, network).
type PendingDeposits struct {
	Id           int64           `gorm:"column:id;primaryKey"`
	UserId       string          `gorm:"column:user_id;uniqueIndex:uk_deposit_key"`
	TxHash       string          `gorm:"column:tx_hash;uniqueIndex:uk_deposit_key"`
	Network      string          `gorm:"column:network;uniqueIndex:uk_deposit_key"`
	Address      string          `gorm:"column:address"`
	AmountCrypto decimal.Decimal `gorm:"column:amount_crypto;type:numeric(38,18)"`
	Status       string          `gorm:"column:status"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (PendingDeposits) TableName() string {
	return "pending_deposits"
}

// UserBalances holds the USD ledger balance per user.
type UserBalances struct {
	UserId     string          `gorm:"column:user_id;primaryKey"`
	UsdBalance decimal.Decimal `gorm:"column:usd_balance;type:numeric(38,8)"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (UserBalances) TableName() string {
	return "user_balances"
}

// DepositAudits is an append-only trail of every applied credit.
type DepositAudits struct {
	Id           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserId       string          `gorm:"column:user_id;index"`
	Network      string          `gorm:"column:network"`
	Address      string          `gorm:"column:address"`
	TxHash       string          `gorm:"column:tx_hash"`
	AmountCrypto decimal.Decimal `gorm:"column:amount_crypto;type:numeric(38,18)"`
	AmountUsd    decimal.Decimal `gorm:"column:amount_usd;type:numeric(38,8)"`
	PriceUsd     decimal.Decimal `gorm:"column:price_usd;type:numeric(38,8)"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (DepositAudits) TableName() string {
	return "deposit_audits"
}
