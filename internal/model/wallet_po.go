package model

import (
	"time"
)

// CustodialAccounts corresponds to the custodial_accounts table.
// 只保存派生索引和地址, 私钥随用随派生, 从不落库
type CustodialAccounts struct {
	Id           int64     `gorm:"column:id;primaryKey"`
	UserId       string    `gorm:"column:user_id;uniqueIndex:uk_user_network"`
	Network      string    `gorm:"column:network;uniqueIndex:uk_user_network;uniqueIndex:uk_network_index"`
	AccountIndex uint32    `gorm:"column:account_index;uniqueIndex:uk_network_index"`
	Address      string    `gorm:"column:address;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (CustodialAccounts) TableName() string {
	return "custodial_accounts"
}
