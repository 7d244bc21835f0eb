package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepositLedger is the external balance store: conflict-skip inserts and atomic increments.
type DepositLedger interface {
	// InsertPendingDeposit returns false when the idempotency key already exists.
	InsertPendingDeposit(ctx context.Context, data *PendingDeposits) (bool, error)
	CreditBalance(ctx context.Context, userId string, usdDelta decimal.Decimal) error
	InsertAuditRecord(ctx context.Context, data *DepositAudits) error
}

type depositLedger struct {
	db *gorm.DB
}

func NewDepositLedger(db *gorm.DB) DepositLedger {
	return &depositLedger{
		db: db,
	}
}

func (d *depositLedger) InsertPendingDeposit(ctx context.Context, data *PendingDeposits) (bool, error) {
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(data)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreditBalance upserts the user row and adds usdDelta in a single statement.
func (d *depositLedger) CreditBalance(ctx context.Context, userId string, usdDelta decimal.Decimal) error {
	row := &UserBalances{
		UserId:     userId,
		UsdBalance: usdDelta,
		UpdatedAt:  time.Now(),
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"usd_balance": gorm.Expr("user_balances.usd_balance + EXCLUDED.usd_balance"),
				"updated_at":  gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(row).Error
}

func (d *depositLedger) InsertAuditRecord(ctx context.Context, data *DepositAudits) error {
	if data.Id == uuid.Nil {
		data.Id = uuid.New()
	}
	return d.db.WithContext(ctx).Create(data).Error
}

// AutoMigrate creates or updates every table this service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CustodialAccounts{}, &PendingDeposits{}, &UserBalances{}, &DepositAudits{})
}
