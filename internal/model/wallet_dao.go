package model

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = gorm.ErrRecordNotFound

// WatchedAccount is one row of the address registry as the watchers see it.
type WatchedAccount struct {
	Address      string
	UserId       string
	AccountIndex uint32
}

// CustodialAccountsDao defines the interface for database operations on the custodial_accounts table.
type CustodialAccountsDao interface {
	Insert(ctx context.Context, data *CustodialAccounts) error
	FindOneByUserAndNetwork(ctx context.Context, userId, network string) (*CustodialAccounts, error)
	FindOneByAddress(ctx context.Context, network, address string) (*CustodialAccounts, error)
	FindAllByNetwork(ctx context.Context, network string) ([]*CustodialAccounts, error)
	// NextAccountIndex returns max(account_index)+1 for network, or 0 for an empty table.
	NextAccountIndex(ctx context.Context, network string) (uint32, error)
	// GetAddressesForNetwork is the AddressRegistry view used by the watchers.
	GetAddressesForNetwork(ctx context.Context, network string) ([]WatchedAccount, error)
}

type custodialAccountsDao struct {
	db *gorm.DB
}

// NewCustodialAccountsDao creates a new instance of CustodialAccountsDao.
func NewCustodialAccountsDao(db *gorm.DB) CustodialAccountsDao {
	return &custodialAccountsDao{
		db: db,
	}
}

// Insert adds a new record to the custodial_accounts table.
func (d *custodialAccountsDao) Insert(ctx context.Context, data *CustodialAccounts) error {
	return d.db.WithContext(ctx).Create(data).Error
}

func (d *custodialAccountsDao) FindOneByUserAndNetwork(ctx context.Context, userId, network string) (*CustodialAccounts, error) {
	var resp CustodialAccounts
	err := d.db.WithContext(ctx).Where("user_id = ? AND network = ?", userId, network).First(&resp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &resp, nil
}

// FindOneByAddress retrieves a single account record by its address.
func (d *custodialAccountsDao) FindOneByAddress(ctx context.Context, network, address string) (*CustodialAccounts, error) {
	var resp CustodialAccounts
	err := d.db.WithContext(ctx).Where("network = ? AND address = ?", network, address).First(&resp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &resp, nil
}

// FindAllByNetwork retrieves all account records of one network.
func (d *custodialAccountsDao) FindAllByNetwork(ctx context.Context, network string) ([]*CustodialAccounts, error) {
	var accounts []*CustodialAccounts
	err := d.db.WithContext(ctx).Where("network = ?", network).Order("account_index").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *custodialAccountsDao) NextAccountIndex(ctx context.Context, network string) (uint32, error) {
	var next int64
	err := d.db.WithContext(ctx).Model(&CustodialAccounts{}).
		Where("network = ?", network).
		Select("COALESCE(MAX(account_index) + 1, 0)").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return uint32(next), nil
}

func (d *custodialAccountsDao) GetAddressesForNetwork(ctx context.Context, network string) ([]WatchedAccount, error) {
	accounts, err := d.FindAllByNetwork(ctx, network)
	if err != nil {
		return nil, err
	}
	resp := make([]WatchedAccount, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, WatchedAccount{
			Address:      a.Address,
			UserId:       a.UserId,
			AccountIndex: a.AccountIndex,
		})
	}
	return resp, nil
}
