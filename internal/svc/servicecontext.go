package svc

import (
	"log"
	"time"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/event"
	"custody/internal/logic/deposit"
	"custody/internal/logic/monitor"
	"custody/internal/logic/price"
	"custody/internal/logic/sweep"
	"custody/internal/logic/wallet"
	"custody/internal/model"
	"custody/internal/pkg/tron"

	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ServiceContext struct {
	Config       config.Config
	DB           *gorm.DB
	AccountsDao  model.CustodialAccountsDao
	Ledger       model.DepositLedger
	Deriver      *wallet.KeyDeriver
	Oracle       price.Oracle
	Publisher    event.Publisher
	Sweeper      *sweep.Engine
	Orchestrator *deposit.Orchestrator
}

func NewServiceContext(c config.Config) *ServiceContext {
	db, err := initDB(c.Postgres.DSN)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}
	logx.Must(model.AutoMigrate(db))

	deriver, err := wallet.NewKeyDeriverFromHex(c.Custody.MasterSeedHex)
	logx.Must(err)

	oracle, err := price.NewCoinGeckoOracle(c.Price)
	logx.Must(err)

	accounts := model.NewCustodialAccountsDao(db)
	tronClient := tron.NewClient(c.Tron.ApiUrl, c.Tron.ApiKey, c.Watcher.ConnectTimeout)

	var (
		chains      []sweep.Chain
		subscribers []monitor.Subscriber
	)
	for _, n := range c.EnabledNetworks() {
		switch n {
		case constant.NetworkSolana:
			chains = append(chains, sweep.NewSolanaChain(c.Solana))
			subscribers = append(subscribers, monitor.NewSolanaSubscriber(c.Solana))
		case constant.NetworkEthereum:
			chain, err := sweep.NewEthereumChain(c.Ethereum)
			logx.Must(err)
			chains = append(chains, chain)
			subscribers = append(subscribers, monitor.NewEthereumSubscriber(c.Ethereum))
		case constant.NetworkTron:
			chains = append(chains, sweep.NewTronChain(tronClient, c.Tron))
			subscribers = append(subscribers, monitor.NewTronSubscriber(tronClient, c.Tron))
		}
	}

	ledger := model.NewDepositLedger(db)
	publisher := event.NewPublisher(c.Kafka)
	engine := sweep.NewEngine(deriver, c.Sweep, chains...)

	return &ServiceContext{
		Config:      c,
		DB:          db,
		AccountsDao: accounts,
		Ledger:      ledger,
		Deriver:     deriver,
		Oracle:      oracle,
		Publisher:   publisher,
		Sweeper:     engine,
		Orchestrator: deposit.NewOrchestrator(deposit.Options{
			Subscribers: subscribers,
			Accounts:    accounts,
			Ledger:      ledger,
			Oracle:      oracle,
			Publisher:   publisher,
			Sweeper:     engine,
			Watcher:     c.Watcher,
			Deposit:     c.Deposit,
			Sweep:       c.Sweep,
		}),
	}
}

// Close stops the watchers, waits for in-flight sweeps and releases the database.
func (s *ServiceContext) Close() {
	s.Orchestrator.Stop()
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func initDB(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}
