package deposit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/event"
	"custody/internal/logic/monitor"
	"custody/internal/logic/price"
	"custody/internal/logic/sweep"
	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/types"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"
	"github.com/zeromicro/go-zero/core/threading"
)

// AccountStore resolves custodial accounts.
type AccountStore interface {
	GetAddressesForNetwork(ctx context.Context, network string) ([]model.WatchedAccount, error)
	FindOneByUserAndNetwork(ctx context.Context, userId, network string) (*model.CustodialAccounts, error)
}

// Sweeper is implemented by *sweep.Engine.
type Sweeper interface {
	Networks() []constant.Network
	Sweep(ctx context.Context, network constant.Network, userId string, accountIndex uint32, reason string) (*types.SweepResult, error)
	SweepAll(ctx context.Context, network constant.Network, accounts []model.WatchedAccount, guard sweep.Guard) *types.SweepResp
}

type Options struct {
	Subscribers []monitor.Subscriber
	Accounts    AccountStore
	Ledger      model.DepositLedger
	Oracle      price.Oracle
	Publisher   event.Publisher
	Sweeper     Sweeper
	Watcher     config.WatcherConf
	Deposit     config.DepositConf
	Sweep       config.SweepConf
}

// Orchestrator wires watchers to the ledger and the sweep engine.
type Orchestrator struct {
	opts     Options
	watchers []*monitor.Watcher
	locks    syncx.LockedCalls
	deposits *keyedQueue
	runner   *threading.TaskRunner

	mu       sync.Mutex
	cancel   context.CancelFunc
	watching sync.WaitGroup
	sweeping sync.WaitGroup

	logx.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	concurrency := opts.Sweep.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	o := &Orchestrator{
		opts:   opts,
		locks:    syncx.NewLockedCalls(),
		deposits: newKeyedQueue(),
		runner:   threading.NewTaskRunner(concurrency),
		Logger:   logx.WithContext(context.Background()),
	}
	for _, sub := range opts.Subscribers {
		book := monitor.NewAddressBook(sub.Network())
		o.watchers = append(o.watchers, monitor.NewWatcher(sub, opts.Accounts, book, o.onDeposit, opts.Watcher))
	}
	return o
}

// IdempotencyKey identifies a balance transition. Watchers only see balances,
// not transactions, so the key stands in for a transaction hash.
func IdempotencyKey(ev *types.DepositEvent) string {
	return fmt.Sprintf("balance:%s:%s:%s->%s", ev.Network, ev.Address, ev.PreviousBalance, ev.NewBalance)
}

func lockKey(userId string, network constant.Network) string {
	return userId + ":" + string(network)
}

func (o *Orchestrator) Watchers() []*monitor.Watcher { return o.watchers }

// Start launches one goroutine per watcher and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for _, w := range o.watchers {
		w := w
		o.watching.Add(1)
		threading.GoSafe(func() {
			defer o.watching.Done()
			if err := w.Run(runCtx); err != nil {
				var connErr *types.ConnectionError
				if errors.As(err, &connErr) {
					logx.Alert(fmt.Sprintf("%s watcher gave up: %v", w.Network(), err))
				}
				o.Errorf("%s watcher stopped: %v", w.Network(), err)
			}
		})
	}
	o.Infof("deposit orchestrator started with %d watchers", len(o.watchers))
}

// Stop closes every watcher, then waits for queued deposits and in-flight
// sweeps, which run on their own contexts and are not cut short.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.watching.Wait()
	o.deposits.Wait()
	o.sweeping.Wait()
	if o.opts.Publisher != nil {
		if err := o.opts.Publisher.Close(); err != nil {
			o.Errorf("close publisher: %v", err)
		}
	}
	o.Info("deposit orchestrator stopped")
}

// onDeposit is the watchers' handler. It only enqueues: events for the same
// user and network are handled in order on a worker, off the watcher goroutine.
func (o *Orchestrator) onDeposit(ctx context.Context, ev *types.DepositEvent) {
	depth := metrics.DepositQueueDepth.WithLabelValues(ev.Network)
	depth.Inc()
	// 入账不随 watcher 退出而中断
	detached := context.WithoutCancel(ctx)

	o.deposits.Submit(ev.UserId+":"+ev.Network, func() {
		depth.Dec()

		ctx := detached
		if o.opts.Deposit.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.opts.Deposit.Timeout)
			defer cancel()
		}

		err := o.HandleDeposit(ctx, ev)
		var dup *types.DuplicateDepositError
		switch {
		case err == nil:
		case errors.As(err, &dup):
			logx.WithContext(ctx).Debugf("duplicate deposit ignored: %v", err)
		default:
			logx.WithContext(ctx).Errorf("handle deposit %s on %s: %v", ev.Address, ev.Network, err)
		}
	})
}

// HandleDeposit credits ev exactly once and schedules a sweep of the address.
// Events for the same user and network are processed one at a time.
func (o *Orchestrator) HandleDeposit(ctx context.Context, ev *types.DepositEvent) error {
	network, err := constant.ParseNetwork(ev.Network)
	if err != nil {
		return err
	}

	_, err = o.locks.Do(lockKey(ev.UserId, network), func() (any, error) {
		return nil, o.credit(ctx, network, ev)
	})
	if err != nil {
		return err
	}

	if o.opts.Sweep.AutoSweep && o.opts.Sweeper != nil {
		o.scheduleSweep(network, ev.UserId, ev.AccountIndex)
	}
	return nil
}

func (o *Orchestrator) credit(ctx context.Context, network constant.Network, ev *types.DepositEvent) error {
	logger := logx.WithContext(ctx).WithFields(
		logx.Field("network", ev.Network),
		logx.Field("address", ev.Address),
		logx.Field("user", ev.UserId),
	)
	txHash := IdempotencyKey(ev)

	usd, unitPrice, err := o.opts.Oracle.ConvertToUSD(ctx, ev.Amount, network)
	if err != nil {
		return fmt.Errorf("price %s: %w", network, err)
	}

	inserted, err := o.opts.Ledger.InsertPendingDeposit(ctx, &model.PendingDeposits{
		UserId:       ev.UserId,
		TxHash:       txHash,
		Network:      ev.Network,
		Address:      ev.Address,
		AmountCrypto: ev.Amount,
		Status:       model.DepositStatusCredited,
		CreatedAt:    ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert pending deposit: %w", err)
	}
	if !inserted {
		metrics.DepositsDuplicate.WithLabelValues(ev.Network).Inc()
		return &types.DuplicateDepositError{UserId: ev.UserId, TxHash: txHash, Network: ev.Network}
	}

	if err := o.opts.Ledger.CreditBalance(ctx, ev.UserId, usd); err != nil {
		// 幂等记录已写入, 这笔入账需要人工补记
		logx.Alert(fmt.Sprintf("credit %s failed after recording %s: %v", ev.UserId, txHash, err))
		return fmt.Errorf("credit balance: %w", err)
	}
	if err := o.opts.Ledger.InsertAuditRecord(ctx, &model.DepositAudits{
		Id:           uuid.New(),
		UserId:       ev.UserId,
		Network:      ev.Network,
		Address:      ev.Address,
		TxHash:       txHash,
		AmountCrypto: ev.Amount,
		AmountUsd:    usd,
		PriceUsd:     unitPrice,
		CreatedAt:    time.Now(),
	}); err != nil {
		logger.Errorf("audit record for %s: %v", txHash, err)
	}

	metrics.DepositsCredited.WithLabelValues(ev.Network).Inc()
	logger.Infof("credited %s %s = $%s", ev.Amount, network.Symbol(), usd.StringFixed(2))

	if o.opts.Publisher != nil {
		err := o.opts.Publisher.Publish(ctx, &types.CreditedDeposit{
			DepositEvent: *ev,
			TxHash:       txHash,
			AmountUSD:    usd,
			PriceUSD:     unitPrice,
		})
		if err != nil {
			logger.Errorf("publish deposit %s: %v", txHash, err)
		}
	}
	return nil
}

func (o *Orchestrator) scheduleSweep(network constant.Network, userId string, accountIndex uint32) {
	o.sweeping.Add(1)
	o.runner.Schedule(func() {
		defer o.sweeping.Done()

		ctx := context.Background()
		if o.opts.Sweep.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.opts.Sweep.Timeout)
			defer cancel()
		}

		_, err := o.locks.Do(lockKey(userId, network), func() (any, error) {
			return o.opts.Sweeper.Sweep(ctx, network, userId, accountIndex, sweep.ReasonDeposit)
		})
		if err != nil {
			// 归集失败不回滚入账, 下一次入账或手动归集会重试
			o.Errorf("sweep %s account %d of %s failed: %v", network, accountIndex, userId, err)
		}
	})
}

// SweepUser sweeps one user's custodial address on network.
func (o *Orchestrator) SweepUser(ctx context.Context, network constant.Network, userId string) (*types.SweepResult, error) {
	acct, err := o.opts.Accounts.FindOneByUserAndNetwork(ctx, userId, string(network))
	if err != nil {
		return nil, err
	}

	res, err := o.locks.Do(lockKey(userId, network), func() (any, error) {
		return o.opts.Sweeper.Sweep(ctx, network, userId, acct.AccountIndex, sweep.ReasonManual)
	})
	if err != nil {
		return nil, err
	}
	result, _ := res.(*types.SweepResult)
	return result, nil
}

// SweepAll sweeps every registered address. An empty network means all networks.
func (o *Orchestrator) SweepAll(ctx context.Context, network constant.Network) (*types.SweepResp, error) {
	networks := o.opts.Sweeper.Networks()
	if network != "" {
		networks = []constant.Network{network}
	}

	total := &types.SweepResp{Results: []*types.SweepResult{}}
	for _, n := range networks {
		accounts, err := o.opts.Accounts.GetAddressesForNetwork(ctx, string(n))
		if err != nil {
			return nil, fmt.Errorf("load %s accounts: %w", n, err)
		}
		resp := o.opts.Sweeper.SweepAll(ctx, n, accounts, o.guard)
		total.Results = append(total.Results, resp.Results...)
		total.Skipped += resp.Skipped
		total.Failed = append(total.Failed, resp.Failed...)
	}
	total.Message = fmt.Sprintf("%d swept, %d skipped, %d failed", len(total.Results), total.Skipped, len(total.Failed))
	return total, nil
}

func (o *Orchestrator) guard(acct model.WatchedAccount, network constant.Network, fn func() error) error {
	_, err := o.locks.Do(lockKey(acct.UserId, network), func() (any, error) {
		return nil, fn()
	})
	return err
}
