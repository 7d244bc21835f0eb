package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/pkg/retry"
	"custody/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	}
	return "DISCONNECTED"
}

var errSessionClosed = errors.New("session closed")

// BalanceSnapshot is a live balance reading in minor units.
type BalanceSnapshot struct {
	Address string
	Balance *big.Int
}

// Session is one live connection to a network's realtime API.
type Session interface {
	// Subscribe starts pushing snapshots for address and returns its current balance.
	Subscribe(ctx context.Context, address string) (*big.Int, error)
	Snapshots() <-chan BalanceSnapshot
	// Err delivers a transport failure; the session is unusable afterwards.
	Err() <-chan error
	// Close unsubscribes every address and closes the transport.
	Close() error
}

// Subscriber opens sessions for one network.
type Subscriber interface {
	Network() constant.Network
	Dial(ctx context.Context) (Session, error)
}

// AddressRegistry is the authoritative list of custodial addresses.
type AddressRegistry interface {
	GetAddressesForNetwork(ctx context.Context, network string) ([]model.WatchedAccount, error)
}

// DepositHandler receives deposit events. It must not block for long.
type DepositHandler func(ctx context.Context, ev *types.DepositEvent)

// Watcher keeps one network's custodial addresses subscribed and turns
// balance increases into deposit events.
type Watcher struct {
	network    constant.Network
	subscriber Subscriber
	registry   AddressRegistry
	book       *AddressBook
	handler    DepositHandler
	conf       config.WatcherConf
	state      atomic.Int32
	now        func() time.Time
	// addresses the current session failed to subscribe; owned by the Run goroutine
	unsubscribed map[string]struct{}
	logx.Logger
}

func NewWatcher(sub Subscriber, registry AddressRegistry, book *AddressBook, handler DepositHandler, c config.WatcherConf) *Watcher {
	return &Watcher{
		network:    sub.Network(),
		subscriber: sub,
		registry:   registry,
		book:       book,
		handler:      handler,
		conf:         c,
		now:          time.Now,
		unsubscribed: make(map[string]struct{}),
		Logger:     logx.WithContext(context.Background()).WithFields(logx.Field("network", string(sub.Network()))),
	}
}

func (w *Watcher) Network() constant.Network { return w.network }

func (w *Watcher) State() State { return State(w.state.Load()) }

func (w *Watcher) Book() *AddressBook { return w.book }

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
	metrics.WatcherState.WithLabelValues(string(w.network)).Set(float64(s))
}

// Run blocks until ctx is done (returning nil) or reconnecting gave up
// (returning a *types.ConnectionError).
func (w *Watcher) Run(ctx context.Context) error {
	defer w.setState(StateDisconnected)

	if err := w.refresh(ctx, nil); err != nil {
		w.Errorf("initial address load failed: %v", err)
	}

	refresh := time.NewTicker(w.conf.RefreshInterval)
	defer refresh.Stop()

	for {
		session, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = w.serve(ctx, session, refresh.C)
		if closeErr := session.Close(); closeErr != nil {
			w.Errorf("close session: %v", closeErr)
		}
		w.setState(StateDisconnected)
		if ctx.Err() != nil {
			w.Infof("watcher stopped, unsubscribed %d addresses", w.book.Len())
			return nil
		}

		metrics.WatcherReconnects.WithLabelValues(string(w.network)).Inc()
		w.Errorf("connection lost, reconnecting: %v", err)
	}
}

// connect dials with bounded retries and resubscribes every tracked address.
func (w *Watcher) connect(ctx context.Context) (Session, error) {
	w.setState(StateConnecting)

	cfg := retry.Config{
		Attempts: w.conf.ReconnectAttempts,
		Delay:    w.conf.ReconnectDelay,
		MaxDelay: w.conf.MaxReconnectDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			w.Errorf("connect attempt %d failed: %v, retrying in %s", attempt, err, delay)
		},
	}
	session, err := retry.DoWithResult(ctx, cfg, func() (Session, error) {
		return w.dial(ctx)
	})
	if err != nil {
		w.setState(StateDisconnected)
		return nil, &types.ConnectionError{
			Network:  string(w.network),
			Attempts: w.conf.ReconnectAttempts,
			Err:      err,
		}
	}

	w.setState(StateSubscribed)
	metrics.WatchedAddresses.WithLabelValues(string(w.network)).Set(float64(w.book.Len()))
	w.Infof("subscribed to %d addresses, %d skipped", w.book.Len()-len(w.unsubscribed), len(w.unsubscribed))
	return session, nil
}

// dial fails only when the transport cannot be opened. An address that
// cannot be subscribed is skipped and retried on the next refresh.
func (w *Watcher) dial(ctx context.Context) (Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, w.conf.ConnectTimeout)
	defer cancel()

	session, err := w.subscriber.Dial(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	clear(w.unsubscribed)
	for _, addr := range w.book.Addresses() {
		if err := w.subscribe(ctx, session, addr); err != nil {
			w.skip(addr, err)
		}
	}
	return session, nil
}

func (w *Watcher) skip(address string, err error) {
	w.unsubscribed[w.book.normalize(address)] = struct{}{}
	metrics.WatcherSubscribeFailures.WithLabelValues(string(w.network)).Inc()
	w.WithFields(logx.Field("address", address)).Errorf("subscribe failed, will retry on next refresh: %v", err)
}

func (w *Watcher) subscribe(ctx context.Context, session Session, address string) error {
	subCtx, cancel := context.WithTimeout(ctx, w.conf.ConnectTimeout)
	defer cancel()

	balance, err := session.Subscribe(subCtx, address)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", address, err)
	}
	// 重连后的首个余额同样参与比较, 断线期间到账的金额不会丢
	w.observe(ctx, BalanceSnapshot{Address: address, Balance: balance})
	return nil
}

func (w *Watcher) serve(ctx context.Context, session Session, refresh <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-session.Err():
			if err == nil {
				err = errSessionClosed
			}
			return err
		case snap, ok := <-session.Snapshots():
			if !ok {
				return errSessionClosed
			}
			w.observe(ctx, snap)
		case <-refresh:
			if err := w.refresh(ctx, session); err != nil {
				w.Errorf("address refresh failed: %v", err)
			}
		}
	}
}

// refresh re-reads the registry, retries addresses skipped earlier and
// subscribes addresses that are new. Existing subscriptions are left untouched.
func (w *Watcher) refresh(ctx context.Context, session Session) error {
	accounts, err := w.registry.GetAddressesForNetwork(ctx, string(w.network))
	if err != nil {
		return err
	}

	listed := make(map[string]struct{}, len(accounts))
	for _, acct := range accounts {
		listed[w.book.normalize(acct.Address)] = struct{}{}
	}
	for addr := range w.unsubscribed {
		if _, ok := listed[addr]; !ok {
			// 已从注册表移除, 不再重试
			delete(w.unsubscribed, addr)
			w.book.Forget(addr)
		}
	}

	if session != nil {
		for addr := range w.unsubscribed {
			if err := w.subscribe(ctx, session, addr); err != nil {
				w.skip(addr, err)
				continue
			}
			delete(w.unsubscribed, addr)
			w.Infof("subscribed %s after earlier failure", addr)
		}
	}

	added := 0
	for _, acct := range accounts {
		if !w.book.Track(acct) {
			continue
		}
		added++
		if session == nil {
			continue
		}
		if err := w.subscribe(ctx, session, acct.Address); err != nil {
			w.skip(acct.Address, err)
		}
	}

	if added > 0 {
		w.Infof("tracking %d new addresses, %d total", added, w.book.Len())
	}
	metrics.WatchedAddresses.WithLabelValues(string(w.network)).Set(float64(w.book.Len()))
	return nil
}

func (w *Watcher) observe(ctx context.Context, snap BalanceSnapshot) {
	if snap.Balance == nil {
		return
	}
	obs, ok := w.book.Observe(snap.Address, snap.Balance)
	if !ok {
		return
	}

	ev := &types.DepositEvent{
		Network:         string(w.network),
		Address:         obs.Address,
		UserId:          obs.UserId,
		AccountIndex:    obs.AccountIndex,
		PreviousBalance: obs.Previous,
		NewBalance:      obs.Current,
		Delta:           obs.Delta,
		Amount:          w.network.ToMainUnit(obs.Delta),
		Timestamp:       w.now(),
	}
	metrics.DepositsDetected.WithLabelValues(string(w.network)).Inc()
	w.Infof("deposit detected: address=%s user=%s %s -> %s (+%s %s)",
		ev.Address, ev.UserId, ev.PreviousBalance, ev.NewBalance, ev.Amount, w.network.Symbol())

	if w.handler != nil {
		w.handler(ctx, ev)
	}
}
