package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/model"
	"custody/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu       sync.Mutex
	accounts []model.WatchedAccount
}

func (r *fakeRegistry) set(accounts ...model.WatchedAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = accounts
}

func (r *fakeRegistry) GetAddressesForNetwork(ctx context.Context, network string) ([]model.WatchedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.WatchedAccount(nil), r.accounts...), nil
}

type fakeSession struct {
	sub        *fakeSubscriber
	snaps      chan BalanceSnapshot
	errCh      chan error
	mu         sync.Mutex
	subscribed []string
	closed     bool
}

func (s *fakeSession) Subscribe(ctx context.Context, address string) (*big.Int, error) {
	if err := s.sub.subscribeErr(address); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.subscribed = append(s.subscribed, address)
	s.mu.Unlock()
	return s.sub.balance(address), nil
}

func (s *fakeSession) Snapshots() <-chan BalanceSnapshot { return s.snaps }
func (s *fakeSession) Err() <-chan error                { return s.errCh }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

// push updates the chain balance and delivers a snapshot.
func (s *fakeSession) push(address string, balance int64) {
	s.sub.setBalance(address, balance)
	s.snaps <- BalanceSnapshot{Address: address, Balance: big.NewInt(balance)}
}

type fakeSubscriber struct {
	network  constant.Network
	mu       sync.Mutex
	balances map[string]*big.Int
	dialErr  error
	dials    int
	failing  map[string]error
	sessions chan *fakeSession
}

func newFakeSubscriber(network constant.Network) *fakeSubscriber {
	return &fakeSubscriber{
		network:  network,
		balances: map[string]*big.Int{},
		sessions: make(chan *fakeSession, 8),
	}
}

func (f *fakeSubscriber) Network() constant.Network { return f.network }

func (f *fakeSubscriber) Dial(ctx context.Context) (Session, error) {
	f.mu.Lock()
	f.dials++
	err := f.dialErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := &fakeSession{sub: f, snaps: make(chan BalanceSnapshot), errCh: make(chan error, 1)}
	f.sessions <- s
	return s, nil
}

func (f *fakeSubscriber) setFailing(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = map[string]error{}
	}
	if err == nil {
		delete(f.failing, address)
		return
	}
	f.failing[address] = err
}

func (f *fakeSubscriber) subscribeErr(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing[address]
}

func (f *fakeSubscriber) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeSubscriber) balance(address string) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (f *fakeSubscriber) setBalance(address string, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = big.NewInt(balance)
}

type eventSink struct {
	mu     sync.Mutex
	events []*types.DepositEvent
}

func (s *eventSink) handle(ctx context.Context, ev *types.DepositEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []*types.DepositEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.DepositEvent(nil), s.events...)
}

func testWatcherConf() config.WatcherConf {
	return config.WatcherConf{
		RefreshInterval:   time.Hour,
		ConnectTimeout:    time.Second,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		MaxReconnectDelay: 5 * time.Millisecond,
	}
}

type harness struct {
	sub     *fakeSubscriber
	reg     *fakeRegistry
	sink    *eventSink
	watcher *Watcher
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, network constant.Network, conf config.WatcherConf, accounts ...model.WatchedAccount) *harness {
	t.Helper()
	h := &harness{
		sub:  newFakeSubscriber(network),
		reg:  &fakeRegistry{},
		sink: &eventSink{},
		done: make(chan error, 1),
	}
	h.reg.set(accounts...)
	h.watcher = NewWatcher(h.sub, h.reg, NewAddressBook(network), h.sink.handle, conf)
	return h
}

func (h *harness) start(t *testing.T) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.watcher.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func startWatcher(t *testing.T, network constant.Network, conf config.WatcherConf, accounts ...model.WatchedAccount) *harness {
	t.Helper()
	return newHarness(t, network, conf, accounts...).start(t)
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

func (h *harness) nextSession(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-h.sub.sessions:
		require.Eventually(t, func() bool { return h.watcher.State() == StateSubscribed }, time.Second, time.Millisecond)
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not dial")
		return nil
	}
}

func (h *harness) waitBalance(t *testing.T, address string, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		b, ok := h.watcher.Book().Balance(address)
		return ok && b.Int64() == want
	}, time.Second, time.Millisecond)
}

func TestWatcherEmitsOnlyOnIncrease(t *testing.T) {
	h := startWatcher(t, constant.NetworkTron, testWatcherConf(),
		model.WatchedAccount{Address: "TAddr", UserId: "u1", AccountIndex: 4})
	s := h.nextSession(t)

	for _, b := range []int64{100, 250, 250, 120, 30} {
		s.push("TAddr", b)
	}
	h.waitBalance(t, "TAddr", 30)

	events := h.sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, int64(100), events[0].Delta.Int64())
	assert.Equal(t, int64(150), events[1].Delta.Int64())
	assert.Equal(t, "u1", events[1].UserId)
	assert.Equal(t, uint32(4), events[1].AccountIndex)
	assert.Equal(t, "0.00015", events[1].Amount.String())
}

func TestWatcherSolanaDelta(t *testing.T) {
	addr := "So1anaAddr"
	h := newHarness(t, constant.NetworkSolana, testWatcherConf(),
		model.WatchedAccount{Address: addr, UserId: "u1"})
	h.sub.setBalance(addr, 1_000_000_000)
	h.start(t)

	s := h.nextSession(t)
	s.push(addr, 1_050_000_000)
	h.waitBalance(t, addr, 1_050_000_000)

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "1000000000", events[0].PreviousBalance.String())
	assert.Equal(t, "1050000000", events[0].NewBalance.String())
	assert.Equal(t, "0.05", events[0].Amount.String())
	assert.Equal(t, "solana", events[0].Network)
}

func TestWatcherReconnectKeepsBalances(t *testing.T) {
	var accounts []model.WatchedAccount
	for i := 0; i < 10; i++ {
		accounts = append(accounts, model.WatchedAccount{
			Address:      fmt.Sprintf("0x%040x", i+1),
			UserId:       fmt.Sprintf("u%d", i),
			AccountIndex: uint32(i),
		})
	}
	h := newHarness(t, constant.NetworkEthereum, testWatcherConf(), accounts...)
	for i, acct := range accounts {
		h.sub.setBalance(acct.Address, int64(1000*(i+1)))
	}
	h.start(t)

	first := h.nextSession(t)
	require.Len(t, first.subscriptions(), 10)

	first.errCh <- errors.New("websocket: close 1006")
	second := h.nextSession(t)

	assert.True(t, first.isClosed())
	assert.Len(t, second.subscriptions(), 10)
	assert.Empty(t, h.sink.all())

	b, ok := h.watcher.Book().Balance(accounts[9].Address)
	require.True(t, ok)
	assert.Equal(t, int64(10000), b.Int64())
}

func TestWatcherCatchesDepositMissedDuringReconnect(t *testing.T) {
	h := startWatcher(t, constant.NetworkTron, testWatcherConf(),
		model.WatchedAccount{Address: "TAddr", UserId: "u1"})
	first := h.nextSession(t)
	first.push("TAddr", 500)

	// funds arrive while the connection is down
	h.sub.setBalance("TAddr", 800)
	first.errCh <- errors.New("eof")
	h.nextSession(t)
	h.waitBalance(t, "TAddr", 800)

	events := h.sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, int64(300), events[1].Delta.Int64())
}

func TestWatcherUnownedAddressUpdatesBalance(t *testing.T) {
	conf := testWatcherConf()
	conf.RefreshInterval = 10 * time.Millisecond
	h := startWatcher(t, constant.NetworkTron, conf,
		model.WatchedAccount{Address: "TAddr"})
	s := h.nextSession(t)

	s.push("TAddr", 700)
	h.waitBalance(t, "TAddr", 700)
	assert.Empty(t, h.sink.all())

	h.reg.set(model.WatchedAccount{Address: "TAddr", UserId: "late-owner"})
	require.Eventually(t, func() bool {
		h.watcher.Book().mu.Lock()
		defer h.watcher.Book().mu.Unlock()
		return h.watcher.Book().entries["TAddr"].UserId == "late-owner"
	}, time.Second, time.Millisecond)

	s.push("TAddr", 900)
	h.waitBalance(t, "TAddr", 900)

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(200), events[0].Delta.Int64())
}

func TestWatcherRefreshSubscribesOnlyNewAddresses(t *testing.T) {
	conf := testWatcherConf()
	conf.RefreshInterval = 10 * time.Millisecond
	h := startWatcher(t, constant.NetworkTron, conf,
		model.WatchedAccount{Address: "TOld", UserId: "u1"})
	s := h.nextSession(t)

	h.reg.set(
		model.WatchedAccount{Address: "TOld", UserId: "u1"},
		model.WatchedAccount{Address: "TNew", UserId: "u2"},
	)
	require.Eventually(t, func() bool { return len(s.subscriptions()) == 2 }, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"TOld", "TNew"}, s.subscriptions())
}

func TestWatcherGivesUpAfterAttempts(t *testing.T) {
	sub := newFakeSubscriber(constant.NetworkSolana)
	sub.dialErr = errors.New("connection refused")
	w := NewWatcher(sub, &fakeRegistry{}, NewAddressBook(constant.NetworkSolana), nil, testWatcherConf())

	err := w.Run(context.Background())

	var connErr *types.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "solana", connErr.Network)
	assert.Equal(t, 3, sub.dialCount())
	assert.Equal(t, StateDisconnected, w.State())
}

func TestWatcherSkipsAddressThatFailsToSubscribe(t *testing.T) {
	h := newHarness(t, constant.NetworkTron, testWatcherConf(),
		model.WatchedAccount{Address: "TGood", UserId: "u1"},
		model.WatchedAccount{Address: "TBad", UserId: "u2"},
	)
	h.sub.setFailing("TBad", errors.New("invalid address"))
	h.start(t)

	s := h.nextSession(t)
	assert.Equal(t, []string{"TGood"}, s.subscriptions())

	s.push("TGood", 100)
	h.waitBalance(t, "TGood", 100)

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "TGood", events[0].Address)
	assert.Equal(t, 1, h.sub.dialCount())
	assert.Equal(t, StateSubscribed, h.watcher.State())
}

func TestWatcherRetriesSkippedAddressOnRefresh(t *testing.T) {
	conf := testWatcherConf()
	conf.RefreshInterval = 10 * time.Millisecond
	h := newHarness(t, constant.NetworkTron, conf,
		model.WatchedAccount{Address: "TGood", UserId: "u1"},
		model.WatchedAccount{Address: "TBad", UserId: "u2"},
	)
	h.sub.setFailing("TBad", errors.New("429 too many requests"))
	h.sub.setBalance("TBad", 40)
	h.start(t)

	s := h.nextSession(t)
	time.Sleep(30 * time.Millisecond)
	assert.NotContains(t, s.subscriptions(), "TBad")

	h.sub.setFailing("TBad", nil)
	require.Eventually(t, func() bool {
		for _, a := range s.subscriptions() {
			if a == "TBad" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	h.waitBalance(t, "TBad", 40)

	s.push("TBad", 90)
	h.waitBalance(t, "TBad", 90)

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "u2", events[0].UserId)
	assert.Equal(t, int64(50), events[0].Delta.Int64())
	assert.Equal(t, 1, h.sub.dialCount())
}
