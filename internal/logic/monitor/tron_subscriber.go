package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"custody/internal/config"
	"custody/internal/constant"

	"github.com/zeromicro/go-zero/core/logx"
)

// maxFailedRounds is how many consecutive fully failed polling rounds end a session.
const maxFailedRounds = 3

// TronBalanceSource reads account balances in sun.
type TronBalanceSource interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}

// TronSubscriber emulates a push subscription by polling TronGrid, which has
// no account-change stream.
type TronSubscriber struct {
	source   TronBalanceSource
	interval time.Duration
}

func NewTronSubscriber(source TronBalanceSource, c config.TronConf) *TronSubscriber {
	return &TronSubscriber{source: source, interval: c.PollInterval}
}

func (s *TronSubscriber) Network() constant.Network { return constant.NetworkTron }

func (s *TronSubscriber) Dial(ctx context.Context) (Session, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	sess := &tronSession{
		source:   s.source,
		interval: s.interval,
		watched:  make(map[string]struct{}),
		snaps:    make(chan BalanceSnapshot, 256),
		errCh:    make(chan error, 1),
		ctx:      runCtx,
		cancel:   cancel,
	}
	go sess.loop()
	return sess, nil
}

type tronSession struct {
	source   TronBalanceSource
	interval time.Duration

	mu      sync.Mutex
	watched map[string]struct{}

	snaps  chan BalanceSnapshot
	errCh  chan error
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *tronSession) Subscribe(ctx context.Context, address string) (*big.Int, error) {
	balance, err := s.source.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.watched[address] = struct{}{}
	s.mu.Unlock()
	return balance, nil
}

func (s *tronSession) Snapshots() <-chan BalanceSnapshot { return s.snaps }

func (s *tronSession) Err() <-chan error { return s.errCh }

func (s *tronSession) Close() error {
	s.cancel()
	return nil
}

func (s *tronSession) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	failed := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.poll()
		if err == nil {
			failed = 0
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		failed++
		logx.Errorf("tron polling round failed (%d/%d): %v", failed, maxFailedRounds, err)
		if failed >= maxFailedRounds {
			s.errCh <- err
			return
		}
	}
}

// poll returns an error only when no address could be read.
func (s *tronSession) poll() error {
	s.mu.Lock()
	addrs := make([]string, 0, len(s.watched))
	for a := range s.watched {
		addrs = append(addrs, a)
	}
	s.mu.Unlock()

	var lastErr error
	ok := 0
	for _, addr := range addrs {
		balance, err := s.source.GetBalance(s.ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		ok++
		select {
		case s.snaps <- BalanceSnapshot{Address: addr, Balance: balance}:
		case <-s.ctx.Done():
			return nil
		}
	}
	if len(addrs) > 0 && ok == 0 {
		return fmt.Errorf("all %d balance reads failed: %w", len(addrs), lastErr)
	}
	return nil
}
