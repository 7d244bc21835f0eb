package monitor

import (
	"context"
	"math/big"
	"sync"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/pkg/solanaws"

	solanaClient "github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
)

// SolanaSubscriber opens accountSubscribe sessions against a Solana websocket endpoint.
type SolanaSubscriber struct {
	wsUrl      string
	commitment string
	rpc        *solanaClient.Client
}

func NewSolanaSubscriber(c config.SolanaConf) *SolanaSubscriber {
	return &SolanaSubscriber{
		wsUrl:      c.WsUrl,
		commitment: c.Commitment,
		rpc:        solanaClient.NewClient(c.RpcUrl),
	}
}

func (s *SolanaSubscriber) Network() constant.Network { return constant.NetworkSolana }

func (s *SolanaSubscriber) Dial(ctx context.Context) (Session, error) {
	ws, err := solanaws.Dial(ctx, s.wsUrl)
	if err != nil {
		return nil, err
	}
	sess := &solanaSession{
		sub:   s,
		ws:    ws,
		snaps: make(chan BalanceSnapshot, 256),
		done:  make(chan struct{}),
	}
	go sess.pump()
	return sess, nil
}

type solanaSession struct {
	sub   *SolanaSubscriber
	ws    *solanaws.Client
	snaps chan BalanceSnapshot
	done  chan struct{}
	once  sync.Once
}

func (s *solanaSession) Subscribe(ctx context.Context, address string) (*big.Int, error) {
	// 先读余额再订阅: 两者之间的变动会体现在下一次推送里
	lamports, err := s.sub.rpc.GetBalanceWithConfig(ctx, address, solanaClient.GetBalanceConfig{
		Commitment: rpc.Commitment(s.sub.commitment),
	})
	if err != nil {
		return nil, err
	}
	if err := s.ws.AccountSubscribe(ctx, address, s.sub.commitment); err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}

func (s *solanaSession) Snapshots() <-chan BalanceSnapshot { return s.snaps }

func (s *solanaSession) Err() <-chan error { return s.ws.Err() }

func (s *solanaSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ws.Close()
}

func (s *solanaSession) pump() {
	for {
		select {
		case n := <-s.ws.Notifications():
			snap := BalanceSnapshot{Address: n.Address, Balance: new(big.Int).SetUint64(n.Lamports)}
			select {
			case s.snaps <- snap:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}
