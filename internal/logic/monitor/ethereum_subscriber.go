package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"custody/internal/config"
	"custody/internal/constant"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	balanceBatchSize = 100
	headPollTimeout  = 10 * time.Second
)

// EthereumSubscriber 订阅新区块头, 每个区块批量查询被监控地址的余额
type EthereumSubscriber struct {
	wsUrl   string
	chainId int64
}

func NewEthereumSubscriber(c config.EthereumConf) *EthereumSubscriber {
	return &EthereumSubscriber{wsUrl: c.WsUrl, chainId: c.ChainId}
}

func (s *EthereumSubscriber) Network() constant.Network { return constant.NetworkEthereum }

func (s *EthereumSubscriber) Dial(ctx context.Context) (Session, error) {
	client, err := ethclient.DialContext(ctx, s.wsUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum websocket: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if s.chainId != 0 && chainID.Int64() != s.chainId {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, configured %d", chainID, s.chainId)
	}

	headers := make(chan *ethTypes.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to new heads: %w", err)
	}

	sess := &ethereumSession{
		client:  client,
		sub:     sub,
		headers: headers,
		watched: make(map[string]common.Address),
		snaps:   make(chan BalanceSnapshot, 256),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	go sess.loop()
	return sess, nil
}

type ethereumSession struct {
	client  *ethclient.Client
	sub     ethereum.Subscription
	headers chan *ethTypes.Header

	mu       sync.Mutex
	watched  map[string]common.Address
	lastHead *big.Int

	snaps chan BalanceSnapshot
	errCh chan error
	done  chan struct{}
	once  sync.Once
}

// Subscribe reads the balance at the last processed head so later polls never
// report an older state than the one returned here.
func (s *ethereumSession) Subscribe(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)

	s.mu.Lock()
	head := s.lastHead
	s.mu.Unlock()

	balance, err := s.client.BalanceAt(ctx, addr, head)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.watched[address] = addr
	s.mu.Unlock()
	return balance, nil
}

func (s *ethereumSession) Snapshots() <-chan BalanceSnapshot { return s.snaps }

func (s *ethereumSession) Err() <-chan error { return s.errCh }

func (s *ethereumSession) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.sub.Unsubscribe()
		s.client.Close()
	})
	return nil
}

func (s *ethereumSession) loop() {
	for {
		select {
		case err := <-s.sub.Err():
			if err == nil {
				err = errSessionClosed
			}
			select {
			case s.errCh <- err:
			default:
			}
			return
		case header := <-s.headers:
			if err := s.poll(header.Number); err != nil {
				logx.Errorf("处理区块 %d 失败: %v", header.Number.Uint64(), err)
			}
		case <-s.done:
			return
		}
	}
}

// poll fetches every watched balance at block number in JSON-RPC batches.
func (s *ethereumSession) poll(number *big.Int) error {
	s.mu.Lock()
	if s.lastHead != nil && number.Cmp(s.lastHead) <= 0 {
		s.mu.Unlock()
		return nil
	}
	s.lastHead = new(big.Int).Set(number)
	addrs := make([]string, 0, len(s.watched))
	for a := range s.watched {
		addrs = append(addrs, a)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), headPollTimeout)
	defer cancel()

	block := hexutil.EncodeBig(number)
	for start := 0; start < len(addrs); start += balanceBatchSize {
		end := min(start+balanceBatchSize, len(addrs))
		chunk := addrs[start:end]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]hexutil.Big, len(chunk))
		for i, a := range chunk {
			batch[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []any{a, block},
				Result: &results[i],
			}
		}
		if err := s.client.Client().BatchCallContext(ctx, batch); err != nil {
			return fmt.Errorf("batch eth_getBalance: %w", err)
		}

		for i, elem := range batch {
			if elem.Error != nil {
				logx.Errorf("eth_getBalance %s at %s: %v", chunk[i], block, elem.Error)
				continue
			}
			snap := BalanceSnapshot{Address: chunk[i], Balance: results[i].ToInt()}
			select {
			case s.snaps <- snap:
			case <-s.done:
				return nil
			}
		}
	}
	return nil
}
