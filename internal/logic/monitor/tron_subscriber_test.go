package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"custody/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTronSource struct {
	mu       sync.Mutex
	balances map[string]int64
	err      error
}

func (s *stubTronSource) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(s.balances[address]), nil
}

func (s *stubTronSource) set(address string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = v
}

func (s *stubTronSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func TestTronSessionPollsSubscribedAddresses(t *testing.T) {
	src := &stubTronSource{balances: map[string]int64{"T1": 5}}
	sub := NewTronSubscriber(src, config.TronConf{PollInterval: 5 * time.Millisecond})

	sess, err := sub.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	bal, err := sess.Subscribe(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())

	src.set("T1", 9)
	require.Eventually(t, func() bool {
		select {
		case snap := <-sess.Snapshots():
			return snap.Address == "T1" && snap.Balance.Int64() == 9
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestTronSessionReportsRepeatedFailures(t *testing.T) {
	src := &stubTronSource{balances: map[string]int64{}}
	sub := NewTronSubscriber(src, config.TronConf{PollInterval: time.Millisecond})

	sess, err := sub.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Subscribe(context.Background(), "T1")
	require.NoError(t, err)
	src.fail(errors.New("503 service unavailable"))

	select {
	case err := <-sess.Err():
		assert.ErrorContains(t, err, "503")
	case <-time.After(2 * time.Second):
		t.Fatal("expected session error")
	}
}
