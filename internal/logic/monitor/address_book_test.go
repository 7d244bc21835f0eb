package monitor

import (
	"math/big"
	"sync"
	"testing"

	"custody/internal/constant"
	"custody/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressBookFirstSightingSeeds(t *testing.T) {
	b := NewAddressBook(constant.NetworkSolana)
	require.True(t, b.Track(model.WatchedAccount{Address: "A", UserId: "u1"}))
	require.False(t, b.Track(model.WatchedAccount{Address: "A", UserId: "u1"}))

	_, ok := b.Observe("A", big.NewInt(500))
	assert.False(t, ok)

	obs, ok := b.Observe("A", big.NewInt(800))
	require.True(t, ok)
	assert.Equal(t, int64(500), obs.Previous.Int64())
	assert.Equal(t, int64(300), obs.Delta.Int64())
	assert.Equal(t, "u1", obs.UserId)
}

func TestAddressBookDecreaseUpdatesSilently(t *testing.T) {
	b := NewAddressBook(constant.NetworkTron)
	b.Track(model.WatchedAccount{Address: "T1", UserId: "u1"})
	b.Observe("T1", big.NewInt(1000))

	_, ok := b.Observe("T1", big.NewInt(10))
	assert.False(t, ok)
	bal, _ := b.Balance("T1")
	assert.Equal(t, int64(10), bal.Int64())

	obs, ok := b.Observe("T1", big.NewInt(15))
	require.True(t, ok)
	assert.Equal(t, int64(5), obs.Delta.Int64())
}

func TestAddressBookNormalizesEthereum(t *testing.T) {
	b := NewAddressBook(constant.NetworkEthereum)
	b.Track(model.WatchedAccount{Address: "0x9858effd232b4033e47d90003d41ec34ecaeda94", UserId: "u1"})
	b.Observe("0x9858EfFD232B4033E47d90003D41EC34EcaEda94", big.NewInt(1))

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []string{"0x9858EfFD232B4033E47d90003D41EC34EcaEda94"}, b.Addresses())
	_, ok := b.Balance("0x9858EFFD232B4033E47D90003D41EC34ECAEDA94")
	assert.True(t, ok)
}

func TestAddressBookForgetKeepsObserved(t *testing.T) {
	b := NewAddressBook(constant.NetworkTron)
	b.Track(model.WatchedAccount{Address: "T1"})
	b.Track(model.WatchedAccount{Address: "T2"})
	b.Observe("T2", big.NewInt(3))

	b.Forget("T1")
	b.Forget("T2")
	assert.Equal(t, []string{"T2"}, b.Addresses())
}

func TestAddressBookConcurrentIncreaseEmitsOnce(t *testing.T) {
	b := NewAddressBook(constant.NetworkSolana)
	b.Track(model.WatchedAccount{Address: "A", UserId: "u1"})
	b.Observe("A", big.NewInt(100))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := b.Observe("A", big.NewInt(200)); ok {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, emitted)
}
