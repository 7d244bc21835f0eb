package monitor

import (
	"math/big"
	"sort"
	"sync"

	"custody/internal/constant"
	"custody/internal/logic/wallet"
	"custody/internal/model"
)

// WatchedAddress is the per-address state a watcher keeps between snapshots.
type WatchedAddress struct {
	Address          string
	UserId           string
	AccountIndex     uint32
	LastKnownBalance *big.Int // nil until the first snapshot
}

// Observation is the outcome of comparing a snapshot with the stored balance.
type Observation struct {
	Address      string
	UserId       string
	AccountIndex uint32
	Previous     *big.Int
	Current      *big.Int
	Delta        *big.Int
}

// AddressBook owns the tracked addresses of one watcher. Every method is
// safe for concurrent use; Observe is an atomic compare-and-update.
type AddressBook struct {
	mu        sync.Mutex
	entries   map[string]*WatchedAddress
	normalize func(string) string
}

func NewAddressBook(network constant.Network) *AddressBook {
	b := &AddressBook{
		entries:   make(map[string]*WatchedAddress),
		normalize: func(s string) string { return s },
	}
	if network == constant.NetworkEthereum {
		b.normalize = wallet.NormalizeEthereumAddress
	}
	return b
}

// Track adds the account or refreshes its owner. It reports whether the
// address was not tracked before.
func (b *AddressBook) Track(acct model.WatchedAccount) bool {
	addr := b.normalize(acct.Address)

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[addr]; ok {
		e.UserId = acct.UserId
		e.AccountIndex = acct.AccountIndex
		return false
	}
	b.entries[addr] = &WatchedAddress{
		Address:      addr,
		UserId:       acct.UserId,
		AccountIndex: acct.AccountIndex,
	}
	return true
}

// Forget drops an address that was tracked but never observed.
func (b *AddressBook) Forget(address string) {
	addr := b.normalize(address)

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[addr]; ok && e.LastKnownBalance == nil {
		delete(b.entries, addr)
	}
}

// Observe stores balance as the last known balance of address and returns an
// observation when it is an increase over a previously known balance for an
// owned address. The balance is stored in every case.
func (b *AddressBook) Observe(address string, balance *big.Int) (Observation, bool) {
	addr := b.normalize(address)
	current := new(big.Int).Set(balance)

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[addr]
	if !ok {
		e = &WatchedAddress{Address: addr}
		b.entries[addr] = e
	}
	prev := e.LastKnownBalance
	e.LastKnownBalance = current

	if prev == nil || current.Cmp(prev) <= 0 || e.UserId == "" {
		return Observation{}, false
	}
	return Observation{
		Address:      addr,
		UserId:       e.UserId,
		AccountIndex: e.AccountIndex,
		Previous:     prev,
		Current:      current,
		Delta:        new(big.Int).Sub(current, prev),
	}, true
}

// Balance returns the last known balance of address.
func (b *AddressBook) Balance(address string) (*big.Int, bool) {
	addr := b.normalize(address)

	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[addr]
	if !ok || e.LastKnownBalance == nil {
		return nil, false
	}
	return new(big.Int).Set(e.LastKnownBalance), true
}

// Addresses returns the tracked addresses in a stable order.
func (b *AddressBook) Addresses() []string {
	b.mu.Lock()
	addrs := make([]string, 0, len(b.entries))
	for addr := range b.entries {
		addrs = append(addrs, addr)
	}
	b.mu.Unlock()

	sort.Strings(addrs)
	return addrs
}

func (b *AddressBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
