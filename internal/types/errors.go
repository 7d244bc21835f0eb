package types

import (
	"fmt"
	"math/big"
)

// ConnectionError is returned by a watcher once its reconnect attempts are exhausted.
type ConnectionError struct {
	Network  string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection lost after %d attempts: %v", e.Network, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DerivationError means the seed or path could not produce a usable key.
// It is never recoverable at runtime.
type DerivationError struct {
	Network string
	Path    string
	Err     error
}

func (e *DerivationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("derive %s key: %v", e.Network, e.Err)
	}
	return fmt.Sprintf("derive %s key at %s: %v", e.Network, e.Path, e.Err)
}

func (e *DerivationError) Unwrap() error { return e.Err }

// InsufficientFundsError signals that a sweep was skipped because the
// balance does not cover the fee. Callers treat it as a no-op.
type InsufficientFundsError struct {
	Network string
	Address string
	Balance *big.Int
	Fee     *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s %s: balance %s does not cover fee %s", e.Network, e.Address, e.Balance, e.Fee)
}

// BroadcastError wraps a rejected or failed transaction submission.
type BroadcastError struct {
	Network string
	Address string
	Err     error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("%s broadcast from %s failed: %v", e.Network, e.Address, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// DuplicateDepositError is returned when the ledger already holds the idempotency key.
type DuplicateDepositError struct {
	UserId  string
	TxHash  string
	Network string
}

func (e *DuplicateDepositError) Error() string {
	return fmt.Sprintf("deposit %s for user %s on %s already recorded", e.TxHash, e.UserId, e.Network)
}
