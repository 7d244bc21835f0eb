package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/logic/wallet"
	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/pkg/retry"
	"custody/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"
)

const (
	ReasonDeposit = "deposit"
	ReasonManual  = "manual"
)

var ErrUnsupportedNetwork = errors.New("network not configured for sweeping")

// Chain is the per-network transfer backend.
type Chain interface {
	Network() constant.Network
	// CollectionAddress is where swept funds go.
	CollectionAddress() string
	Balance(ctx context.Context, address string) (*big.Int, error)
	// EstimateFee returns the fee in minor units for moving amount from -> to.
	EstimateFee(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error)
	// Send signs with kp and broadcasts. A returned hash means the network accepted it.
	Send(ctx context.Context, kp *wallet.Keypair, to string, amount, fee *big.Int) (string, error)
}

// Deriver produces signing keys on demand.
type Deriver interface {
	Derive(network constant.Network, index uint32) (*wallet.Keypair, error)
}

// Guard runs fn while holding whatever lock protects the account.
type Guard func(acct model.WatchedAccount, network constant.Network, fn func() error) error

// Engine moves the whole spendable balance of a custodial address to the
// network's collection address.
type Engine struct {
	deriver Deriver
	chains  map[constant.Network]Chain
	limiter *rate.Limiter
	retry   retry.Config
	logx.Logger
}

func NewEngine(deriver Deriver, c config.SweepConf, chains ...Chain) *Engine {
	e := &Engine{
		deriver: deriver,
		chains:  make(map[constant.Network]Chain, len(chains)),
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   retry.DefaultConfig(),
		Logger:  logx.WithContext(context.Background()),
	}
	if c.MinInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(c.MinInterval), 1)
	}
	for _, ch := range chains {
		e.chains[ch.Network()] = ch
	}
	return e
}

// Networks lists the networks that have a chain backend.
func (e *Engine) Networks() []constant.Network {
	var out []constant.Network
	for _, n := range constant.SupportedNetworks {
		if _, ok := e.chains[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Sweep transfers balance minus fee from the account at accountIndex. It
// returns nil, nil when there is nothing worth sweeping.
func (e *Engine) Sweep(ctx context.Context, network constant.Network, userId string, accountIndex uint32, reason string) (*types.SweepResult, error) {
	chain, ok := e.chains[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	to := chain.CollectionAddress()
	if to == "" {
		return nil, fmt.Errorf("%s: collection address not configured", network)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	kp, err := e.deriver.Derive(network, accountIndex)
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	logger := logx.WithContext(ctx).WithFields(
		logx.Field("network", string(network)),
		logx.Field("address", kp.Address),
		logx.Field("user", userId),
	)

	balance, err := retry.DoWithResult(ctx, e.retry, func() (*big.Int, error) {
		return chain.Balance(ctx, kp.Address)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s balance of %s: %w", network, kp.Address, err)
	}
	if balance.Sign() == 0 {
		logger.Debugf("nothing to sweep")
		metrics.Sweeps.WithLabelValues(string(network), "empty").Inc()
		return nil, nil
	}

	fee, err := retry.DoWithResult(ctx, e.retry, func() (*big.Int, error) {
		return chain.EstimateFee(ctx, kp.Address, to, balance)
	})
	if err != nil {
		return nil, fmt.Errorf("estimate %s fee: %w", network, err)
	}

	amount := new(big.Int).Sub(balance, fee)
	if amount.Sign() <= 0 {
		skip := &types.InsufficientFundsError{
			Network: string(network),
			Address: kp.Address,
			Balance: balance,
			Fee:     fee,
		}
		logger.Infof("sweep skipped: %v", skip)
		metrics.Sweeps.WithLabelValues(string(network), "insufficient").Inc()
		return nil, nil
	}

	start := time.Now()
	txHash, err := chain.Send(ctx, kp, to, amount, fee)
	if err != nil {
		metrics.Sweeps.WithLabelValues(string(network), "failed").Inc()
		return nil, &types.BroadcastError{Network: string(network), Address: kp.Address, Err: err}
	}
	metrics.Sweeps.WithLabelValues(string(network), "sent").Inc()
	logger.WithDuration(time.Since(start)).Infof("swept %s %s to %s (fee %s, %s): %s",
		network.ToMainUnit(amount), network.Symbol(), to, fee, reason, txHash)

	return &types.SweepResult{
		TxHash:            txHash,
		Network:           string(network),
		AmountTransferred: amount,
		Fee:               fee,
		FromAddress:       kp.Address,
		ToAddress:         to,
		Reason:            reason,
	}, nil
}

// SweepAll sweeps accounts one after another, spaced by the engine's limiter.
// A failing account does not stop the run.
func (e *Engine) SweepAll(ctx context.Context, network constant.Network, accounts []model.WatchedAccount, guard Guard) *types.SweepResp {
	resp := &types.SweepResp{Results: []*types.SweepResult{}}
	for _, acct := range accounts {
		if ctx.Err() != nil {
			resp.Failed = append(resp.Failed, fmt.Sprintf("%s:%s: %v", network, acct.Address, ctx.Err()))
			break
		}

		var res *types.SweepResult
		run := func() error {
			var err error
			res, err = e.Sweep(ctx, network, acct.UserId, acct.AccountIndex, ReasonManual)
			return err
		}
		var err error
		if guard != nil {
			err = guard(acct, network, run)
		} else {
			err = run()
		}

		switch {
		case err != nil:
			e.Errorf("sweep %s %s failed: %v", network, acct.Address, err)
			resp.Failed = append(resp.Failed, fmt.Sprintf("%s:%s: %v", network, acct.Address, err))
		case res == nil:
			resp.Skipped++
		default:
			resp.Results = append(resp.Results, res)
		}
	}
	resp.Message = fmt.Sprintf("%s: %d swept, %d skipped, %d failed",
		network, len(resp.Results), resp.Skipped, len(resp.Failed))
	return resp
}
