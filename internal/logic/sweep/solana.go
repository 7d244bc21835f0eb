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

	solanaClient "github.com/blocto/solana-go-sdk/client"
	solanaCommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/rpc"
	solanaTypes "github.com/blocto/solana-go-sdk/types"
)

const signatureStatusPoll = 500 * time.Millisecond

// SolanaChain sweeps SOL with a single system transfer.
type SolanaChain struct {
	client     *solanaClient.Client
	collection string
	commitment rpc.Commitment
}

func NewSolanaChain(c config.SolanaConf) *SolanaChain {
	return &SolanaChain{
		client:     solanaClient.NewClient(c.RpcUrl),
		collection: c.CollectionAddress,
		commitment: rpc.Commitment(c.Commitment),
	}
}

func (c *SolanaChain) Network() constant.Network { return constant.NetworkSolana }

func (c *SolanaChain) CollectionAddress() string { return c.collection }

func (c *SolanaChain) Balance(ctx context.Context, address string) (*big.Int, error) {
	lamports, err := c.client.GetBalanceWithConfig(ctx, address, solanaClient.GetBalanceConfig{
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}

func (c *SolanaChain) transferMessage(from, to string, lamports uint64, blockhash string) solanaTypes.Message {
	fromKey := solanaCommon.PublicKeyFromString(from)
	return solanaTypes.NewMessage(solanaTypes.NewMessageParam{
		FeePayer:        fromKey,
		RecentBlockhash: blockhash,
		Instructions: []solanaTypes.Instruction{
			system.Transfer(system.TransferParam{
				From:   fromKey,
				To:     solanaCommon.PublicKeyFromString(to),
				Amount: lamports,
			}),
		},
	})
}

// EstimateFee asks the cluster for the exact fee of the transfer message.
func (c *SolanaChain) EstimateFee(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	recent, err := c.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	fee, err := c.client.GetFeeForMessage(ctx, c.transferMessage(from, to, amount.Uint64(), recent.Blockhash))
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, errors.New("blockhash expired while estimating fee")
	}
	return new(big.Int).SetUint64(*fee), nil
}

func (c *SolanaChain) Send(ctx context.Context, kp *wallet.Keypair, to string, amount, fee *big.Int) (string, error) {
	account, err := solanaTypes.AccountFromBytes(kp.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to create solana account: %w", err)
	}

	recent, err := c.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solanaTypes.NewTransaction(solanaTypes.NewTransactionParam{
		Message: c.transferMessage(kp.Address, to, amount.Uint64(), recent.Blockhash),
		Signers: []solanaTypes.Account{account},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create transfer transaction: %w", err)
	}

	sig, err := c.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	if err := c.waitProcessed(ctx, sig); err != nil {
		return "", err
	}
	return sig, nil
}

// waitProcessed polls until the cluster has seen the signature.
func (c *SolanaChain) waitProcessed(ctx context.Context, sig string) error {
	ticker := time.NewTicker(signatureStatusPoll)
	defer ticker.Stop()
	for {
		status, err := c.client.GetSignatureStatus(ctx, sig)
		if err == nil && status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not acknowledged: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
