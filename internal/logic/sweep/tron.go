package sweep

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/logic/wallet"
	"custody/internal/pkg/tron"

	"github.com/ethereum/go-ethereum/crypto"
)

var errTransferMismatch = errors.New("tron node built a different transfer than requested")

// TronAPI is the subset of the TronGrid client used for sweeping.
type TronAPI interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	CreateTransfer(ctx context.Context, from, to string, amountSun int64) (*tron.Transaction, error)
	Broadcast(ctx context.Context, tx *tron.Transaction) (string, error)
}

// TronChain sweeps TRX. The fee is a flat reserve covering bandwidth burn.
type TronChain struct {
	api        TronAPI
	collection string
	feeReserve *big.Int
}

func NewTronChain(api TronAPI, c config.TronConf) *TronChain {
	return &TronChain{
		api:        api,
		collection: c.CollectionAddress,
		feeReserve: big.NewInt(c.FeeReserveSun),
	}
}

func (c *TronChain) Network() constant.Network { return constant.NetworkTron }

func (c *TronChain) CollectionAddress() string { return c.collection }

func (c *TronChain) Balance(ctx context.Context, address string) (*big.Int, error) {
	return c.api.GetBalance(ctx, address)
}

func (c *TronChain) EstimateFee(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	return new(big.Int).Set(c.feeReserve), nil
}

func (c *TronChain) Send(ctx context.Context, kp *wallet.Keypair, to string, amount, fee *big.Int) (string, error) {
	if !amount.IsInt64() {
		return "", fmt.Errorf("amount %s overflows int64 sun", amount)
	}
	tx, err := c.api.CreateTransfer(ctx, kp.Address, to, amount.Int64())
	if err != nil {
		return "", err
	}

	txID, err := c.verify(tx, kp.Address, to, amount.Int64())
	if err != nil {
		return "", err
	}
	priv, err := kp.ECDSA()
	if err != nil {
		return "", err
	}
	// txID 即 raw_data 的 sha256, 校验后直接对其签名
	sig, err := crypto.Sign(txID, priv)
	if err != nil {
		return "", fmt.Errorf("sign tron transaction: %w", err)
	}
	tx.Signature = []string{hex.EncodeToString(sig)}

	return c.api.Broadcast(ctx, tx)
}

// verify decodes the node-built raw_data and checks it is exactly the transfer
// that was requested. The returned txID is recomputed locally.
func (c *TronChain) verify(tx *tron.Transaction, from, to string, amount int64) ([]byte, error) {
	transfer, err := tron.DecodeTransfer(tx.RawDataHex)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hex.EncodeToString(transfer.TxID), tx.TxID) {
		return nil, fmt.Errorf("%w: txID %s does not hash raw_data", errTransferMismatch, tx.TxID)
	}

	owner, err := wallet.TronHexAddress(from)
	if err != nil {
		return nil, err
	}
	dest, err := wallet.TronHexAddress(to)
	if err != nil {
		return nil, err
	}
	switch {
	case hex.EncodeToString(transfer.OwnerAddress) != owner:
		return nil, fmt.Errorf("%w: owner %x, want %s", errTransferMismatch, transfer.OwnerAddress, owner)
	case hex.EncodeToString(transfer.ToAddress) != dest:
		return nil, fmt.Errorf("%w: destination %x, want %s", errTransferMismatch, transfer.ToAddress, dest)
	case transfer.Amount != amount:
		return nil, fmt.Errorf("%w: amount %d, want %d", errTransferMismatch, transfer.Amount, amount)
	}
	return transfer.TxID, nil
}
