package sweep

import (
	"context"
	"fmt"
	"math/big"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/logic/wallet"

	"github.com/ethereum/go-ethereum/common"
	evmTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/zeromicro/go-zero/core/logx"
)

// 原生 ETH 转账固定消耗 21000 gas
const nativeTransferGas uint64 = 21000

// EthereumChain sweeps native ETH with legacy EIP-155 transactions.
type EthereumChain struct {
	client           *ethclient.Client
	chainId          *big.Int
	collection       string
	fallbackGasPrice *big.Int
}

func NewEthereumChain(c config.EthereumConf) (*EthereumChain, error) {
	client, err := ethclient.Dial(c.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum rpc: %w", err)
	}
	return &EthereumChain{
		client:           client,
		chainId:          big.NewInt(c.ChainId),
		collection:       c.CollectionAddress,
		fallbackGasPrice: big.NewInt(c.FallbackGasPriceWei),
	}, nil
}

func (c *EthereumChain) Network() constant.Network { return constant.NetworkEthereum }

func (c *EthereumChain) CollectionAddress() string { return c.collection }

func (c *EthereumChain) Close() { c.client.Close() }

func (c *EthereumChain) Balance(ctx context.Context, address string) (*big.Int, error) {
	return c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (c *EthereumChain) gasPrice(ctx context.Context) *big.Int {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil || price.Sign() <= 0 {
		logx.WithContext(ctx).Errorf("获取 gas price 失败, 使用默认值 %s wei: %v", c.fallbackGasPrice, err)
		return new(big.Int).Set(c.fallbackGasPrice)
	}
	return price
}

func (c *EthereumChain) EstimateFee(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(c.gasPrice(ctx), new(big.Int).SetUint64(nativeTransferGas)), nil
}

// Send derives the gas price back from fee so the transaction spends exactly
// what EstimateFee reserved.
func (c *EthereumChain) Send(ctx context.Context, kp *wallet.Keypair, to string, amount, fee *big.Int) (string, error) {
	priv, err := kp.ECDSA()
	if err != nil {
		return "", err
	}

	nonce, err := c.client.PendingNonceAt(ctx, common.HexToAddress(kp.Address))
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	toAddr := common.HexToAddress(to)
	gasPrice := new(big.Int).Div(fee, new(big.Int).SetUint64(nativeTransferGas))
	tx := evmTypes.NewTx(&evmTypes.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    amount,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})

	signedTx, err := evmTypes.SignTx(tx, evmTypes.NewEIP155Signer(c.chainId), priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}
