package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/logic/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	evmTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEthChainId    = 11155111
	testEthCollection = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	gwei              = 1_000_000_000
)

func newTestEthereumChain(t *testing.T, handle rpcHandler) (*EthereumChain, *rpcNode) {
	t.Helper()
	node := newRPCNode(t, handle)
	chain, err := NewEthereumChain(config.EthereumConf{
		RpcUrl:              node.URL,
		ChainId:             testEthChainId,
		CollectionAddress:   testEthCollection,
		FallbackGasPriceWei: 20 * gwei,
	})
	require.NoError(t, err)
	t.Cleanup(chain.Close)
	return chain, node
}

func TestEthereumChainFee(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		err      error
		gasPrice int64
	}{
		{name: "oracle price", price: "0x3b9aca00", gasPrice: 1 * gwei},
		{name: "oracle error falls back", err: errors.New("method not available"), gasPrice: 20 * gwei},
		{name: "zero price falls back", price: "0x0", gasPrice: 20 * gwei},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain, node := newTestEthereumChain(t, func(method string, params []json.RawMessage) (any, error) {
				if method != "eth_gasPrice" {
					return nil, fmt.Errorf("unexpected %s", method)
				}
				if tc.err != nil {
					return nil, tc.err
				}
				return tc.price, nil
			})

			fee, err := chain.EstimateFee(context.Background(), "0x0", testEthCollection, big.NewInt(1))
			require.NoError(t, err)
			assert.Equal(t, new(big.Int).Mul(big.NewInt(tc.gasPrice), big.NewInt(21000)).String(), fee.String())
			assert.Equal(t, 1, node.called("eth_gasPrice"))
		})
	}
}

func TestEthereumChainSendSpendsReservedFee(t *testing.T) {
	d, err := wallet.NewKeyDeriverFromHex(testSeedHex)
	require.NoError(t, err)
	kp, err := d.Derive(constant.NetworkEthereum, 0)
	require.NoError(t, err)

	txs := make(chan *evmTypes.Transaction, 1)
	chain, _ := newTestEthereumChain(t, func(method string, params []json.RawMessage) (any, error) {
		switch method {
		case "eth_getTransactionCount":
			return "0x7", nil
		case "eth_sendRawTransaction":
			var raw string
			if err := json.Unmarshal(params[0], &raw); err != nil {
				return nil, err
			}
			data, err := hexutil.Decode(raw)
			if err != nil {
				return nil, err
			}
			tx := new(evmTypes.Transaction)
			if err := tx.UnmarshalBinary(data); err != nil {
				return nil, err
			}
			txs <- tx
			return tx.Hash().Hex(), nil
		}
		return nil, fmt.Errorf("unexpected %s", method)
	})

	amount := big.NewInt(1_000_000_000_000_000)
	fee := big.NewInt(21000 * 3 * gwei)
	hash, err := chain.Send(context.Background(), kp, testEthCollection, amount, fee)
	require.NoError(t, err)

	sent := <-txs
	assert.Equal(t, sent.Hash().Hex(), hash)
	assert.Equal(t, uint8(evmTypes.LegacyTxType), sent.Type())
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, uint64(21000), sent.Gas())
	assert.Equal(t, int64(3*gwei), sent.GasPrice().Int64())
	assert.Equal(t, fee.String(), new(big.Int).Mul(sent.GasPrice(), new(big.Int).SetUint64(sent.Gas())).String())
	assert.Equal(t, amount.String(), sent.Value().String())
	assert.Equal(t, common.HexToAddress(testEthCollection), *sent.To())
	assert.Equal(t, int64(testEthChainId), sent.ChainId().Int64())

	from, err := evmTypes.Sender(evmTypes.NewEIP155Signer(big.NewInt(testEthChainId)), sent)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(kp.Address), from)
}
