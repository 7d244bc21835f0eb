package sweep

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"custody/internal/config"
	"custody/internal/constant"
	"custody/internal/logic/wallet"

	solanaCommon "github.com/blocto/solana-go-sdk/common"
	solanaTypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBlockhash = base58.Encode(bytes.Repeat([]byte{7}, 32))

func blockhashResult() any {
	return map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   map[string]any{"blockhash": testBlockhash, "lastValidBlockHeight": 150},
	}
}

func deriveSolanaKeys(t *testing.T) (from, collection *wallet.Keypair) {
	t.Helper()
	d, err := wallet.NewKeyDeriverFromHex(testSeedHex)
	require.NoError(t, err)
	from, err = d.Derive(constant.NetworkSolana, 0)
	require.NoError(t, err)
	collection, err = d.Derive(constant.NetworkSolana, 1)
	require.NoError(t, err)
	return from, collection
}

// assertTransfer checks msg is a single system transfer of lamports from -> to.
func assertTransfer(t *testing.T, msg solanaTypes.Message, from, to string, lamports uint64) {
	t.Helper()
	assert.Equal(t, testBlockhash, msg.RecentBlockHash)
	require.NotEmpty(t, msg.Accounts)
	assert.Equal(t, from, msg.Accounts[0].ToBase58())

	require.Len(t, msg.Instructions, 1)
	ins := msg.Instructions[0]
	assert.Equal(t, solanaCommon.SystemProgramID, msg.Accounts[ins.ProgramIDIndex])
	require.Len(t, ins.Accounts, 2)
	assert.Equal(t, from, msg.Accounts[ins.Accounts[0]].ToBase58())
	assert.Equal(t, to, msg.Accounts[ins.Accounts[1]].ToBase58())

	require.Len(t, ins.Data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ins.Data[:4]))
	assert.Equal(t, lamports, binary.LittleEndian.Uint64(ins.Data[4:]))
}

func decodeBase64Param(t *testing.T, param json.RawMessage) []byte {
	var encoded string
	require.NoError(t, json.Unmarshal(param, &encoded))
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	return raw
}

func TestSolanaChainFeeForTransferMessage(t *testing.T) {
	from, collection := deriveSolanaKeys(t)

	msgs := make(chan solanaTypes.Message, 1)
	node := newRPCNode(t, func(method string, params []json.RawMessage) (any, error) {
		switch method {
		case "getLatestBlockhash":
			return blockhashResult(), nil
		case "getFeeForMessage":
			msg, err := solanaTypes.MessageDeserialize(decodeBase64Param(t, params[0]))
			if err != nil {
				return nil, err
			}
			msgs <- msg
			return map[string]any{"context": map[string]any{"slot": 1}, "value": 5000}, nil
		}
		return nil, fmt.Errorf("unexpected %s", method)
	})
	chain := NewSolanaChain(config.SolanaConf{RpcUrl: node.URL, Commitment: "confirmed", CollectionAddress: collection.Address})

	fee, err := chain.EstimateFee(context.Background(), from.Address, collection.Address, big.NewInt(2_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), fee.Int64())
	assertTransfer(t, <-msgs, from.Address, collection.Address, 2_000_000_000)
}

func TestSolanaChainFeeExpiredBlockhash(t *testing.T) {
	from, collection := deriveSolanaKeys(t)

	node := newRPCNode(t, func(method string, params []json.RawMessage) (any, error) {
		switch method {
		case "getLatestBlockhash":
			return blockhashResult(), nil
		case "getFeeForMessage":
			return map[string]any{"context": map[string]any{"slot": 1}, "value": nil}, nil
		}
		return nil, fmt.Errorf("unexpected %s", method)
	})
	chain := NewSolanaChain(config.SolanaConf{RpcUrl: node.URL, Commitment: "confirmed"})

	fee, err := chain.EstimateFee(context.Background(), from.Address, collection.Address, big.NewInt(10))
	assert.Nil(t, fee)
	assert.ErrorContains(t, err, "blockhash expired")
}

func TestSolanaChainSendSignsAndWaitsForStatus(t *testing.T) {
	from, collection := deriveSolanaKeys(t)

	txs := make(chan solanaTypes.Transaction, 1)
	node := newRPCNode(t, func(method string, params []json.RawMessage) (any, error) {
		switch method {
		case "getLatestBlockhash":
			return blockhashResult(), nil
		case "sendTransaction":
			tx, err := solanaTypes.TransactionDeserialize(decodeBase64Param(t, params[0]))
			if err != nil {
				return nil, err
			}
			txs <- tx
			return base58.Encode(tx.Signatures[0]), nil
		case "getSignatureStatuses":
			return map[string]any{
				"context": map[string]any{"slot": 2},
				"value": []any{map[string]any{
					"slot":               2,
					"confirmations":      nil,
					"err":                nil,
					"confirmationStatus": "processed",
				}},
			}, nil
		}
		return nil, fmt.Errorf("unexpected %s", method)
	})
	chain := NewSolanaChain(config.SolanaConf{RpcUrl: node.URL, Commitment: "confirmed", CollectionAddress: collection.Address})

	sig, err := chain.Send(context.Background(), from, collection.Address, big.NewInt(999_995_000), big.NewInt(5000))
	require.NoError(t, err)

	tx := <-txs
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, base58.Encode(tx.Signatures[0]), sig)
	assertTransfer(t, tx.Message, from.Address, collection.Address, 999_995_000)

	serialized, err := tx.Message.Serialize()
	require.NoError(t, err)
	pub := ed25519.PrivateKey(from.PrivateKey).Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, serialized, tx.Signatures[0]))
	assert.Equal(t, 1, node.called("getSignatureStatuses"))
}
