package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/rest/httpc"
)

// Client is a minimal TronGrid HTTP API client. Addresses are passed in
// Base58 form with visible=true.
type Client struct {
	baseUrl string
	apiKey  string
	http    httpc.Service
}

func NewClient(baseUrl, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		apiKey:  apiKey,
		http:    httpc.NewServiceWithClient("trongrid", &http.Client{Timeout: timeout}),
	}
}

// Transaction is the unsigned/signed transaction object exchanged with TronGrid.
type Transaction struct {
	Visible    bool            `json:"visible"`
	TxID       string          `json:"txID"`
	RawData    json.RawMessage `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Signature  []string        `json:"signature,omitempty"`
	// Error is set by createtransaction on failure.
	Error string `json:"Error,omitempty"`
}

type broadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetBalance returns the account balance in sun. Accounts that were never
// activated are reported by TronGrid as an empty object, i.e. zero.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var account struct {
		Balance int64 `json:"balance"`
	}
	err := c.post(ctx, "/wallet/getaccount", map[string]any{
		"address": address,
		"visible": true,
	}, &account)
	if err != nil {
		return nil, err
	}
	return big.NewInt(account.Balance), nil
}

// CreateTransfer asks the node to build a TRX transfer.
func (c *Client) CreateTransfer(ctx context.Context, from, to string, amountSun int64) (*Transaction, error) {
	var tx Transaction
	err := c.post(ctx, "/wallet/createtransaction", map[string]any{
		"owner_address": from,
		"to_address":    to,
		"amount":        amountSun,
		"visible":       true,
	}, &tx)
	if err != nil {
		return nil, err
	}
	if tx.Error != "" {
		return nil, fmt.Errorf("createtransaction: %s", tx.Error)
	}
	if tx.TxID == "" {
		return nil, errors.New("createtransaction returned no txID")
	}
	return &tx, nil
}

// Broadcast submits a signed transaction. A nil error means the node accepted it.
func (c *Client) Broadcast(ctx context.Context, tx *Transaction) (string, error) {
	var res broadcastResult
	if err := c.post(ctx, "/wallet/broadcasttransaction", tx, &res); err != nil {
		return "", err
	}
	if !res.Result {
		return "", fmt.Errorf("broadcast rejected: %s %s", res.Code, decodeMessage(res.Message))
	}
	if res.TxID == "" {
		return tx.TxID, nil
	}
	return res.TxID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.DoRequest(req)
	if err != nil {
		return fmt.Errorf("trongrid %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("trongrid %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trongrid %s: status %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("trongrid %s: decode: %w", path, err)
	}
	return nil
}

// TronGrid hex-encodes error messages.
func decodeMessage(msg string) string {
	if b, err := hex.DecodeString(msg); err == nil {
		return string(b)
	}
	return msg
}
