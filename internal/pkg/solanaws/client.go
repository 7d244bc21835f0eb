package solanaws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 20 * time.Second
)

var ErrClosed = errors.New("solana websocket closed")

// AccountNotification is one accountNotification push.
type AccountNotification struct {
	Address  string
	Lamports uint64
	Slot     uint64
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type envelope struct {
	Id     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Lamports uint64 `json:"lamports"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Client speaks the Solana PubSub JSON-RPC dialect over one websocket.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextId  uint64
	pending map[uint64]chan envelope
	// accountSubscribe requests whose caller gave up before the reply
	abandoned map[uint64]struct{}
	subs      map[uint64]string // subscription id -> address
	byAddr    map[string]uint64

	notifications chan AccountNotification
	errCh         chan error
	done          chan struct{}
	closeOnce     sync.Once
	errOnce       sync.Once
}

// Dial connects to a Solana websocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:          conn,
		pending:       make(map[uint64]chan envelope),
		abandoned:     make(map[uint64]struct{}),
		subs:          make(map[uint64]string),
		byAddr:        make(map[string]uint64),
		notifications: make(chan AccountNotification, 256),
		errCh:         make(chan error, 1),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *Client) Notifications() <-chan AccountNotification { return c.notifications }

// Err yields at most one transport error.
func (c *Client) Err() <-chan error { return c.errCh }

// AccountSubscribe registers address and waits for the subscription id.
func (c *Client) AccountSubscribe(ctx context.Context, address, commitment string) error {
	c.mu.Lock()
	if _, ok := c.byAddr[address]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	params := []any{address, map[string]string{"encoding": "base64", "commitment": commitment}}
	resp, err := c.call(ctx, "accountSubscribe", params)
	if err != nil {
		return err
	}
	var subId uint64
	if err := json.Unmarshal(resp.Result, &subId); err != nil {
		return fmt.Errorf("decode subscription id: %w", err)
	}

	c.mu.Lock()
	c.subs[subId] = address
	c.byAddr[address] = subId
	c.mu.Unlock()
	return nil
}

// Close unsubscribes every account and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		// 不等待回包, 连接马上就要关闭
		_ = c.send("accountUnsubscribe", c.reserveId(), []any{id})
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, params []any) (envelope, error) {
	id := c.reserveId()
	ch := make(chan envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(method, id, params); err != nil {
		return envelope{}, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-c.done:
		return envelope{}, ErrClosed
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		if method == "accountSubscribe" {
			c.abandoned[id] = struct{}{}
		}
		c.mu.Unlock()
		// readLoop delivers under c.mu, so a reply is either buffered here or
		// will find the id abandoned
		select {
		case resp := <-ch:
			c.dropLate(id, resp)
		default:
		}
		return envelope{}, ctx.Err()
	}
}

// dropLate cancels a subscription the server created after its caller timed
// out; nothing would route its notifications.
func (c *Client) dropLate(id uint64, resp envelope) {
	c.mu.Lock()
	_, ok := c.abandoned[id]
	delete(c.abandoned, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	var subId uint64
	if resp.Error != nil || json.Unmarshal(resp.Result, &subId) != nil {
		return
	}
	logx.Debugf("solana ws: late reply to request %d, unsubscribing %d", id, subId)
	go func() {
		if err := c.send("accountUnsubscribe", c.reserveId(), []any{subId}); err != nil {
			logx.Debugf("solana ws: unsubscribe %d: %v", subId, err)
		}
	}()
}

func (c *Client) reserveId() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextId++
	return c.nextId
}

func (c *Client) send(method string, id uint64, params []any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		if env.Method == "accountNotification" && env.Params != nil {
			c.mu.Lock()
			addr, ok := c.subs[env.Params.Subscription]
			c.mu.Unlock()
			if !ok {
				continue
			}
			select {
			case c.notifications <- AccountNotification{
				Address:  addr,
				Lamports: env.Params.Result.Value.Lamports,
				Slot:     env.Params.Result.Context.Slot,
			}:
			case <-c.done:
				return
			}
			continue
		}

		if env.Id != nil {
			c.mu.Lock()
			ch, ok := c.pending[*env.Id]
			if ok {
				// buffered, one reply per id
				ch <- env
			}
			c.mu.Unlock()
			if !ok {
				c.dropLate(*env.Id, env)
			}
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) fail(err error) {
	select {
	case <-c.done:
		// closed on purpose
		return
	default:
	}
	c.errOnce.Do(func() {
		c.errCh <- err
	})
}
