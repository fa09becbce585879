package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      120 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// SignatureNotification is the one-shot result of a signature subscription.
// Err carries the on-chain transaction error, if any.
type SignatureNotification struct {
	Slot int64
	Err  interface{}
}

// WSClient waits for transaction finality over a WebSocket connection using
// signatureSubscribe. Signature subscriptions are one-shot: the node fires a
// single notification once the signature reaches the requested commitment and
// then cancels the subscription itself.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the channel awaiting its notification.
	subs   map[int64]chan SignatureNotification
	subsMu sync.Mutex

	// pendingSubs maps request ID to a subscription awaiting confirmation.
	// The read loop moves the notification channel into subs before it reads
	// the next message, so a notification arriving right behind the
	// confirmation is never dropped.
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[int64]chan SignatureNotification),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// WaitForSignature subscribes to a signature at the given commitment and
// blocks until the node reports it, the context expires, or the connection
// dies.
func (c *WSClient) WaitForSignature(ctx context.Context, signature, commitment string) (*SignatureNotification, error) {
	ch, err := c.subscribeSignature(ctx, signature, commitment)
	if err != nil {
		return nil, err
	}

	select {
	case notif, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed waiting for signature %s", signature)
		}
		return &notif, nil
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingSub is a subscription whose confirmation has not arrived yet. The
// notification channel is created up front; the read loop registers it under
// the subscription ID the moment the confirmation is processed.
type pendingSub struct {
	confirm chan int64
	notif   chan SignatureNotification
}

// subscribeSignature issues a signatureSubscribe and returns the channel the
// one-shot notification will arrive on.
func (c *WSClient) subscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": commitment},
		},
	}

	pending := &pendingSub{
		confirm: make(chan int64, 1),
		notif:   make(chan SignatureNotification, 1),
	}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		dropPending()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case _, ok := <-pending.confirm:
		if !ok {
			return nil, fmt.Errorf("client closed")
		}
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return nil, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return nil, ctx.Err()
	}

	return pending.notif, nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if !c.teardown() {
		return nil // Already closed
	}
	c.wg.Wait()
	return nil
}

// teardown closes the connection and releases all waiters. Returns false if
// the client was already closed. Does not wait for goroutines so it is safe
// to call from the read loop.
func (c *WSClient) teardown() bool {
	if c.closed.Swap(true) {
		return false
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		close(p.notif)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return true
}

// readLoop reads messages and dispatches them to waiters. On a read error
// the connection is considered dead and all waiters are released; the caller
// falls back to polling for finality.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.teardown()
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 && resp.ID > 0 {
		c.pendingSubsMu.Lock()
		pending, ok := c.pendingSubs[resp.ID]
		if ok {
			delete(c.pendingSubs, resp.ID)
		}
		c.pendingSubsMu.Unlock()

		if ok {
			// Register the notification channel before confirming, still on
			// the read loop goroutine: the notification for this subscription
			// can only be processed after this message, so it cannot slip
			// through unregistered.
			c.subsMu.Lock()
			c.subs[resp.Result] = pending.notif
			c.subsMu.Unlock()

			select {
			case pending.confirm <- resp.Result:
			default:
			}
		}
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil &&
		notif.Method == "signatureNotification" && notif.Params != nil {
		subID := notif.Params.Subscription

		sigNotif := SignatureNotification{Err: notif.Params.Result.Value.Err}
		if notif.Params.Result.Context != nil {
			sigNotif.Slot = notif.Params.Result.Context.Slot
		}

		// One-shot: the node cancels the subscription after firing.
		c.subsMu.Lock()
		ch, ok := c.subs[subID]
		if ok {
			delete(c.subs, subID)
		}
		c.subsMu.Unlock()

		if ok {
			ch <- sigNotif
			close(ch)
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
