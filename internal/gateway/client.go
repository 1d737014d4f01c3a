// Package gateway implements the MetaApi websocket gateway: one long-lived
// multiplexed socket per client that carries correlated request/response RPCs
// for many accounts and an ordered stream of synchronization events per
// account.
//
// The read path is a single task: socket read, journaling, sequence
// reassembly and listener dispatch happen in wire order, and the dispatcher
// waits for every listener of a packet before the next packet is processed.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agiliumtrade/metaapi-go/internal/apierror"
	"github.com/agiliumtrade/metaapi-go/internal/orderer"
	"github.com/agiliumtrade/metaapi-go/internal/packet"
	"github.com/agiliumtrade/metaapi-go/internal/packetlog"
)

// Errors
var (
	ErrClosed       = errors.New("websocket client is closed")
	ErrNotConnected = errors.New("websocket client is not connected")
)

const (
	writeTimeout      = 5 * time.Second
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 60 * time.Second
)

// Client is a MetaApi websocket gateway client.
type Client struct {
	opts    Options
	token   string
	baseURL string
	logger  *slog.Logger

	orderer   *orderer.Orderer
	packetLog *packetlog.Logger // nil when journaling is disabled

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	// Write serialization
	writeMu sync.Mutex

	// Pending RPCs by requestId
	pendingMu sync.Mutex
	pending   map[string]chan rpcOutcome

	// Listener registries
	listenersMu        sync.RWMutex
	syncListeners      map[string][]SynchronizationListener
	reconnectListeners []ReconnectListener

	// Serializes listener dispatch between the read path and the orderer's
	// timeout recovery path.
	dispatchMu sync.Mutex

	startOnce sync.Once
}

// rpcOutcome resolves one pending RPC.
type rpcOutcome struct {
	data json.RawMessage
	err  error
}

// NewClient creates a gateway client for the given auth token.
func NewClient(token string, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		opts:          opts,
		token:         token,
		baseURL:       fmt.Sprintf("wss://mt-client-api-v1.%s/ws", opts.Domain),
		logger:        logger,
		pending:       make(map[string]chan rpcOutcome),
		syncListeners: make(map[string][]SynchronizationListener),
	}
	c.orderer = orderer.New(c.onOutOfOrder, logger.With("component", "orderer"),
		orderer.WithTimeout(opts.PacketOrderingTimeout))
	if opts.PacketLogger.Enabled {
		c.packetLog = packetlog.New(opts.PacketLogger, logger.With("component", "packetlog"))
	}
	return c, nil
}

// SetURL patches the server URL. Intended for tests.
func (c *Client) SetURL(url string) {
	c.baseURL = url
}

func (c *Client) connectURL() string {
	return c.baseURL + "?auth-token=" + c.token
}

// clientID returns a fresh random decimal Client-id header value.
func clientID() string {
	return fmt.Sprintf("%.10f", rand.Float64())
}

// Connect establishes the websocket connection. The first failed attempt is
// reported to the caller; later disconnects feed the reconnect loop instead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to MetaApi server: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	// A concurrent caller may have won the dial race; keep its socket.
	if c.connected {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.startOnce.Do(func() {
		c.orderer.Start()
		if c.packetLog != nil {
			c.packetLog.Start()
		}
	})

	go c.readLoop(conn)

	c.logger.Info("connected to the MetaApi server")
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	header := http.Header{}
	header.Set("Client-id", clientID())
	conn, _, err := dialer.DialContext(ctx, c.connectURL(), header)
	return conn, err
}

// Close tears the gateway down: the socket is closed, every pending RPC is
// rejected with a connection-closed error, listener registries are cleared
// and the orderer stops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	c.failPending(apierror.New(apierror.ConnectionClosed, "MetaApi connection closed"))
	c.RemoveAllListeners()
	c.orderer.Stop()
	if c.packetLog != nil {
		c.packetLog.Stop()
	}

	c.logger.Info("closed connection to the MetaApi server")
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PacketLogs returns journal records for an account when the packet logger
// is enabled.
func (c *Client) PacketLogs(accountID string, from, to *time.Time) ([]packetlog.Record, error) {
	if c.packetLog == nil {
		return nil, nil
	}
	return c.packetLog.ReadLogs(accountID, from, to)
}

// readLoop is the single socket read task.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			// A socket that is no longer current (teardown or a lost dial
			// race) dies quietly; only the live one drives recovery.
			stale := c.closed || c.conn != conn
			c.mu.Unlock()
			if stale {
				return
			}
			c.logger.Warn("disconnected from the MetaApi server", "error", err)
			go c.reconnectLoop(conn)
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage routes one wire message.
func (c *Client) handleMessage(data []byte) {
	var env packet.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("failed to decode message envelope", "error", err)
		return
	}

	switch env.Event {
	case packet.EventResponse:
		c.resolveResponse(env.Data)
	case packet.EventProcessingError:
		c.rejectResponse(env.Data)
	case packet.EventSynchronization:
		c.processSynchronizationPacket(env.Data)
	default:
		c.logger.Debug("skipping unknown event", "event", env.Event)
	}
}

// resolveResponse completes a pending RPC with its response payload.
func (c *Client) resolveResponse(data json.RawMessage) {
	var head struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.logger.Warn("failed to decode response", "error", err)
		return
	}
	c.completePending(head.RequestID, rpcOutcome{data: data})
}

// rejectResponse completes a pending RPC with a mapped error. Unauthorized
// errors additionally tear the gateway down.
func (c *Client) rejectResponse(data json.RawMessage) {
	var pe struct {
		RequestID string `json:"requestId"`
		apierror.Descriptor
	}
	if err := json.Unmarshal(data, &pe); err != nil {
		c.logger.Warn("failed to decode processing error", "error", err)
		return
	}

	mapped := apierror.FromDescriptor(pe.Descriptor)
	c.completePending(pe.RequestID, rpcOutcome{err: mapped})
	if mapped.Kind == apierror.Unauthorized {
		c.logger.Error("authorization token rejected, closing the gateway")
		go c.Close()
	}
}

func (c *Client) completePending(requestID string, out rpcOutcome) {
	c.pendingMu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- out
	}
}

// failPending rejects every outstanding RPC.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan rpcOutcome)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- rpcOutcome{err: err}
	}
}

// processSynchronizationPacket journals, orders and dispatches one packet.
func (c *Client) processSynchronizationPacket(data json.RawMessage) {
	p, err := packet.DecodeSync(data)
	if err != nil {
		c.logger.Warn("failed to process incoming synchronization packet", "error", err)
		return
	}
	if c.packetLog != nil {
		c.packetLog.LogPacket(p)
	}
	for _, ordered := range c.orderer.RestoreOrder(p) {
		c.dispatchPacket(ordered)
	}
}

// onOutOfOrder surfaces packets the orderer gave up on and forces a fresh
// synchronization session for the account.
func (c *Client) onOutOfOrder(ev orderer.OutOfOrder) {
	for _, p := range ev.Flushed {
		c.dispatchPacket(p)
	}
	c.subscribeAsync(ev.AccountID)
}

// reconnectLoop re-establishes the socket after an unexpected disconnect.
// It retries until success or Close; failures between attempts back off
// exponentially.
func (c *Client) reconnectLoop(old *websocket.Conn) {
	old.Close()

	c.mu.Lock()
	if c.closed || c.conn != old {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	// In-flight RPCs cannot succeed on the dead socket.
	c.failPending(apierror.New(apierror.ConnectionClosed, "MetaApi connection closed"))

	wait := reconnectBaseWait
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Debug("reconnection attempt failed", "error", err)
			time.Sleep(wait)
			wait *= 2
			if wait > reconnectMaxWait {
				wait = reconnectMaxWait
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.logger.Info("reconnected to the MetaApi server")
		// The read loop must be running before listeners are notified:
		// reconnect listeners issue RPCs and need their responses read.
		go c.readLoop(conn)
		c.notifyReconnected()
		return
	}
}

// notifyReconnected invokes reconnect listeners sequentially; a failing
// listener does not stop notification of the others.
func (c *Client) notifyReconnected() {
	c.listenersMu.RLock()
	listeners := make([]ReconnectListener, len(c.reconnectListeners))
	copy(listeners, c.reconnectListeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		if err := l.OnReconnected(); err != nil {
			c.logger.Warn("failed to notify reconnect listener", "error", err)
		}
	}
}

// send writes one frame to the socket.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
