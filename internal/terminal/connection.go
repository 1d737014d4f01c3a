package terminal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agiliumtrade/metaapi-go/internal/gateway"
	"github.com/agiliumtrade/metaapi-go/internal/model"
)

// Synchronization defaults.
const (
	DefaultApplicationPattern = ".*"
	DefaultSyncTimeout        = 300 * time.Second
)

// Gateway is the slice of the websocket client the connection facade uses.
type Gateway interface {
	AddSynchronizationListener(accountID string, l gateway.SynchronizationListener)
	RemoveSynchronizationListener(accountID string, l gateway.SynchronizationListener)
	AddReconnectListener(l gateway.ReconnectListener)
	RemoveReconnectListener(l gateway.ReconnectListener)

	Subscribe(ctx context.Context, accountID string) error
	Synchronize(ctx context.Context, accountID, synchronizationID string, startingHistoryOrderTime, startingDealTime time.Time) error
	WaitSynchronized(ctx context.Context, accountID, applicationPattern string, timeoutInSeconds int) error

	GetAccountInformation(ctx context.Context, accountID string) (model.AccountInformation, error)
	GetPositions(ctx context.Context, accountID string) ([]model.Position, error)
	GetPosition(ctx context.Context, accountID, positionID string) (model.Position, error)
	GetOrders(ctx context.Context, accountID string) ([]model.Order, error)
	GetOrder(ctx context.Context, accountID, orderID string) (model.Order, error)
	GetHistoryOrdersByTicket(ctx context.Context, accountID, ticket string) (model.HistoryOrders, error)
	GetHistoryOrdersByPosition(ctx context.Context, accountID, positionID string) (model.HistoryOrders, error)
	GetHistoryOrdersByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (model.HistoryOrders, error)
	GetDealsByTicket(ctx context.Context, accountID, ticket string) (model.Deals, error)
	GetDealsByPosition(ctx context.Context, accountID, positionID string) (model.Deals, error)
	GetDealsByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (model.Deals, error)
	RemoveHistory(ctx context.Context, accountID string) error
	RemoveApplication(ctx context.Context, accountID string) error
	Trade(ctx context.Context, accountID string, trade model.Trade) (model.TradeResponse, error)
	Reconnect(ctx context.Context, accountID string) error
	SubscribeToMarketData(ctx context.Context, accountID, symbol string) error
	GetSymbolSpecification(ctx context.Context, accountID, symbol string) (model.SymbolSpecification, error)
	GetSymbolPrice(ctx context.Context, accountID, symbol string) (model.SymbolPrice, error)
}

var _ Gateway = (*gateway.Client)(nil)

// Connection ties one trading account to the gateway: it owns the account's
// state replica, forwards RPCs and re-synchronizes after socket recovery.
type Connection struct {
	gateway.NoopSynchronizationListener

	gw        Gateway
	accountID string
	state     *State
	logger    *slog.Logger

	mu               sync.Mutex
	lastHistoryOrder time.Time
	lastDeal         time.Time
	synchronized     bool
	closed           bool
}

var _ gateway.SynchronizationListener = (*Connection)(nil)
var _ gateway.ReconnectListener = (*Connection)(nil)

// NewConnection creates a connection for one account and registers its
// listeners with the gateway.
func NewConnection(gw Gateway, accountID string, stateOpts StateOptions, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		gw:        gw,
		accountID: accountID,
		state:     NewState(stateOpts),
		logger:    logger.With("account_id", accountID),
	}
	gw.AddSynchronizationListener(accountID, c.state)
	gw.AddSynchronizationListener(accountID, c)
	gw.AddReconnectListener(c)
	return c
}

// AccountID returns the connected account id.
func (c *Connection) AccountID() string { return c.accountID }

// State returns the account's terminal state replica.
func (c *Connection) State() *State { return c.state }

// Subscribe subscribes the account to terminal events.
func (c *Connection) Subscribe(ctx context.Context) error {
	return c.gw.Subscribe(ctx, c.accountID)
}

// Synchronize starts a fresh synchronization session, resuming history from
// the latest observed history order and deal times.
func (c *Connection) Synchronize(ctx context.Context) error {
	c.mu.Lock()
	startingHistoryOrderTime := c.lastHistoryOrder
	startingDealTime := c.lastDeal
	c.mu.Unlock()

	syncID := uuid.NewString()
	c.logger.Info("starting terminal synchronization", "synchronization_id", syncID)
	return c.gw.Synchronize(ctx, c.accountID, syncID, startingHistoryOrderTime, startingDealTime)
}

// WaitSynchronized blocks until server-side synchronization completes.
// A zero applicationPattern matches every application; a zero timeout uses
// the default.
func (c *Connection) WaitSynchronized(ctx context.Context, applicationPattern string, timeout time.Duration) error {
	if applicationPattern == "" {
		applicationPattern = DefaultApplicationPattern
	}
	if timeout == 0 {
		timeout = DefaultSyncTimeout
	}
	return c.gw.WaitSynchronized(ctx, c.accountID, applicationPattern, int(timeout/time.Second))
}

// IsSynchronized reports whether a synchronization session has completed its
// deal history barrier since the last disconnect.
func (c *Connection) IsSynchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synchronized
}

// Close detaches the connection's listeners from the gateway.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.gw.RemoveSynchronizationListener(c.accountID, c.state)
	c.gw.RemoveSynchronizationListener(c.accountID, c)
	c.gw.RemoveReconnectListener(c)
}

// OnReconnected resubscribes and starts a fresh synchronization session after
// socket recovery.
func (c *Connection) OnReconnected() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := c.gw.Subscribe(ctx, c.accountID); err != nil {
		c.logger.Warn("failed to resubscribe after reconnect", "error", err)
	}
	if err := c.Synchronize(ctx); err != nil {
		c.logger.Warn("failed to resynchronize after reconnect", "error", err)
		return err
	}
	return nil
}

func (c *Connection) OnSynchronizationStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synchronized = false
	return nil
}

func (c *Connection) OnDisconnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synchronized = false
	return nil
}

func (c *Connection) OnDealSynchronizationFinished(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synchronized = true
	return nil
}

// OnHistoryOrderAdded advances the history resume point.
func (c *Connection) OnHistoryOrderAdded(order model.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := order.DoneTime
	if t.IsZero() {
		t = order.Time
	}
	if t.After(c.lastHistoryOrder) {
		c.lastHistoryOrder = t
	}
	return nil
}

// OnDealAdded advances the deal resume point.
func (c *Connection) OnDealAdded(deal model.Deal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deal.Time.After(c.lastDeal) {
		c.lastDeal = deal.Time
	}
	return nil
}

// GetAccountInformation fetches account information over RPC.
func (c *Connection) GetAccountInformation(ctx context.Context) (model.AccountInformation, error) {
	return c.gw.GetAccountInformation(ctx, c.accountID)
}

// GetPositions fetches open positions over RPC.
func (c *Connection) GetPositions(ctx context.Context) ([]model.Position, error) {
	return c.gw.GetPositions(ctx, c.accountID)
}

// GetPosition fetches one open position over RPC.
func (c *Connection) GetPosition(ctx context.Context, positionID string) (model.Position, error) {
	return c.gw.GetPosition(ctx, c.accountID, positionID)
}

// GetOrders fetches pending orders over RPC.
func (c *Connection) GetOrders(ctx context.Context) ([]model.Order, error) {
	return c.gw.GetOrders(ctx, c.accountID)
}

// GetOrder fetches one pending order over RPC.
func (c *Connection) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	return c.gw.GetOrder(ctx, c.accountID, orderID)
}

// GetHistoryOrdersByTicket fetches completed orders for a ticket.
func (c *Connection) GetHistoryOrdersByTicket(ctx context.Context, ticket string) (model.HistoryOrders, error) {
	return c.gw.GetHistoryOrdersByTicket(ctx, c.accountID, ticket)
}

// GetHistoryOrdersByPosition fetches completed orders for a position.
func (c *Connection) GetHistoryOrdersByPosition(ctx context.Context, positionID string) (model.HistoryOrders, error) {
	return c.gw.GetHistoryOrdersByPosition(ctx, c.accountID, positionID)
}

// GetHistoryOrdersByTimeRange fetches completed orders within [start, end).
func (c *Connection) GetHistoryOrdersByTimeRange(ctx context.Context, start, end time.Time, offset, limit int) (model.HistoryOrders, error) {
	return c.gw.GetHistoryOrdersByTimeRange(ctx, c.accountID, start, end, offset, limit)
}

// GetDealsByTicket fetches deals for a ticket.
func (c *Connection) GetDealsByTicket(ctx context.Context, ticket string) (model.Deals, error) {
	return c.gw.GetDealsByTicket(ctx, c.accountID, ticket)
}

// GetDealsByPosition fetches deals for a position.
func (c *Connection) GetDealsByPosition(ctx context.Context, positionID string) (model.Deals, error) {
	return c.gw.GetDealsByPosition(ctx, c.accountID, positionID)
}

// GetDealsByTimeRange fetches deals within [start, end).
func (c *Connection) GetDealsByTimeRange(ctx context.Context, start, end time.Time, offset, limit int) (model.Deals, error) {
	return c.gw.GetDealsByTimeRange(ctx, c.accountID, start, end, offset, limit)
}

// RemoveHistory clears the application's server-side history.
func (c *Connection) RemoveHistory(ctx context.Context) error {
	c.mu.Lock()
	c.lastHistoryOrder = time.Time{}
	c.lastDeal = time.Time{}
	c.mu.Unlock()
	return c.gw.RemoveHistory(ctx, c.accountID)
}

// RemoveApplication clears the history and removes the application.
func (c *Connection) RemoveApplication(ctx context.Context) error {
	c.mu.Lock()
	c.lastHistoryOrder = time.Time{}
	c.lastDeal = time.Time{}
	c.mu.Unlock()
	return c.gw.RemoveApplication(ctx, c.accountID)
}

// Reconnect asks the server to reconnect the terminal to the broker.
func (c *Connection) Reconnect(ctx context.Context) error {
	return c.gw.Reconnect(ctx, c.accountID)
}

// SubscribeToMarketData subscribes to price ticks for a symbol.
func (c *Connection) SubscribeToMarketData(ctx context.Context, symbol string) error {
	return c.gw.SubscribeToMarketData(ctx, c.accountID, symbol)
}

// GetSymbolSpecification fetches the trading specification for a symbol.
func (c *Connection) GetSymbolSpecification(ctx context.Context, symbol string) (model.SymbolSpecification, error) {
	return c.gw.GetSymbolSpecification(ctx, c.accountID, symbol)
}

// GetSymbolPrice fetches the latest quote for a symbol.
func (c *Connection) GetSymbolPrice(ctx context.Context, symbol string) (model.SymbolPrice, error) {
	return c.gw.GetSymbolPrice(ctx, c.accountID, symbol)
}

// Trade executes a trade request.
func (c *Connection) Trade(ctx context.Context, trade model.Trade) (model.TradeResponse, error) {
	return c.gw.Trade(ctx, c.accountID, trade)
}

// CreateMarketBuyOrder opens a long position at market price.
func (c *Connection) CreateMarketBuyOrder(ctx context.Context, symbol string, volume, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderTypeBuy,
		Symbol:     symbol,
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// CreateMarketSellOrder opens a short position at market price.
func (c *Connection) CreateMarketSellOrder(ctx context.Context, symbol string, volume, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderTypeSell,
		Symbol:     symbol,
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// CreateLimitBuyOrder places a pending buy limit order.
func (c *Connection) CreateLimitBuyOrder(ctx context.Context, symbol string, volume, openPrice, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderTypeBuyLimit,
		Symbol:     symbol,
		Volume:     volume,
		OpenPrice:  openPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// CreateLimitSellOrder places a pending sell limit order.
func (c *Connection) CreateLimitSellOrder(ctx context.Context, symbol string, volume, openPrice, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderTypeSellLimit,
		Symbol:     symbol,
		Volume:     volume,
		OpenPrice:  openPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// ModifyPosition changes the stop loss and take profit of a position.
func (c *Connection) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionPositionModify,
		PositionID: positionID,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// ClosePosition fully closes a position.
func (c *Connection) ClosePosition(ctx context.Context, positionID string) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionPositionClose,
		PositionID: positionID,
	})
}

// ModifyOrder changes the price levels of a pending order.
func (c *Connection) ModifyOrder(ctx context.Context, orderID string, openPrice, stopLoss, takeProfit float64) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderModify,
		OrderID:    orderID,
		OpenPrice:  openPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// CancelOrder cancels a pending order.
func (c *Connection) CancelOrder(ctx context.Context, orderID string) (model.TradeResponse, error) {
	return c.Trade(ctx, model.Trade{
		ActionType: model.ActionOrderCancel,
		OrderID:    orderID,
	})
}
