package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agiliumtrade/metaapi-go/internal/apierror"
	"github.com/agiliumtrade/metaapi-go/internal/model"
	"github.com/agiliumtrade/metaapi-go/internal/packet"
)

// Trade return codes the server reports for accepted trades.
var tradeSuccessCodes = map[string]struct{}{
	"ERR_NO_ERROR":               {},
	"TRADE_RETCODE_PLACED":       {},
	"TRADE_RETCODE_DONE":         {},
	"TRADE_RETCODE_DONE_PARTIAL": {},
	"TRADE_RETCODE_NO_CHANGES":   {},
}

// rpcRequest emits one correlated request and waits for its response,
// processing error, timeout or teardown.
func (c *Client) rpcRequest(ctx context.Context, accountID string, req packet.Request, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	closed := c.closed
	connected := c.connected
	c.mu.Unlock()
	if closed {
		return nil, apierror.New(apierror.ConnectionClosed, "MetaApi connection closed")
	}
	if !connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.AccountID = accountID
	req.Application = c.opts.Application

	data, err := packet.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan rpcOutcome, 1)
	c.pendingMu.Lock()
	c.pending[req.RequestID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
	}()

	if err := c.send(data); err != nil {
		return nil, err
	}

	if timeout == 0 {
		timeout = c.opts.RequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, apierror.Newf(apierror.Timeout,
			"MetaApi websocket client request %s of type %s timed out. Please make sure your account is connected to broker before retrying your request.",
			req.RequestID, req.Type)
	case out := <-ch:
		return out.data, out.err
	}
}

// rpc issues a request and decodes the response envelope into out when out is
// non-nil.
func (c *Client) rpc(ctx context.Context, accountID, reqType string, args map[string]any, out any) error {
	data, err := c.rpcRequest(ctx, accountID, packet.Request{Type: reqType, Args: args}, 0)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", reqType, err)
	}
	return nil
}

// GetAccountInformation returns account information for an account.
func (c *Client) GetAccountInformation(ctx context.Context, accountID string) (model.AccountInformation, error) {
	var resp struct {
		AccountInformation model.AccountInformation `json:"accountInformation"`
	}
	err := c.rpc(ctx, accountID, "getAccountInformation", nil, &resp)
	return resp.AccountInformation, err
}

// GetPositions returns open positions for an account.
func (c *Client) GetPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	var resp struct {
		Positions []model.Position `json:"positions"`
	}
	err := c.rpc(ctx, accountID, "getPositions", nil, &resp)
	return resp.Positions, err
}

// GetPosition returns one open position by id.
func (c *Client) GetPosition(ctx context.Context, accountID, positionID string) (model.Position, error) {
	var resp struct {
		Position model.Position `json:"position"`
	}
	err := c.rpc(ctx, accountID, "getPosition", map[string]any{"positionId": positionID}, &resp)
	return resp.Position, err
}

// GetOrders returns pending orders for an account.
func (c *Client) GetOrders(ctx context.Context, accountID string) ([]model.Order, error) {
	var resp struct {
		Orders []model.Order `json:"orders"`
	}
	err := c.rpc(ctx, accountID, "getOrders", nil, &resp)
	return resp.Orders, err
}

// GetOrder returns one pending order by id (ticket number).
func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (model.Order, error) {
	var resp struct {
		Order model.Order `json:"order"`
	}
	err := c.rpc(ctx, accountID, "getOrder", map[string]any{"orderId": orderID}, &resp)
	return resp.Order, err
}

// GetHistoryOrdersByTicket returns completed orders for a ticket number.
func (c *Client) GetHistoryOrdersByTicket(ctx context.Context, accountID, ticket string) (model.HistoryOrders, error) {
	var resp model.HistoryOrders
	err := c.rpc(ctx, accountID, "getHistoryOrdersByTicket", map[string]any{"ticket": ticket}, &resp)
	return resp, err
}

// GetHistoryOrdersByPosition returns completed orders for a position id.
func (c *Client) GetHistoryOrdersByPosition(ctx context.Context, accountID, positionID string) (model.HistoryOrders, error) {
	var resp model.HistoryOrders
	err := c.rpc(ctx, accountID, "getHistoryOrdersByPosition", map[string]any{"positionId": positionID}, &resp)
	return resp, err
}

// GetHistoryOrdersByTimeRange returns completed orders within [start, end).
func (c *Client) GetHistoryOrdersByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (model.HistoryOrders, error) {
	var resp model.HistoryOrders
	err := c.rpc(ctx, accountID, "getHistoryOrdersByTimeRange", map[string]any{
		"startTime": formatTime(start),
		"endTime":   formatTime(end),
		"offset":    offset,
		"limit":     limit,
	}, &resp)
	return resp, err
}

// GetDealsByTicket returns deals for a ticket number.
func (c *Client) GetDealsByTicket(ctx context.Context, accountID, ticket string) (model.Deals, error) {
	var resp model.Deals
	err := c.rpc(ctx, accountID, "getDealsByTicket", map[string]any{"ticket": ticket}, &resp)
	return resp, err
}

// GetDealsByPosition returns deals for a position id.
func (c *Client) GetDealsByPosition(ctx context.Context, accountID, positionID string) (model.Deals, error) {
	var resp model.Deals
	err := c.rpc(ctx, accountID, "getDealsByPosition", map[string]any{"positionId": positionID}, &resp)
	return resp, err
}

// GetDealsByTimeRange returns deals within [start, end).
func (c *Client) GetDealsByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (model.Deals, error) {
	var resp model.Deals
	err := c.rpc(ctx, accountID, "getDealsByTimeRange", map[string]any{
		"startTime": formatTime(start),
		"endTime":   formatTime(end),
		"offset":    offset,
		"limit":     limit,
	}, &resp)
	return resp, err
}

// RemoveHistory clears the order and transaction history of the application
// so it can be synchronized from scratch.
func (c *Client) RemoveHistory(ctx context.Context, accountID string) error {
	return c.rpc(ctx, accountID, "removeHistory", nil, nil)
}

// RemoveApplication clears the history and removes the application.
func (c *Client) RemoveApplication(ctx context.Context, accountID string) error {
	return c.rpc(ctx, accountID, "removeApplication", nil, nil)
}

// tradeWire is the raw trade response before post-processing.
type tradeWire struct {
	NumericCode *int   `json:"numericCode"`
	StringCode  string `json:"stringCode"`
	Description string `json:"description"`
	Error       *int   `json:"error"`
	Message     string `json:"message"`
	OrderID     string `json:"orderId"`
	PositionID  string `json:"positionId"`
}

// Trade executes a trade on a connected terminal. Rejected trades surface as
// a Trade error carrying the broker return code.
func (c *Client) Trade(ctx context.Context, accountID string, trade model.Trade) (model.TradeResponse, error) {
	var resp struct {
		Response tradeWire `json:"response"`
	}
	if err := c.rpc(ctx, accountID, "trade", map[string]any{"trade": trade}, &resp); err != nil {
		return model.TradeResponse{}, err
	}

	wire := resp.Response
	if wire.StringCode == "" {
		wire.StringCode = wire.Description
	}
	numericCode := 0
	switch {
	case wire.NumericCode != nil:
		numericCode = *wire.NumericCode
	case wire.Error != nil:
		numericCode = *wire.Error
	}

	if _, ok := tradeSuccessCodes[wire.StringCode]; !ok {
		return model.TradeResponse{}, &apierror.Error{
			Kind:        apierror.Trade,
			Message:     wire.Message,
			NumericCode: numericCode,
			StringCode:  wire.StringCode,
		}
	}

	return model.TradeResponse{
		NumericCode: numericCode,
		StringCode:  wire.StringCode,
		Message:     wire.Message,
		OrderID:     wire.OrderID,
		PositionID:  wire.PositionID,
	}, nil
}

// Subscribe subscribes to terminal events for an account.
func (c *Client) Subscribe(ctx context.Context, accountID string) error {
	return c.rpc(ctx, accountID, "subscribe", nil, nil)
}

// subscribeAsync issues a subscribe without blocking the caller. Timeouts are
// expected while the terminal is booting and stay quiet; other failures are
// logged.
func (c *Client) subscribeAsync(accountID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout+time.Second)
		defer cancel()
		if err := c.Subscribe(ctx, accountID); err != nil {
			if e, ok := err.(*apierror.Error); ok && e.Kind == apierror.Timeout {
				return
			}
			c.logger.Warn("failed to receive subscribe response", "account_id", accountID, "error", err)
		}
	}()
}

// Reconnect asks the server to reconnect the remote terminal to the broker.
func (c *Client) Reconnect(ctx context.Context, accountID string) error {
	return c.rpc(ctx, accountID, "reconnect", nil, nil)
}

// Synchronize requests a terminal synchronization session. The
// synchronizationID doubles as the requestId so barrier events can be
// correlated to the request.
func (c *Client) Synchronize(ctx context.Context, accountID, synchronizationID string, startingHistoryOrderTime, startingDealTime time.Time) error {
	// Zero instants mean "from the beginning" and stay off the wire.
	args := map[string]any{}
	if !startingHistoryOrderTime.IsZero() {
		args["startingHistoryOrderTime"] = formatTime(startingHistoryOrderTime)
	}
	if !startingDealTime.IsZero() {
		args["startingDealTime"] = formatTime(startingDealTime)
	}
	req := packet.Request{
		RequestID: synchronizationID,
		Type:      "synchronize",
		Args:      args,
	}
	_, err := c.rpcRequest(ctx, accountID, req, 0)
	return err
}

// WaitSynchronized waits for the server-side terminal state synchronization
// to complete. The client-side deadline leaves the server one extra second.
func (c *Client) WaitSynchronized(ctx context.Context, accountID, applicationPattern string, timeoutInSeconds int) error {
	req := packet.Request{
		Type: "waitSynchronized",
		Args: map[string]any{
			"applicationPattern": applicationPattern,
			"timeoutInSeconds":   timeoutInSeconds,
		},
	}
	_, err := c.rpcRequest(ctx, accountID, req, time.Duration(timeoutInSeconds+1)*time.Second)
	return err
}

// SubscribeToMarketData subscribes to price ticks for a symbol.
func (c *Client) SubscribeToMarketData(ctx context.Context, accountID, symbol string) error {
	return c.rpc(ctx, accountID, "subscribeToMarketData", map[string]any{"symbol": symbol}, nil)
}

// GetSymbolSpecification retrieves the trading specification for a symbol.
func (c *Client) GetSymbolSpecification(ctx context.Context, accountID, symbol string) (model.SymbolSpecification, error) {
	var resp struct {
		Specification model.SymbolSpecification `json:"specification"`
	}
	err := c.rpc(ctx, accountID, "getSymbolSpecification", map[string]any{"symbol": symbol}, &resp)
	return resp.Specification, err
}

// GetSymbolPrice retrieves the latest quote for a symbol.
func (c *Client) GetSymbolPrice(ctx context.Context, accountID, symbol string) (model.SymbolPrice, error) {
	var resp struct {
		Price model.SymbolPrice `json:"price"`
	}
	err := c.rpc(ctx, accountID, "getSymbolPrice", map[string]any{"symbol": symbol}, &resp)
	return resp.Price, err
}

// formatTime renders an instant the way the server expects.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
