package terminal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/gateway"
	"github.com/agiliumtrade/metaapi-go/internal/model"
)

type syncCall struct {
	synchronizationID        string
	startingHistoryOrderTime time.Time
	startingDealTime         time.Time
}

type waitCall struct {
	applicationPattern string
	timeoutInSeconds   int
}

// fakeGateway records calls so the facade can be tested without a socket.
type fakeGateway struct {
	mu sync.Mutex

	syncListeners      map[string][]gateway.SynchronizationListener
	reconnectListeners []gateway.ReconnectListener

	subscribes []string
	syncCalls  []syncCall
	waitCalls  []waitCall
	trades     []model.Trade
	tradeResp  model.TradeResponse
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{syncListeners: make(map[string][]gateway.SynchronizationListener)}
}

func (g *fakeGateway) AddSynchronizationListener(accountID string, l gateway.SynchronizationListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncListeners[accountID] = append(g.syncListeners[accountID], l)
}

func (g *fakeGateway) RemoveSynchronizationListener(accountID string, l gateway.SynchronizationListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	listeners := g.syncListeners[accountID]
	for i, existing := range listeners {
		if existing == l {
			g.syncListeners[accountID] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

func (g *fakeGateway) AddReconnectListener(l gateway.ReconnectListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconnectListeners = append(g.reconnectListeners, l)
}

func (g *fakeGateway) RemoveReconnectListener(l gateway.ReconnectListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, existing := range g.reconnectListeners {
		if existing == l {
			g.reconnectListeners = append(g.reconnectListeners[:i:i], g.reconnectListeners[i+1:]...)
			return
		}
	}
}

func (g *fakeGateway) Subscribe(_ context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribes = append(g.subscribes, accountID)
	return nil
}

func (g *fakeGateway) Synchronize(_ context.Context, _, synchronizationID string, startingHistoryOrderTime, startingDealTime time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncCalls = append(g.syncCalls, syncCall{synchronizationID, startingHistoryOrderTime, startingDealTime})
	return nil
}

func (g *fakeGateway) WaitSynchronized(_ context.Context, _, applicationPattern string, timeoutInSeconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waitCalls = append(g.waitCalls, waitCall{applicationPattern, timeoutInSeconds})
	return nil
}

func (g *fakeGateway) Trade(_ context.Context, _ string, trade model.Trade) (model.TradeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trades = append(g.trades, trade)
	return g.tradeResp, nil
}

func (g *fakeGateway) GetAccountInformation(context.Context, string) (model.AccountInformation, error) {
	return model.AccountInformation{}, nil
}
func (g *fakeGateway) GetPositions(context.Context, string) ([]model.Position, error) {
	return nil, nil
}
func (g *fakeGateway) GetPosition(context.Context, string, string) (model.Position, error) {
	return model.Position{}, nil
}
func (g *fakeGateway) GetOrders(context.Context, string) ([]model.Order, error) { return nil, nil }
func (g *fakeGateway) GetOrder(context.Context, string, string) (model.Order, error) {
	return model.Order{}, nil
}
func (g *fakeGateway) GetHistoryOrdersByTicket(context.Context, string, string) (model.HistoryOrders, error) {
	return model.HistoryOrders{}, nil
}
func (g *fakeGateway) GetHistoryOrdersByPosition(context.Context, string, string) (model.HistoryOrders, error) {
	return model.HistoryOrders{}, nil
}
func (g *fakeGateway) GetHistoryOrdersByTimeRange(context.Context, string, time.Time, time.Time, int, int) (model.HistoryOrders, error) {
	return model.HistoryOrders{}, nil
}
func (g *fakeGateway) GetDealsByTicket(context.Context, string, string) (model.Deals, error) {
	return model.Deals{}, nil
}
func (g *fakeGateway) GetDealsByPosition(context.Context, string, string) (model.Deals, error) {
	return model.Deals{}, nil
}
func (g *fakeGateway) GetDealsByTimeRange(context.Context, string, time.Time, time.Time, int, int) (model.Deals, error) {
	return model.Deals{}, nil
}
func (g *fakeGateway) RemoveHistory(context.Context, string) error     { return nil }
func (g *fakeGateway) RemoveApplication(context.Context, string) error { return nil }
func (g *fakeGateway) Reconnect(context.Context, string) error         { return nil }
func (g *fakeGateway) SubscribeToMarketData(context.Context, string, string) error {
	return nil
}
func (g *fakeGateway) GetSymbolSpecification(context.Context, string, string) (model.SymbolSpecification, error) {
	return model.SymbolSpecification{}, nil
}
func (g *fakeGateway) GetSymbolPrice(context.Context, string, string) (model.SymbolPrice, error) {
	return model.SymbolPrice{}, nil
}

var _ Gateway = (*fakeGateway)(nil)

func TestNewConnectionRegistersListeners(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	if len(g.syncListeners["acc-1"]) != 2 {
		t.Errorf("got %d synchronization listeners, want state and connection", len(g.syncListeners["acc-1"]))
	}
	if len(g.reconnectListeners) != 1 {
		t.Errorf("got %d reconnect listeners, want 1", len(g.reconnectListeners))
	}

	conn.Close()
	if len(g.syncListeners["acc-1"]) != 0 || len(g.reconnectListeners) != 0 {
		t.Error("Close should detach all listeners")
	}
}

func TestSynchronizeUsesFreshIDAndResumeTimes(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	if err := conn.Synchronize(context.Background()); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	orderTime := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	dealTime := time.Date(2026, 8, 21, 11, 0, 0, 0, time.UTC)
	conn.OnHistoryOrderAdded(model.Order{ID: "o1", DoneTime: orderTime})
	conn.OnDealAdded(model.Deal{ID: "d1", Time: dealTime})

	if err := conn.Synchronize(context.Background()); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	if len(g.syncCalls) != 2 {
		t.Fatalf("got %d synchronize calls, want 2", len(g.syncCalls))
	}
	first, second := g.syncCalls[0], g.syncCalls[1]
	if first.synchronizationID == "" || first.synchronizationID == second.synchronizationID {
		t.Error("each synchronization should use a fresh id")
	}
	if !first.startingHistoryOrderTime.IsZero() || !first.startingDealTime.IsZero() {
		t.Error("first synchronization should start from the beginning")
	}
	if !second.startingHistoryOrderTime.Equal(orderTime) {
		t.Errorf("startingHistoryOrderTime = %v, want %v", second.startingHistoryOrderTime, orderTime)
	}
	if !second.startingDealTime.Equal(dealTime) {
		t.Errorf("startingDealTime = %v, want %v", second.startingDealTime, dealTime)
	}
}

func TestHistoryResumePointOnlyAdvances(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	newer := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	conn.OnDealAdded(model.Deal{ID: "d1", Time: newer})
	conn.OnDealAdded(model.Deal{ID: "d2", Time: older})

	conn.Synchronize(context.Background())
	if got := g.syncCalls[0].startingDealTime; !got.Equal(newer) {
		t.Errorf("startingDealTime = %v, want %v", got, newer)
	}
}

func TestWaitSynchronizedDefaults(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	if err := conn.WaitSynchronized(context.Background(), "", 0); err != nil {
		t.Fatalf("WaitSynchronized: %v", err)
	}
	call := g.waitCalls[0]
	if call.applicationPattern != ".*" {
		t.Errorf("applicationPattern = %q, want .*", call.applicationPattern)
	}
	if call.timeoutInSeconds != 300 {
		t.Errorf("timeoutInSeconds = %d, want 300", call.timeoutInSeconds)
	}
}

func TestSynchronizedFlagLifecycle(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	if conn.IsSynchronized() {
		t.Fatal("new connection should not be synchronized")
	}
	conn.OnDealSynchronizationFinished("sync-1")
	if !conn.IsSynchronized() {
		t.Error("deal barrier should mark the connection synchronized")
	}
	conn.OnSynchronizationStarted()
	if conn.IsSynchronized() {
		t.Error("new session should clear the flag")
	}
	conn.OnDealSynchronizationFinished("sync-2")
	conn.OnDisconnected()
	if conn.IsSynchronized() {
		t.Error("disconnect should clear the flag")
	}
}

func TestOnReconnectedResubscribesAndResynchronizes(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)

	if err := conn.OnReconnected(); err != nil {
		t.Fatalf("OnReconnected: %v", err)
	}
	if len(g.subscribes) != 1 || g.subscribes[0] != "acc-1" {
		t.Errorf("subscribes = %v, want [acc-1]", g.subscribes)
	}
	if len(g.syncCalls) != 1 {
		t.Errorf("got %d synchronize calls, want 1", len(g.syncCalls))
	}

	// After Close the reconnect callback does nothing.
	conn.Close()
	if err := conn.OnReconnected(); err != nil {
		t.Fatalf("OnReconnected after close: %v", err)
	}
	if len(g.subscribes) != 1 {
		t.Error("closed connection should not resubscribe")
	}
}

func TestTradeBuilders(t *testing.T) {
	g := newFakeGateway()
	conn := NewConnection(g, "acc-1", DefaultStateOptions(), nil)
	ctx := context.Background()

	conn.CreateMarketBuyOrder(ctx, "EURUSD", 0.1, 1.09, 1.12)
	conn.CreateMarketSellOrder(ctx, "EURUSD", 0.2, 1.12, 1.09)
	conn.CreateLimitBuyOrder(ctx, "EURUSD", 0.3, 1.095, 1.09, 1.12)
	conn.CreateLimitSellOrder(ctx, "EURUSD", 0.4, 1.115, 1.12, 1.09)
	conn.ModifyPosition(ctx, "46214692", 1.08, 1.13)
	conn.ClosePosition(ctx, "46214692")
	conn.ModifyOrder(ctx, "46871284", 1.1, 1.08, 1.13)
	conn.CancelOrder(ctx, "46871284")

	wantActions := []string{
		model.ActionOrderTypeBuy,
		model.ActionOrderTypeSell,
		model.ActionOrderTypeBuyLimit,
		model.ActionOrderTypeSellLimit,
		model.ActionPositionModify,
		model.ActionPositionClose,
		model.ActionOrderModify,
		model.ActionOrderCancel,
	}
	if len(g.trades) != len(wantActions) {
		t.Fatalf("got %d trades, want %d", len(g.trades), len(wantActions))
	}
	for i, want := range wantActions {
		if g.trades[i].ActionType != want {
			t.Errorf("trade %d action = %q, want %q", i, g.trades[i].ActionType, want)
		}
	}

	limitBuy := g.trades[2]
	if limitBuy.Symbol != "EURUSD" || limitBuy.Volume != 0.3 || limitBuy.OpenPrice != 1.095 {
		t.Errorf("limit buy = %+v", limitBuy)
	}
	closeTrade := g.trades[5]
	if closeTrade.PositionID != "46214692" {
		t.Errorf("close trade = %+v, want positionId set", closeTrade)
	}
}
