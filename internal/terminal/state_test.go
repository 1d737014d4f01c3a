package terminal

import (
	"math"
	"testing"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/model"
)

func newSyncedState(t *testing.T) *State {
	t.Helper()
	s := NewState(DefaultStateOptions())
	if err := s.OnConnected(); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	return s
}

func TestConnectionFlags(t *testing.T) {
	s := NewState(DefaultStateOptions())
	if s.Connected() || s.ConnectedToBroker() {
		t.Fatal("new state should start disconnected")
	}

	s.OnConnected()
	s.OnBrokerConnectionStatusChanged(true)
	if !s.Connected() || !s.ConnectedToBroker() {
		t.Error("flags should track connection events")
	}

	s.OnDisconnected()
	if s.Connected() || s.ConnectedToBroker() {
		t.Error("disconnect should clear both flags")
	}
}

func TestAccountInformationReplicated(t *testing.T) {
	s := newSyncedState(t)

	if _, ok := s.AccountInformation(); ok {
		t.Fatal("account information should be absent initially")
	}
	s.OnAccountInformationUpdated(model.AccountInformation{Broker: "Tradeview", Balance: 7319.9})
	info, ok := s.AccountInformation()
	if !ok || info.Broker != "Tradeview" {
		t.Errorf("info = %+v, %v", info, ok)
	}
}

func TestPositionUpsertKeepsOrderAndUniqueness(t *testing.T) {
	s := newSyncedState(t)

	s.OnPositionsReplaced([]model.Position{
		{ID: "p1", Symbol: "EURUSD", Volume: 1},
		{ID: "p2", Symbol: "GBPUSD", Volume: 2},
	})
	// Update of an existing position replaces it in place.
	s.OnPositionUpdated(model.Position{ID: "p1", Symbol: "EURUSD", Volume: 5})
	// Unknown id appends.
	s.OnPositionUpdated(model.Position{ID: "p3", Symbol: "USDJPY", Volume: 3})

	positions := s.Positions()
	if len(positions) != 3 {
		t.Fatalf("got %d positions, want 3", len(positions))
	}
	if positions[0].ID != "p1" || positions[0].Volume != 5 {
		t.Errorf("positions[0] = %+v, want updated p1 first", positions[0])
	}
	if positions[2].ID != "p3" {
		t.Errorf("positions[2] = %+v, want appended p3 last", positions[2])
	}

	seen := map[string]int{}
	for _, p := range positions {
		seen[p.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("position %s appears %d times", id, n)
		}
	}
}

func TestPositionRemoval(t *testing.T) {
	s := newSyncedState(t)
	s.OnPositionsReplaced([]model.Position{{ID: "p1"}, {ID: "p2"}})

	s.OnPositionRemoved("p1")
	if positions := s.Positions(); len(positions) != 1 || positions[0].ID != "p2" {
		t.Errorf("positions = %+v, want only p2", positions)
	}
	// Removing an unknown id is a no-op.
	s.OnPositionRemoved("missing")
	if positions := s.Positions(); len(positions) != 1 {
		t.Errorf("got %d positions, want 1", len(positions))
	}
}

func TestOrdersReplicated(t *testing.T) {
	s := newSyncedState(t)

	s.OnOrdersReplaced([]model.Order{{ID: "o1"}, {ID: "o2"}})
	s.OnOrderUpdated(model.Order{ID: "o1", State: "ORDER_STATE_PLACED"})
	s.OnOrderCompleted("o2")

	orders := s.Orders()
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	if orders[0].ID != "o1" || orders[0].State != "ORDER_STATE_PLACED" {
		t.Errorf("orders[0] = %+v", orders[0])
	}
}

func TestSpecificationsIndexedBySymbol(t *testing.T) {
	s := newSyncedState(t)

	s.OnSymbolSpecificationUpdated(model.SymbolSpecification{Symbol: "EURUSD", TickSize: 0.00001})
	s.OnSymbolSpecificationUpdated(model.SymbolSpecification{Symbol: "EURUSD", TickSize: 0.0001})

	spec, ok := s.Specification("EURUSD")
	if !ok || spec.TickSize != 0.0001 {
		t.Errorf("spec = %+v, %v, want latest tick size", spec, ok)
	}
	if _, ok := s.Specification("GBPUSD"); ok {
		t.Error("unknown symbol should report absent")
	}
}

func TestStalePriceIgnored(t *testing.T) {
	s := newSyncedState(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	s.OnSymbolPriceUpdated(model.SymbolPrice{Symbol: "EURUSD", Bid: 1.10, Ask: 1.11, Time: base})
	s.OnSymbolPriceUpdated(model.SymbolPrice{Symbol: "EURUSD", Bid: 1.05, Ask: 1.06, Time: base.Add(-time.Minute)})

	price, ok := s.Price("EURUSD")
	if !ok || price.Bid != 1.10 {
		t.Errorf("price = %+v, want the newer quote kept", price)
	}
}

func TestPriceUpdateRecomputesProfitAndEquity(t *testing.T) {
	s := newSyncedState(t)

	s.OnAccountInformationUpdated(model.AccountInformation{Balance: 10000, Equity: 10000})
	s.OnSymbolSpecificationUpdated(model.SymbolSpecification{Symbol: "EURUSD", TickSize: 0.00001})
	s.OnPositionsReplaced([]model.Position{{
		ID:        "p1",
		Type:      model.PositionTypeBuy,
		Symbol:    "EURUSD",
		OpenPrice: 1.10000,
		Volume:    0.1,
	}})

	s.OnSymbolPriceUpdated(model.SymbolPrice{
		Symbol:          "EURUSD",
		Bid:             1.10100,
		Ask:             1.10120,
		ProfitTickValue: 0.1,
		LossTickValue:   0.1,
		Time:            time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	})

	positions := s.Positions()
	// (1.101 - 1.1) * 0.1 * 0.1 / 0.00001 = 1.0
	if math.Abs(positions[0].UnrealizedProfit-1.0) > 1e-9 {
		t.Errorf("UnrealizedProfit = %v, want 1.0", positions[0].UnrealizedProfit)
	}
	if positions[0].CurrentPrice != 1.10100 {
		t.Errorf("CurrentPrice = %v, want bid for a long position", positions[0].CurrentPrice)
	}

	info, _ := s.AccountInformation()
	if math.Abs(info.Equity-10001.0) > 1e-9 {
		t.Errorf("Equity = %v, want balance plus unrealized profit", info.Equity)
	}
}

func TestPriceUpdateSkippedWhenDisabled(t *testing.T) {
	s := NewState(StateOptions{UpdatePositionProfits: false})
	s.OnConnected()
	s.OnSymbolSpecificationUpdated(model.SymbolSpecification{Symbol: "EURUSD", TickSize: 0.00001})
	s.OnPositionsReplaced([]model.Position{{
		ID: "p1", Type: model.PositionTypeBuy, Symbol: "EURUSD", OpenPrice: 1.1, Volume: 0.1, Profit: 42,
	}})

	s.OnSymbolPriceUpdated(model.SymbolPrice{Symbol: "EURUSD", Bid: 1.2, Ask: 1.21, ProfitTickValue: 0.1})

	if positions := s.Positions(); positions[0].Profit != 42 {
		t.Errorf("Profit = %v, want untouched 42", positions[0].Profit)
	}
}

func TestShortPositionUsesAsk(t *testing.T) {
	s := newSyncedState(t)
	s.OnSymbolSpecificationUpdated(model.SymbolSpecification{Symbol: "EURUSD", TickSize: 0.00001})
	s.OnPositionsReplaced([]model.Position{{
		ID:        "p1",
		Type:      model.PositionTypeSell,
		Symbol:    "EURUSD",
		OpenPrice: 1.10000,
		Volume:    0.1,
	}})

	s.OnSymbolPriceUpdated(model.SymbolPrice{
		Symbol:          "EURUSD",
		Bid:             1.09880,
		Ask:             1.09900,
		ProfitTickValue: 0.1,
		LossTickValue:   0.1,
	})

	positions := s.Positions()
	if positions[0].CurrentPrice != 1.09900 {
		t.Errorf("CurrentPrice = %v, want ask for a short position", positions[0].CurrentPrice)
	}
	// (1.1 - 1.099) * 0.1 * 0.1 / 0.00001 = 1.0
	if math.Abs(positions[0].UnrealizedProfit-1.0) > 1e-9 {
		t.Errorf("UnrealizedProfit = %v, want 1.0", positions[0].UnrealizedProfit)
	}
}
