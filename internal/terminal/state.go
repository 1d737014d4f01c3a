// Package terminal maintains a local replica of a remote MetaTrader terminal
// and exposes a connection facade that combines RPC access, the event stream
// and the replica behind one type.
package terminal

import (
	"sync"

	"github.com/agiliumtrade/metaapi-go/internal/gateway"
	"github.com/agiliumtrade/metaapi-go/internal/model"
)

// StateOptions configures the terminal state replica.
type StateOptions struct {
	// UpdatePositionProfits recomputes position profit and account equity
	// locally on every price tick.
	UpdatePositionProfits bool
}

// DefaultStateOptions returns the standard replica configuration.
func DefaultStateOptions() StateOptions {
	return StateOptions{UpdatePositionProfits: true}
}

// State is an in-memory replica of the remote terminal, maintained from the
// synchronization event stream. Accessors return copies; mutation happens only
// through listener callbacks.
type State struct {
	gateway.NoopSynchronizationListener

	opts StateOptions

	mu                sync.RWMutex
	connected         bool
	connectedToBroker bool
	accountInfo       *model.AccountInformation
	positions         []model.Position
	orders            []model.Order
	specs             map[string]model.SymbolSpecification
	prices            map[string]model.SymbolPrice
}

var _ gateway.SynchronizationListener = (*State)(nil)

// NewState creates an empty terminal state replica.
func NewState(opts StateOptions) *State {
	return &State{
		opts:   opts,
		specs:  make(map[string]model.SymbolSpecification),
		prices: make(map[string]model.SymbolPrice),
	}
}

// Connected reports whether the account session is authenticated.
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ConnectedToBroker reports whether the remote terminal is connected to the
// broker.
func (s *State) ConnectedToBroker() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedToBroker
}

// AccountInformation returns the replicated account information and whether
// it has been received yet.
func (s *State) AccountInformation() (model.AccountInformation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accountInfo == nil {
		return model.AccountInformation{}, false
	}
	return *s.accountInfo, true
}

// Positions returns the replicated open positions.
func (s *State) Positions() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// Orders returns the replicated pending orders.
func (s *State) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Specification returns the replicated specification for a symbol.
func (s *State) Specification(symbol string) (model.SymbolSpecification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[symbol]
	return spec, ok
}

// Specifications returns all replicated symbol specifications.
func (s *State) Specifications() []model.SymbolSpecification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SymbolSpecification, 0, len(s.specs))
	for _, spec := range s.specs {
		out = append(out, spec)
	}
	return out
}

// Price returns the latest replicated quote for a symbol.
func (s *State) Price(symbol string) (model.SymbolPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}

// OnConnected marks the account session authenticated.
func (s *State) OnConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// OnDisconnected marks both the session and the broker link down.
func (s *State) OnDisconnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.connectedToBroker = false
	return nil
}

func (s *State) OnBrokerConnectionStatusChanged(connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedToBroker = connected
	return nil
}

func (s *State) OnAccountInformationUpdated(info model.AccountInformation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountInfo = &info
	return nil
}

func (s *State) OnPositionsReplaced(positions []model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make([]model.Position, len(positions))
	copy(s.positions, positions)
	return nil
}

// OnPositionUpdated upserts a position. Existing positions are replaced in
// place so iteration order stays stable.
func (s *State) OnPositionUpdated(position model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID == position.ID {
			s.positions[i] = position
			return nil
		}
	}
	s.positions = append(s.positions, position)
	return nil
}

func (s *State) OnPositionRemoved(positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID == positionID {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *State) OnOrdersReplaced(orders []model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make([]model.Order, len(orders))
	copy(s.orders, orders)
	return nil
}

func (s *State) OnOrderUpdated(order model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == order.ID {
			s.orders[i] = order
			return nil
		}
	}
	s.orders = append(s.orders, order)
	return nil
}

func (s *State) OnOrderCompleted(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *State) OnSymbolSpecificationUpdated(spec model.SymbolSpecification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Symbol] = spec
	return nil
}

// OnSymbolPriceUpdated records the quote and, when enabled, recomputes the
// profit of open positions on the symbol and the account equity. Quotes older
// than the replicated one are ignored.
func (s *State) OnSymbolPriceUpdated(price model.SymbolPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.prices[price.Symbol]; ok && price.Time.Before(prev.Time) {
		return nil
	}
	s.prices[price.Symbol] = price

	if !s.opts.UpdatePositionProfits {
		return nil
	}

	for i := range s.positions {
		if s.positions[i].Symbol == price.Symbol {
			s.repriceLocked(&s.positions[i], price)
		}
	}
	for i := range s.orders {
		if s.orders[i].Symbol == price.Symbol {
			if s.orders[i].Type == model.ActionOrderTypeBuy || s.orders[i].Type == model.ActionOrderTypeBuyLimit {
				s.orders[i].CurrentPrice = price.Ask
			} else {
				s.orders[i].CurrentPrice = price.Bid
			}
		}
	}
	if s.accountInfo != nil {
		var unrealized float64
		for i := range s.positions {
			unrealized += s.positions[i].UnrealizedProfit
		}
		s.accountInfo.Equity = s.accountInfo.Balance + unrealized
	}
	return nil
}

// repriceLocked recomputes one position's unrealized profit against a fresh
// quote using the symbol specification's tick geometry.
func (s *State) repriceLocked(position *model.Position, price model.SymbolPrice) {
	spec, ok := s.specs[position.Symbol]
	if !ok || spec.TickSize == 0 {
		return
	}

	var current, multiplier float64
	if position.Type == model.PositionTypeBuy {
		current = price.Bid
		multiplier = 1
	} else {
		current = price.Ask
		multiplier = -1
	}

	tickValue := price.ProfitTickValue
	if multiplier*(current-position.OpenPrice) < 0 {
		tickValue = price.LossTickValue
	}
	if tickValue == 0 {
		tickValue = position.CurrentTickValue
	}

	unrealized := multiplier * (current - position.OpenPrice) * tickValue * position.Volume / spec.TickSize
	position.UnrealizedProfit = unrealized
	position.Profit = unrealized + position.RealizedProfit
	position.CurrentPrice = current
	if tickValue != 0 {
		position.CurrentTickValue = tickValue
	}
	if !price.Time.IsZero() {
		position.UpdateTime = price.Time
	}
}
