package gateway

import "github.com/agiliumtrade/metaapi-go/internal/model"

// SynchronizationListener receives synchronization events for one account.
// Implementations are invoked concurrently with other listeners of the same
// event, but the dispatcher waits for every listener before it moves to the
// next packet. A returned error is logged and does not affect peers or the
// stream.
//
// Embed NoopSynchronizationListener to implement a subset.
type SynchronizationListener interface {
	// OnConnected is invoked when the server authenticates the account.
	OnConnected() error
	// OnDisconnected is invoked when the server drops the account session.
	OnDisconnected() error
	// OnSynchronizationStarted is invoked when a new synchronization session
	// begins; replica caches should expect full replacements to follow.
	OnSynchronizationStarted() error

	OnAccountInformationUpdated(info model.AccountInformation) error

	OnPositionsReplaced(positions []model.Position) error
	OnPositionUpdated(position model.Position) error
	OnPositionRemoved(positionID string) error

	OnOrdersReplaced(orders []model.Order) error
	OnOrderUpdated(order model.Order) error
	OnOrderCompleted(orderID string) error

	OnHistoryOrderAdded(order model.Order) error
	OnDealAdded(deal model.Deal) error

	// OnDealSynchronizationFinished signals that the deal history barrier of
	// the named synchronization session completed.
	OnDealSynchronizationFinished(synchronizationID string) error
	// OnOrderSynchronizationFinished signals that the order history barrier
	// of the named synchronization session completed.
	OnOrderSynchronizationFinished(synchronizationID string) error

	OnBrokerConnectionStatusChanged(connected bool) error

	OnSymbolSpecificationUpdated(specification model.SymbolSpecification) error
	OnSymbolPriceUpdated(price model.SymbolPrice) error
}

// ReconnectListener is notified after the gateway re-establishes its socket.
type ReconnectListener interface {
	OnReconnected() error
}

// NoopSynchronizationListener implements SynchronizationListener with no-ops.
type NoopSynchronizationListener struct{}

var _ SynchronizationListener = (*NoopSynchronizationListener)(nil)

func (NoopSynchronizationListener) OnConnected() error              { return nil }
func (NoopSynchronizationListener) OnDisconnected() error           { return nil }
func (NoopSynchronizationListener) OnSynchronizationStarted() error { return nil }

func (NoopSynchronizationListener) OnAccountInformationUpdated(model.AccountInformation) error {
	return nil
}

func (NoopSynchronizationListener) OnPositionsReplaced([]model.Position) error { return nil }
func (NoopSynchronizationListener) OnPositionUpdated(model.Position) error     { return nil }
func (NoopSynchronizationListener) OnPositionRemoved(string) error             { return nil }

func (NoopSynchronizationListener) OnOrdersReplaced([]model.Order) error { return nil }
func (NoopSynchronizationListener) OnOrderUpdated(model.Order) error     { return nil }
func (NoopSynchronizationListener) OnOrderCompleted(string) error        { return nil }

func (NoopSynchronizationListener) OnHistoryOrderAdded(model.Order) error { return nil }
func (NoopSynchronizationListener) OnDealAdded(model.Deal) error          { return nil }

func (NoopSynchronizationListener) OnDealSynchronizationFinished(string) error  { return nil }
func (NoopSynchronizationListener) OnOrderSynchronizationFinished(string) error { return nil }

func (NoopSynchronizationListener) OnBrokerConnectionStatusChanged(bool) error { return nil }

func (NoopSynchronizationListener) OnSymbolSpecificationUpdated(model.SymbolSpecification) error {
	return nil
}

func (NoopSynchronizationListener) OnSymbolPriceUpdated(model.SymbolPrice) error { return nil }
