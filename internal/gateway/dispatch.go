package gateway

import (
	"golang.org/x/sync/errgroup"

	"github.com/agiliumtrade/metaapi-go/internal/packet"
)

// AddSynchronizationListener registers a listener for an account's
// synchronization events.
func (c *Client) AddSynchronizationListener(accountID string, l SynchronizationListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.syncListeners[accountID] = append(c.syncListeners[accountID], l)
}

// RemoveSynchronizationListener unregisters a listener. Removing a listener
// that was never added is a no-op.
func (c *Client) RemoveSynchronizationListener(accountID string, l SynchronizationListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	listeners := c.syncListeners[accountID]
	for i, existing := range listeners {
		if existing == l {
			c.syncListeners[accountID] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

// AddReconnectListener registers a listener notified after socket recovery.
func (c *Client) AddReconnectListener(l ReconnectListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.reconnectListeners = append(c.reconnectListeners, l)
}

// RemoveReconnectListener unregisters a reconnect listener.
func (c *Client) RemoveReconnectListener(l ReconnectListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for i, existing := range c.reconnectListeners {
		if existing == l {
			c.reconnectListeners = append(c.reconnectListeners[:i:i], c.reconnectListeners[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners clears both listener registries.
func (c *Client) RemoveAllListeners() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.syncListeners = make(map[string][]SynchronizationListener)
	c.reconnectListeners = nil
}

func (c *Client) accountListeners(accountID string) []SynchronizationListener {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	listeners := c.syncListeners[accountID]
	out := make([]SynchronizationListener, len(listeners))
	copy(out, listeners)
	return out
}

// dispatchPacket fans one ordered packet out to the account's listeners.
// Listener batches for one event run concurrently and are awaited before the
// next event of the packet; packets never overlap.
func (c *Client) dispatchPacket(p *packet.SyncPacket) {
	listeners := c.accountListeners(p.AccountID)
	if len(listeners) == 0 {
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	switch p.Type {
	case packet.TypeAuthenticated:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnConnected()
		})

	case packet.TypeDisconnected:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnDisconnected()
		})

	case packet.TypeSyncStarted:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnSynchronizationStarted()
		})

	case packet.TypeAccountInformation:
		if p.AccountInformation == nil {
			return
		}
		info := *p.AccountInformation
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnAccountInformationUpdated(info)
		})

	case packet.TypePositions:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnPositionsReplaced(p.Positions)
		})

	case packet.TypeOrders:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnOrdersReplaced(p.Orders)
		})

	case packet.TypeHistoryOrders:
		for _, order := range p.HistoryOrders {
			order := order
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnHistoryOrderAdded(order)
			})
		}

	case packet.TypeDeals:
		for _, deal := range p.Deals {
			deal := deal
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnDealAdded(deal)
			})
		}

	case packet.TypeUpdate:
		if p.AccountInformation != nil {
			info := *p.AccountInformation
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnAccountInformationUpdated(info)
			})
		}
		for _, position := range p.UpdatedPositions {
			position := position
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnPositionUpdated(position)
			})
		}
		for _, id := range p.RemovedPositionIDs {
			id := id
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnPositionRemoved(id)
			})
		}
		for _, order := range p.UpdatedOrders {
			order := order
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnOrderUpdated(order)
			})
		}
		for _, id := range p.CompletedOrderIDs {
			id := id
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnOrderCompleted(id)
			})
		}
		for _, order := range p.HistoryOrders {
			order := order
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnHistoryOrderAdded(order)
			})
		}
		for _, deal := range p.Deals {
			deal := deal
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnDealAdded(deal)
			})
		}

	case packet.TypeDealSyncFinished:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnDealSynchronizationFinished(p.SynchronizationID)
		})

	case packet.TypeOrderSyncFinished:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnOrderSynchronizationFinished(p.SynchronizationID)
		})

	case packet.TypeStatus:
		c.invokeAll(p, listeners, func(l SynchronizationListener) error {
			return l.OnBrokerConnectionStatusChanged(p.Connected)
		})

	case packet.TypeSpecifications:
		for _, spec := range p.Specifications {
			spec := spec
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnSymbolSpecificationUpdated(spec)
			})
		}

	case packet.TypePrices:
		for _, price := range p.Prices {
			price := price
			c.invokeAll(p, listeners, func(l SynchronizationListener) error {
				return l.OnSymbolPriceUpdated(price)
			})
		}

	default:
		c.logger.Debug("skipping unknown synchronization packet type",
			"type", p.Type, "account_id", p.AccountID)
	}
}

// invokeAll runs fn on every listener concurrently and waits for all of them.
// Listener errors are logged, never propagated.
func (c *Client) invokeAll(p *packet.SyncPacket, listeners []SynchronizationListener, fn func(SynchronizationListener) error) {
	var g errgroup.Group
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			if err := fn(l); err != nil {
				c.logger.Warn("synchronization listener failed",
					"type", p.Type, "account_id", p.AccountID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}
