// Package packet defines the wire envelope of the MetaApi event socket and
// the synchronization packet variant.
//
// Every websocket message is a single JSON object {"event": ..., "data": ...}.
// Synchronization packets decode into SyncPacket, a closed variant over the
// type discriminant, so dispatch switches are exhaustiveness-checkable.
// Instant fields are typed time.Time and broker-local times stay strings;
// there is no name-based timestamp coercion.
package packet

import (
	"encoding/json"
	"fmt"

	"github.com/agiliumtrade/metaapi-go/internal/model"
)

// Socket event names.
const (
	EventRequest         = "request"
	EventResponse        = "response"
	EventProcessingError = "processingError"
	EventSynchronization = "synchronization"
)

// Envelope frames one websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Type is the synchronization packet discriminant.
type Type string

// Synchronization packet types.
const (
	TypeAuthenticated      Type = "authenticated"
	TypeDisconnected       Type = "disconnected"
	TypeSyncStarted        Type = "synchronizationStarted"
	TypeAccountInformation Type = "accountInformation"
	TypePositions          Type = "positions"
	TypeOrders             Type = "orders"
	TypeHistoryOrders      Type = "historyOrders"
	TypeDeals              Type = "deals"
	TypeUpdate             Type = "update"
	TypeDealSyncFinished   Type = "dealSynchronizationFinished"
	TypeOrderSyncFinished  Type = "orderSynchronizationFinished"
	TypeStatus             Type = "status"
	TypeSpecifications     Type = "specifications"
	TypePrices             Type = "prices"
)

// SyncPacket is a decoded synchronization packet. Payload fields are populated
// according to Type; the rest stay zero. Raw preserves the original encoding
// for the packet journal.
type SyncPacket struct {
	Type              Type   `json:"type"`
	AccountID         string `json:"accountId"`
	SequenceNumber    *int64 `json:"sequenceNumber,omitempty"`
	SynchronizationID string `json:"synchronizationId,omitempty"`

	// status payload
	Connected bool `json:"connected,omitempty"`

	// replace / snapshot payloads
	AccountInformation *model.AccountInformation   `json:"accountInformation,omitempty"`
	Positions          []model.Position            `json:"positions,omitempty"`
	Orders             []model.Order               `json:"orders,omitempty"`
	HistoryOrders      []model.Order               `json:"historyOrders,omitempty"`
	Deals              []model.Deal                `json:"deals,omitempty"`
	Specifications     []model.SymbolSpecification `json:"specifications,omitempty"`
	Prices             []model.SymbolPrice         `json:"prices,omitempty"`

	// update payload
	UpdatedPositions   []model.Position `json:"updatedPositions,omitempty"`
	RemovedPositionIDs []string         `json:"removedPositionIds,omitempty"`
	UpdatedOrders      []model.Order    `json:"updatedOrders,omitempty"`
	CompletedOrderIDs  []string         `json:"completedOrderIds,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// DecodeSync decodes a synchronization packet, keeping the raw bytes.
func DecodeSync(data []byte) (*SyncPacket, error) {
	var p SyncPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode synchronization packet: %w", err)
	}
	if p.Type == "" {
		return nil, fmt.Errorf("synchronization packet has no type")
	}
	p.Raw = append(json.RawMessage(nil), data...)
	return &p, nil
}

// Seq returns the sequence number and whether the packet carries one.
func (p *SyncPacket) Seq() (int64, bool) {
	if p.SequenceNumber == nil {
		return 0, false
	}
	return *p.SequenceNumber, true
}

// Request is the outbound RPC envelope. Type-specific arguments go in Args
// and are flattened next to the envelope fields on the wire.
type Request struct {
	RequestID   string
	AccountID   string
	Application string
	Type        string
	Args        map[string]any
}

// MarshalJSON flattens envelope fields and arguments into one object.
func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Args)+4)
	for k, v := range r.Args {
		body[k] = v
	}
	body["requestId"] = r.RequestID
	body["accountId"] = r.AccountID
	body["application"] = r.Application
	body["type"] = r.Type
	return json.Marshal(body)
}

// EncodeRequest frames a request for the socket.
func EncodeRequest(r Request) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", r.Type, err)
	}
	return json.Marshal(Envelope{Event: EventRequest, Data: data})
}
