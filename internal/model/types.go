package model

import "time"

// -----------------------------------------------------------------------------
// Terminal State Types
// -----------------------------------------------------------------------------

// AccountInformation is the current state of a MetaTrader account.
type AccountInformation struct {
	Platform    string  `json:"platform,omitempty"` // "mt4" or "mt5"
	Broker      string  `json:"broker"`             // Broker name
	Currency    string  `json:"currency"`           // Account currency (e.g., "USD")
	Server      string  `json:"server"`             // Broker server name
	Balance     float64 `json:"balance"`            // Account balance
	Equity      float64 `json:"equity"`             // Balance + floating profit
	Margin      float64 `json:"margin"`             // Used margin
	FreeMargin  float64 `json:"freeMargin"`         // Free margin
	Leverage    float64 `json:"leverage"`           // Account leverage
	MarginLevel float64 `json:"marginLevel"`        // Margin level percentage
	Name        string  `json:"name,omitempty"`     // Account holder name
	Login       int64   `json:"login,omitempty"`    // Terminal login
}

// Position is an open market exposure.
type Position struct {
	ID         string    `json:"id"`   // Position id, unique per account
	Type       string    `json:"type"` // POSITION_TYPE_BUY or POSITION_TYPE_SELL
	Symbol     string    `json:"symbol"`
	Magic      int64     `json:"magic"`
	Time       time.Time `json:"time"`       // Open time
	BrokerTime string    `json:"brokerTime"` // Open time in broker-local format
	UpdateTime time.Time `json:"updateTime,omitempty"`

	OpenPrice        float64 `json:"openPrice"`
	CurrentPrice     float64 `json:"currentPrice"`
	CurrentTickValue float64 `json:"currentTickValue,omitempty"`
	Volume           float64 `json:"volume"`
	StopLoss         float64 `json:"stopLoss,omitempty"`
	TakeProfit       float64 `json:"takeProfit,omitempty"`

	Swap             float64 `json:"swap"`
	Commission       float64 `json:"commission"`
	Profit           float64 `json:"profit"`
	UnrealizedProfit float64 `json:"unrealizedProfit,omitempty"`
	RealizedProfit   float64 `json:"realizedProfit,omitempty"`

	ClientID string `json:"clientId,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Position type values.
const (
	PositionTypeBuy  = "POSITION_TYPE_BUY"
	PositionTypeSell = "POSITION_TYPE_SELL"
)

// Order is a pending or historical MetaTrader order.
type Order struct {
	ID         string    `json:"id"`    // Order id (ticket number)
	Type       string    `json:"type"`  // e.g. ORDER_TYPE_BUY_LIMIT
	State      string    `json:"state"` // e.g. ORDER_STATE_PLACED
	Symbol     string    `json:"symbol"`
	Magic      int64     `json:"magic"`
	Platform   string    `json:"platform,omitempty"`
	Time       time.Time `json:"time"`       // Creation time
	BrokerTime string    `json:"brokerTime"` // Creation time in broker-local format
	DoneTime   time.Time `json:"doneTime,omitempty"`

	OpenPrice     float64 `json:"openPrice"`
	CurrentPrice  float64 `json:"currentPrice,omitempty"`
	Volume        float64 `json:"volume"`        // Requested volume
	CurrentVolume float64 `json:"currentVolume"` // Remaining volume
	StopLoss      float64 `json:"stopLoss,omitempty"`
	TakeProfit    float64 `json:"takeProfit,omitempty"`

	PositionID string `json:"positionId,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// Deal is one completed transaction leg. Deals are immutable once observed.
type Deal struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`      // e.g. DEAL_TYPE_BUY
	EntryType  string    `json:"entryType"` // e.g. DEAL_ENTRY_IN
	Symbol     string    `json:"symbol,omitempty"`
	Magic      int64     `json:"magic,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	Time       time.Time `json:"time"`
	BrokerTime string    `json:"brokerTime"`

	Volume     float64 `json:"volume,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Commission float64 `json:"commission,omitempty"`
	Swap       float64 `json:"swap,omitempty"`
	Profit     float64 `json:"profit"`

	PositionID string `json:"positionId,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// SymbolSpecification is per-symbol trading metadata.
type SymbolSpecification struct {
	Symbol               string  `json:"symbol"`
	TickSize             float64 `json:"tickSize"`
	TickValue            float64 `json:"tickValue,omitempty"`
	ContractSize         float64 `json:"contractSize,omitempty"`
	Digits               int     `json:"digits,omitempty"`
	MinVolume            float64 `json:"minVolume"`
	MaxVolume            float64 `json:"maxVolume"`
	VolumeStep           float64 `json:"volumeStep"`
	QuoteCurrency        string  `json:"quoteCurrency,omitempty"`
	BaseCurrency         string  `json:"baseCurrency,omitempty"`
	SwapLong             float64 `json:"swapLong,omitempty"`
	SwapShort            float64 `json:"swapShort,omitempty"`
	TradeAllowed         bool    `json:"tradeAllowed,omitempty"`
	MarginCurrency       string  `json:"marginCurrency,omitempty"`
	LotSize              float64 `json:"lotSize,omitempty"`
	Description          string  `json:"description,omitempty"`
	PriceCalculationMode string  `json:"priceCalculationMode,omitempty"`
}

// SymbolPrice is the latest quote for a symbol.
type SymbolPrice struct {
	Symbol          string    `json:"symbol"`
	Bid             float64   `json:"bid"`
	Ask             float64   `json:"ask"`
	ProfitTickValue float64   `json:"profitTickValue,omitempty"` // Tick value for a profitable position
	LossTickValue   float64   `json:"lossTickValue,omitempty"`   // Tick value for a losing position
	Time            time.Time `json:"time,omitempty"`
	BrokerTime      string    `json:"brokerTime,omitempty"`
}

// -----------------------------------------------------------------------------
// RPC Result Types
// -----------------------------------------------------------------------------

// HistoryOrders is the result of a history order query. Synchronizing reports
// whether the server-side history download is still in progress.
type HistoryOrders struct {
	HistoryOrders []Order `json:"historyOrders"`
	Synchronizing bool    `json:"synchronizing"`
}

// Deals is the result of a deal history query.
type Deals struct {
	Deals         []Deal `json:"deals"`
	Synchronizing bool   `json:"synchronizing"`
}

// TradeResponse is the post-processed result of a successful trade RPC.
type TradeResponse struct {
	NumericCode int    `json:"numericCode"`
	StringCode  string `json:"stringCode"`
	Message     string `json:"message"`
	OrderID     string `json:"orderId,omitempty"`
	PositionID  string `json:"positionId,omitempty"`
}

// Trade describes a trade request for the trade RPC.
type Trade struct {
	ActionType string  `json:"actionType"`
	Symbol     string  `json:"symbol,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	OpenPrice  float64 `json:"openPrice,omitempty"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
	OrderID    string  `json:"orderId,omitempty"`
	PositionID string  `json:"positionId,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	ClientID   string  `json:"clientId,omitempty"`
}

// Trade action type values.
const (
	ActionOrderTypeBuy       = "ORDER_TYPE_BUY"
	ActionOrderTypeSell      = "ORDER_TYPE_SELL"
	ActionOrderTypeBuyLimit  = "ORDER_TYPE_BUY_LIMIT"
	ActionOrderTypeSellLimit = "ORDER_TYPE_SELL_LIMIT"
	ActionPositionModify     = "POSITION_MODIFY"
	ActionPositionClose      = "POSITION_CLOSE_ID"
	ActionOrderModify        = "ORDER_MODIFY"
	ActionOrderCancel        = "ORDER_CANCEL"
)
