package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BookMessageType tags the variant carried by a BookMessage.
type BookMessageType string

const (
	BookSnapshot BookMessageType = "snapshot"
	BookDiff     BookMessageType = "diff"
)

// DiffEvent identifies the websocket event that produced an incremental
// book update.
type DiffEvent string

const (
	EventNewOrder      DiffEvent = "NewOrder"
	EventOrderChanged  DiffEvent = "OrderChanged"
	EventOrderCanceled DiffEvent = "OrderCanceled"
)

// PriceLevel is a single (price, volume) entry of one side of the book.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// BookMessage is the canonical order book message republished to the host.
// Snapshots carry full Bids/Asks; diffs carry either a full REST refresh or
// a one-sided websocket update. UpdateID is the exchange nonce; 0 is
// reserved for the first snapshot of a session.
type BookMessage struct {
	Type        BookMessageType `json:"type"`
	TradingPair string          `json:"trading_pair"`
	UpdateID    int64           `json:"update_id"`
	Timestamp   float64         `json:"timestamp"`
	Bids        []PriceLevel    `json:"bids,omitempty"`
	Asks        []PriceLevel    `json:"asks,omitempty"`

	// Websocket diff metadata. Event is empty on snapshots and REST diffs.
	Event     DiffEvent `json:"event,omitempty"`
	OrderType string    `json:"order_type,omitempty"`
	OrderGuid string    `json:"order_guid,omitempty"`

	// Volume replacement for an OrderChanged event, addressed by OrderGuid.
	NewVolume *decimal.Decimal `json:"new_volume,omitempty"`
}

// TradeSide is the taker side of an executed trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeMessage is the canonical trade message republished to the host.
type TradeMessage struct {
	TradingPair string          `json:"trading_pair"`
	TradeID     string          `json:"trade_id"`
	UpdateID    int64           `json:"update_id"`
	Side        TradeSide       `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   float64         `json:"timestamp"`
}

// RawStreamMessage carries one undecoded websocket payload from the stream
// coordinator to the synchronization engine.
type RawStreamMessage struct {
	TradingPair string
	Data        []byte
	Received    time.Time
}

// UserEvent is a private account event (balance or order update) delivered
// verbatim from the authenticated websocket session.
type UserEvent struct {
	Data     json.RawMessage
	Received time.Time
}
