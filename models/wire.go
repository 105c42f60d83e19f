package models

import "encoding/json"

// Wire shapes as received from Independent Reserve. Three structurally
// different sources feed the normalizer: the REST order book endpoint, the
// websocket push channel and the REST recent trades endpoint. REST
// snapshots are recognised by CreatedTimestampUtc, websocket pushes by
// Channel/Event, and the diff-shaped REST refresh by carrying a Nonce
// without either of those.

// RestOrder is one entry of BuyOrders/SellOrders in a REST order book
// response.
type RestOrder struct {
	OrderType string `json:"OrderType"`
	Price     string `json:"Price"`
	Volume    string `json:"Volume"`
}

// RestOrderBook is the response of /Public/GetOrderBook.
type RestOrderBook struct {
	BuyOrders             []RestOrder `json:"BuyOrders"`
	SellOrders            []RestOrder `json:"SellOrders"`
	CreatedTimestampUtc   string      `json:"CreatedTimestampUtc"`
	PrimaryCurrencyCode   string      `json:"PrimaryCurrencyCode"`
	SecondaryCurrencyCode string      `json:"SecondaryCurrencyCode"`
	Nonce                 int64       `json:"Nonce,omitempty"`
}

// WsEventData is the Data object of a websocket push. Price maps a
// secondary currency code to the price in that currency; one event may
// carry prices for several secondary markets at once.
type WsEventData struct {
	OrderType string            `json:"OrderType,omitempty"`
	OrderGuid string            `json:"OrderGuid,omitempty"`
	TradeGuid string            `json:"TradeGuid,omitempty"`
	Side      string            `json:"Side,omitempty"`
	Price     map[string]string `json:"Price,omitempty"`
	Volume    string            `json:"Volume,omitempty"`
}

// WsEvent is one websocket push from the exchange.
type WsEvent struct {
	Channel string      `json:"Channel"`
	Event   string      `json:"Event"`
	Nonce   int64       `json:"Nonce"`
	Time    int64       `json:"Time,omitempty"`
	Data    WsEventData `json:"Data"`
}

// RestTrade is one entry of the /Public/GetRecentTrades response.
type RestTrade struct {
	PrimaryCurrencyAmount       string `json:"PrimaryCurrencyAmount"`
	SecondaryCurrencyTradePrice string `json:"SecondaryCurrencyTradePrice"`
	TradeTimestampUtc           string `json:"TradeTimestampUtc"`
}

// RestRecentTrades is the response of /Public/GetRecentTrades.
type RestRecentTrades struct {
	Trades              []RestTrade `json:"Trades"`
	CreatedTimestampUtc string      `json:"CreatedTimestampUtc"`
}

// Account is one entry of the signed /Private/GetAccounts response.
type Account struct {
	AccountGuid      string `json:"AccountGuid"`
	AccountStatus    string `json:"AccountStatus"`
	AvailableBalance string `json:"AvailableBalance"`
	CurrencyCode     string `json:"CurrencyCode"`
	TotalBalance     string `json:"TotalBalance"`
}

// MyTradesPage is one page of the signed /Private/GetTrades response.
type MyTradesPage struct {
	Data       []json.RawMessage `json:"Data"`
	PageSize   int               `json:"PageSize"`
	TotalItems int               `json:"TotalItems"`
	TotalPages int               `json:"TotalPages"`
}

// ClassifyWire reports which source shape a raw payload has, detected
// structurally by field presence rather than by type.
type WireShape int

const (
	WireUnknown WireShape = iota
	WireWsPush
	WireRestSnapshot
	WireRestDiff
)

func ClassifyWire(raw []byte) WireShape {
	var probe struct {
		Channel             *string `json:"Channel"`
		Event               *string `json:"Event"`
		CreatedTimestampUtc *string `json:"CreatedTimestampUtc"`
		Nonce               *int64  `json:"Nonce"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return WireUnknown
	}
	switch {
	case probe.Channel != nil || probe.Event != nil:
		return WireWsPush
	case probe.CreatedTimestampUtc != nil:
		return WireRestSnapshot
	case probe.Nonce != nil:
		return WireRestDiff
	default:
		return WireUnknown
	}
}
