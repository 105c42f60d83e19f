package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reserveflow/internal/symbols"
	"reserveflow/models"
)

// ParseRestTimestamp converts the exchange's timestamp-with-100ns-ticks
// string (e.g. "2021-05-01T12:00:00.1234567Z") into fractional epoch
// seconds truncated to microsecond precision. The fractional part is
// truncated, never rounded, so the result is identical regardless of how
// many trailing digits the exchange sends.
func ParseRestTimestamp(s string) (float64, error) {
	base, frac, found := strings.Cut(s, ".")
	if !found {
		base = strings.TrimSuffix(base, "Z")
	}
	t, err := time.Parse("2006-01-02T15:04:05", base)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	micros := int64(0)
	if found {
		digits := strings.TrimSuffix(frac, "Z")
		for _, r := range digits {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("parse timestamp %q: bad fractional part", s)
			}
		}
		// Truncate to microsecond precision: keep at most six digits,
		// right-pad shorter fractions with zeros.
		if len(digits) > 6 {
			digits = digits[:6]
		}
		for len(digits) < 6 {
			digits += "0"
		}
		for _, r := range digits {
			micros = micros*10 + int64(r-'0')
		}
	}

	return float64(t.Unix()) + float64(micros)/1e6, nil
}

// SnapshotFromRest converts a REST order book response into a canonical
// snapshot message. UpdateID is fixed at 0: the exchange exposes no
// monotonic sequence number in this shape, and downstream consumers
// reconcile the 0 against subsequently arriving diff nonces. The exchange
// provided order of both sides is preserved.
func SnapshotFromRest(raw models.RestOrderBook, timestamp float64, pair string) (models.BookMessage, error) {
	ts := timestamp
	if raw.CreatedTimestampUtc != "" {
		parsed, err := ParseRestTimestamp(raw.CreatedTimestampUtc)
		if err != nil {
			return models.BookMessage{}, err
		}
		ts = parsed
	}

	bids, err := levelsFromRest(raw.BuyOrders)
	if err != nil {
		return models.BookMessage{}, fmt.Errorf("buy orders: %w", err)
	}
	asks, err := levelsFromRest(raw.SellOrders)
	if err != nil {
		return models.BookMessage{}, fmt.Errorf("sell orders: %w", err)
	}

	return models.BookMessage{
		Type:        models.BookSnapshot,
		TradingPair: pair,
		UpdateID:    0,
		Timestamp:   ts,
		Bids:        bids,
		Asks:        asks,
	}, nil
}

// DiffFromRest converts the REST-shaped full refresh into a diff message
// carrying the response Nonce as UpdateID.
func DiffFromRest(raw models.RestOrderBook, pair string) (models.BookMessage, error) {
	msg, err := SnapshotFromRest(raw, 0, pair)
	if err != nil {
		return models.BookMessage{}, err
	}
	msg.Type = models.BookDiff
	msg.UpdateID = raw.Nonce
	return msg, nil
}

// DiffFromWs converts a websocket push into a one-sided diff message.
// Event types outside the book-affecting set produce (nil, nil): unknown
// exchange messages are dropped, never errors.
func DiffFromWs(raw models.WsEvent, pair string) (*models.BookMessage, error) {
	_, quote, err := symbols.SplitPair(pair)
	if err != nil {
		return nil, err
	}

	msg := models.BookMessage{
		Type:        models.BookDiff,
		TradingPair: pair,
		UpdateID:    raw.Nonce,
		Event:       models.DiffEvent(raw.Event),
		OrderType:   raw.Data.OrderType,
		OrderGuid:   raw.Data.OrderGuid,
	}

	switch raw.Event {
	case string(models.EventNewOrder):
		price, err := SecondaryPrice(raw.Data.Price, quote)
		if err != nil {
			return nil, fmt.Errorf("new order for %s: %w", pair, err)
		}
		volume, err := decimal.NewFromString(raw.Data.Volume)
		if err != nil {
			return nil, fmt.Errorf("new order volume %q: %w", raw.Data.Volume, err)
		}
		level := []models.PriceLevel{{Price: price, Volume: volume}}
		zero := []models.PriceLevel{{}}
		switch {
		case strings.Contains(raw.Data.OrderType, "Bid"):
			msg.Bids, msg.Asks = level, zero
		case strings.Contains(raw.Data.OrderType, "Offer"):
			msg.Bids, msg.Asks = zero, level
		default:
			return nil, fmt.Errorf("new order with unknown order type %q", raw.Data.OrderType)
		}

	case string(models.EventOrderCanceled):
		// Removal by order id: no price level is carried, downstream
		// drops the order addressed by OrderGuid.
		if raw.Data.OrderGuid == "" {
			return nil, fmt.Errorf("order canceled event without OrderGuid")
		}

	case string(models.EventOrderChanged):
		// The remaining volume replaces the one stored for OrderGuid at
		// its existing price level; the event carries no price.
		if raw.Data.OrderGuid == "" {
			return nil, fmt.Errorf("order changed event without OrderGuid")
		}
		volume, err := decimal.NewFromString(raw.Data.Volume)
		if err != nil {
			return nil, fmt.Errorf("order changed volume %q: %w", raw.Data.Volume, err)
		}
		msg.NewVolume = &volume

	default:
		return nil, nil
	}

	return &msg, nil
}

// TradeFromExchange converts a websocket trade event into a canonical
// trade message. The exchange reports one primary-currency trade that may
// carry prices for several secondary markets; the entry matching the
// pair's quote currency is selected case-insensitively.
func TradeFromExchange(raw models.WsEvent, pair string) (models.TradeMessage, error) {
	_, quote, err := symbols.SplitPair(pair)
	if err != nil {
		return models.TradeMessage{}, err
	}

	price, err := SecondaryPrice(raw.Data.Price, quote)
	if err != nil {
		return models.TradeMessage{}, fmt.Errorf("trade for %s: %w", pair, err)
	}
	amount, err := decimal.NewFromString(raw.Data.Volume)
	if err != nil {
		return models.TradeMessage{}, fmt.Errorf("trade volume %q: %w", raw.Data.Volume, err)
	}

	side := models.SideBuy
	if raw.Data.Side == "Sell" {
		side = models.SideSell
	}

	return models.TradeMessage{
		TradingPair: pair,
		TradeID:     raw.Data.TradeGuid,
		UpdateID:    raw.Nonce,
		Side:        side,
		Price:       price,
		Amount:      amount,
		Timestamp:   float64(raw.Time) / 1000,
	}, nil
}

// SecondaryPrice picks the price entry whose currency code matches quote
// case-insensitively. When the exchange ever reports more than one
// matching code, the lexicographically smallest key wins so the choice is
// deterministic.
func SecondaryPrice(prices map[string]string, quote string) (decimal.Decimal, error) {
	matched := ""
	for code := range prices {
		if !strings.EqualFold(code, quote) {
			continue
		}
		if matched == "" || code < matched {
			matched = code
		}
	}
	if matched == "" {
		return decimal.Decimal{}, fmt.Errorf("no price for quote currency %q (have %d entries)", quote, len(prices))
	}
	price, err := decimal.NewFromString(prices[matched])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %q for %q: %w", prices[matched], matched, err)
	}
	return price, nil
}

func levelsFromRest(orders []models.RestOrder) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(orders))
	for _, o := range orders {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", o.Price, err)
		}
		volume, err := decimal.NewFromString(o.Volume)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", o.Volume, err)
		}
		levels = append(levels, models.PriceLevel{Price: price, Volume: volume})
	}
	return levels, nil
}
