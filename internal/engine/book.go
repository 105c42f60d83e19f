package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"reserveflow/models"
)

type bookOrder struct {
	bid    bool
	price  decimal.Decimal
	volume decimal.Decimal
}

// Book is the synchronized order book for one trading pair. Snapshots
// replace the aggregated levels wholesale; websocket diffs overlay
// per-order volume keyed by OrderGuid. Diffs older than the last applied
// update id are dropped.
type Book struct {
	pair string

	mu           sync.RWMutex
	bids         map[string]decimal.Decimal // price string -> volume
	asks         map[string]decimal.Decimal
	orders       map[string]bookOrder // order guid -> live order
	lastUpdateID int64
	lastTrade    decimal.Decimal
	timestamp    float64
}

func NewBook(pair string) *Book {
	return &Book{
		pair:   pair,
		bids:   make(map[string]decimal.Decimal),
		asks:   make(map[string]decimal.Decimal),
		orders: make(map[string]bookOrder),
	}
}

// ApplySnapshot replaces the aggregated levels. Per-order state is reset:
// guids seen before the snapshot cannot be reconciled against it.
func (b *Book) ApplySnapshot(msg models.BookMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]decimal.Decimal, len(msg.Bids))
	for _, level := range msg.Bids {
		if !level.Volume.IsZero() {
			b.bids[level.Price.String()] = level.Volume
		}
	}
	b.asks = make(map[string]decimal.Decimal, len(msg.Asks))
	for _, level := range msg.Asks {
		if !level.Volume.IsZero() {
			b.asks[level.Price.String()] = level.Volume
		}
	}
	b.orders = make(map[string]bookOrder)
	b.timestamp = msg.Timestamp
	// Snapshots carry update id 0; sequencing restarts with the next diff.
	b.lastUpdateID = msg.UpdateID
}

// ApplyRefresh replaces the aggregated levels from a REST-shaped full
// refresh, keeping its nonce as the sequencing floor for later diffs.
func (b *Book) ApplyRefresh(msg models.BookMessage) {
	b.ApplySnapshot(msg)
}

// ApplyDiff applies one websocket diff. Returns false when the diff was
// stale or addressed an order the book does not know.
func (b *Book) ApplyDiff(msg models.BookMessage) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.UpdateID != 0 && msg.UpdateID <= b.lastUpdateID {
		return false, nil
	}

	switch msg.Event {
	case models.EventNewOrder:
		bid := strings.Contains(msg.OrderType, "Bid")
		var level models.PriceLevel
		if bid {
			level = msg.Bids[0]
		} else {
			level = msg.Asks[0]
		}
		b.orders[msg.OrderGuid] = bookOrder{bid: bid, price: level.Price, volume: level.Volume}
		b.addVolume(bid, level.Price, level.Volume)

	case models.EventOrderCanceled:
		order, ok := b.orders[msg.OrderGuid]
		if !ok {
			return false, nil
		}
		delete(b.orders, msg.OrderGuid)
		b.addVolume(order.bid, order.price, order.volume.Neg())

	case models.EventOrderChanged:
		order, ok := b.orders[msg.OrderGuid]
		if !ok {
			return false, nil
		}
		if msg.NewVolume == nil {
			return false, fmt.Errorf("order changed without volume for %s", msg.OrderGuid)
		}
		b.addVolume(order.bid, order.price, msg.NewVolume.Sub(order.volume))
		if msg.NewVolume.IsZero() {
			delete(b.orders, msg.OrderGuid)
		} else {
			order.volume = *msg.NewVolume
			b.orders[msg.OrderGuid] = order
		}

	default:
		return false, fmt.Errorf("unexpected diff event %q", msg.Event)
	}

	b.lastUpdateID = msg.UpdateID
	return true, nil
}

// RecordTrade keeps the most recent trade price.
func (b *Book) RecordTrade(msg models.TradeMessage) {
	b.mu.Lock()
	b.lastTrade = msg.Price
	b.mu.Unlock()
}

func (b *Book) addVolume(bid bool, price, delta decimal.Decimal) {
	side := b.asks
	if bid {
		side = b.bids
	}
	key := price.String()
	next := side[key].Add(delta)
	if next.Sign() <= 0 {
		delete(side, key)
		return
	}
	side[key] = next
}

// BestBid returns the highest bid level, or false when the side is empty.
func (b *Book) BestBid() (models.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLevel(b.bids, true)
}

// BestAsk returns the lowest ask level, or false when the side is empty.
func (b *Book) BestAsk() (models.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLevel(b.asks, false)
}

// LastTradePrice returns the price of the most recent trade, or false
// when no trade has been seen.
func (b *Book) LastTradePrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTrade, !b.lastTrade.IsZero()
}

// LastUpdateID returns the id of the last applied diff.
func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// Levels returns both sides sorted best-first.
func (b *Book) Levels() (bids, asks []models.PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedLevels(b.bids, true), sortedLevels(b.asks, false)
}

func bestLevel(side map[string]decimal.Decimal, bid bool) (models.PriceLevel, bool) {
	var best models.PriceLevel
	found := false
	for key, volume := range side {
		price := decimal.RequireFromString(key)
		if !found || (bid && price.GreaterThan(best.Price)) || (!bid && price.LessThan(best.Price)) {
			best = models.PriceLevel{Price: price, Volume: volume}
			found = true
		}
	}
	return best, found
}

func sortedLevels(side map[string]decimal.Decimal, bid bool) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, len(side))
	for key, volume := range side {
		levels = append(levels, models.PriceLevel{Price: decimal.RequireFromString(key), Volume: volume})
	}
	sort.Slice(levels, func(i, j int) bool {
		if bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}
