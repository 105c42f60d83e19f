package channel

import (
	"context"
	"sync"

	"reserveflow/logger"
	"reserveflow/models"
)

type ChannelStats struct {
	DiffSent        int64
	TradeSent       int64
	SnapshotSent    int64
	UserSent        int64
	DiffDropped     int64
	TradeDropped    int64
	SnapshotDropped int64
	UserDropped     int64
}

// Channels is the fan-in surface between the stream coordinator, the
// snapshot fetcher and downstream consumers. Sends never block: a full
// buffer drops the message and counts the drop.
type Channels struct {
	Diff     chan models.BookMessage
	Trade    chan models.TradeMessage
	Snapshot chan models.BookMessage
	User     chan models.UserEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(diffBuffer, tradeBuffer, snapshotBuffer, userBuffer int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Diff:     make(chan models.BookMessage, diffBuffer),
		Trade:    make(chan models.TradeMessage, tradeBuffer),
		Snapshot: make(chan models.BookMessage, snapshotBuffer),
		User:     make(chan models.UserEvent, userBuffer),
		log:      log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"diff_buffer_size":     diffBuffer,
		"trade_buffer_size":    tradeBuffer,
		"snapshot_buffer_size": snapshotBuffer,
		"user_buffer_size":     userBuffer,
	}).Info("market data channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Diff)
	close(c.Trade)
	close(c.Snapshot)
	close(c.User)
	c.log.WithComponent("channels").Info("market data channels closed")
}

func (c *Channels) SendDiff(ctx context.Context, msg models.BookMessage) bool {
	select {
	case c.Diff <- msg:
		c.statsMutex.Lock()
		c.stats.DiffSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.DiffDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, msg models.TradeMessage) bool {
	select {
	case c.Trade <- msg:
		c.statsMutex.Lock()
		c.stats.TradeSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.TradeDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendSnapshot(ctx context.Context, msg models.BookMessage) bool {
	select {
	case c.Snapshot <- msg:
		c.statsMutex.Lock()
		c.stats.SnapshotSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.SnapshotDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendUser(ctx context.Context, msg models.UserEvent) bool {
	select {
	case c.User <- msg:
		c.statsMutex.Lock()
		c.stats.UserSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.UserDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
