package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"reserveflow/config"
	"reserveflow/internal/channel"
	"reserveflow/logger"
	"reserveflow/models"
)

// marketFetcher is the slice of the REST fetcher the engine needs for
// book anchoring and the host-facing price queries.
type marketFetcher interface {
	FetchFullBook(ctx context.Context, pair string) (models.BookMessage, error)
	LastTradedPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error)
	MidPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error)
}

// Engine keeps one synchronized Book per trading pair. It consumes the
// diff and trade channels fed by the stream coordinator, and runs the
// snapshot loop that periodically re-anchors every book against a full
// REST order book.
type Engine struct {
	config   *config.Config
	channels *channel.Channels
	fetcher  marketFetcher
	pairs    []string

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	books map[string]*Book
}

func NewEngine(cfg *config.Config, ch *channel.Channels, fetcher marketFetcher, pairs []string) *Engine {
	books := make(map[string]*Book, len(pairs))
	for _, pair := range pairs {
		books[pair] = NewBook(pair)
	}
	return &Engine{
		config:   cfg,
		channels: ch,
		fetcher:  fetcher,
		pairs:    pairs,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		books:    books,
	}
}

// Book returns the synchronized book for a pair, or nil when the pair is
// not tracked.
func (e *Engine) Book(pair string) *Book {
	return e.books[pair]
}

// GetLastTradedPrices returns the latest traded price for every tracked
// pair, straight from the exchange.
func (e *Engine) GetLastTradedPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return e.fetcher.LastTradedPrices(ctx, e.pairs)
}

// GetMidPrices returns the order book midpoint for every tracked pair.
func (e *Engine) GetMidPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return e.fetcher.MidPrices(ctx, e.pairs)
}

// GetFullOrderBook fetches a fresh full book for one pair without
// touching the synchronized state.
func (e *Engine) GetFullOrderBook(ctx context.Context, pair string) (models.BookMessage, error) {
	return e.fetcher.FetchFullBook(ctx, pair)
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("sync_engine").WithFields(logger.Fields{"operation": "Start"})
	log.WithFields(logger.Fields{
		"pairs":             e.pairs,
		"snapshot_interval": e.config.Source.IndependentReserve.Snapshot.Interval,
	}).Info("starting sync engine")

	e.wg.Add(4)
	go e.diffLoop()
	go e.tradeLoop()
	go e.snapshotApplyLoop()
	go e.snapshotFetchLoop()

	log.Info("sync engine started successfully")
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("sync_engine").Info("stopping sync engine")
	e.wg.Wait()
	e.log.WithComponent("sync_engine").Info("sync engine stopped")
}

func (e *Engine) diffLoop() {
	defer e.wg.Done()
	log := e.log.WithComponent("sync_engine").WithFields(logger.Fields{"worker": "diff"})

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.channels.Diff:
			if !ok {
				return
			}
			book := e.books[msg.TradingPair]
			if book == nil {
				continue
			}
			if msg.Event == "" {
				// REST-shaped full refresh carrying a nonce.
				book.ApplyRefresh(msg)
				continue
			}
			applied, err := book.ApplyDiff(msg)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"pair": msg.TradingPair}).Warn("failed to apply diff")
				continue
			}
			if !applied {
				log.WithFields(logger.Fields{
					"pair":      msg.TradingPair,
					"update_id": msg.UpdateID,
				}).Debug("diff skipped")
			}
		}
	}
}

func (e *Engine) tradeLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.channels.Trade:
			if !ok {
				return
			}
			if book := e.books[msg.TradingPair]; book != nil {
				book.RecordTrade(msg)
			}
		}
	}
}

func (e *Engine) snapshotApplyLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.channels.Snapshot:
			if !ok {
				return
			}
			if book := e.books[msg.TradingPair]; book != nil {
				book.ApplySnapshot(msg)
			}
		}
	}
}

// snapshotFetchLoop fetches a full book for every pair immediately on
// start and then on each interval tick. Pairs are fetched sequentially; a
// failing pair is logged, waits out the retry delay and the loop moves on
// so one bad market cannot starve the rest.
func (e *Engine) snapshotFetchLoop() {
	defer e.wg.Done()

	snapshotCfg := e.config.Source.IndependentReserve.Snapshot
	ticker := time.NewTicker(snapshotCfg.Interval)
	defer ticker.Stop()

	e.fetchAll(snapshotCfg.RetryDelay)
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.fetchAll(snapshotCfg.RetryDelay)
		}
	}
}

func (e *Engine) fetchAll(retryDelay time.Duration) {
	log := e.log.WithComponent("snapshot_fetcher")

	for _, pair := range e.pairs {
		if e.ctx.Err() != nil {
			return
		}
		msg, err := e.fetcher.FetchFullBook(e.ctx, pair)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"pair": pair}).Error("failed to fetch snapshot")
			select {
			case <-time.After(retryDelay):
			case <-e.ctx.Done():
				return
			}
			continue
		}
		logger.IncrementSnapshotRead(len(msg.Bids) + len(msg.Asks))
		if !e.channels.SendSnapshot(e.ctx, msg) {
			log.WithFields(logger.Fields{"pair": pair}).Warn("snapshot channel full, message dropped")
		}
		log.WithFields(logger.Fields{
			"pair": pair,
			"bids": len(msg.Bids),
			"asks": len(msg.Asks),
		}).Debug("snapshot fetched")
	}
}
