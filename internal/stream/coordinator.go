package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reserveflow/config"
	"reserveflow/internal/channel"
	"reserveflow/internal/normalizer"
	"reserveflow/internal/symbols"
	"reserveflow/internal/transport"
	"reserveflow/logger"
	"reserveflow/models"
)

// Connection states, in the order a healthy session moves through them.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// subscribeRequest is the wire form of a channel subscription.
type subscribeRequest struct {
	Event string   `json:"Event"`
	Data  []string `json:"Data"`
}

// Coordinator owns the public websocket session: it connects, subscribes
// to the ticker and order book channels for every configured pair, demuxes
// incoming events into the diff and trade channels and reconnects with a
// fixed delay whenever the session drops.
type Coordinator struct {
	config   *config.Config
	channels *channel.Channels
	symbols  *symbols.Store
	dialer   *websocket.Dialer
	pairs    []string

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	state   State
	log     *logger.Log

	// pairsByPrimary maps the lowercase primary currency code used in
	// channel names back to the trading pairs that share it.
	pairsByPrimary map[string][]string
}

func NewCoordinator(cfg *config.Config, ch *channel.Channels, store *symbols.Store, dialer *websocket.Dialer, pairs []string) *Coordinator {
	return &Coordinator{
		config:   cfg,
		channels: ch,
		symbols:  store,
		dialer:   dialer,
		pairs:    pairs,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// State reports the current connection state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start resolves the channel subscriptions and launches the session
// worker. The worker runs until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("stream coordinator already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	src := &c.config.Source.IndependentReserve
	log := c.log.WithComponent("stream_coordinator").WithFields(logger.Fields{"operation": "Start"})

	pairsByPrimary := make(map[string][]string, len(c.pairs))
	for _, pair := range c.pairs {
		sym, err := c.symbols.ToExchange(pair, src.Domain)
		if err != nil {
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return fmt.Errorf("resolve %s: %w", pair, err)
		}
		primary := strings.ToLower(sym.Primary)
		pairsByPrimary[primary] = append(pairsByPrimary[primary], pair)
	}
	c.pairsByPrimary = pairsByPrimary

	log.WithFields(logger.Fields{"pairs": c.pairs}).Info("starting stream coordinator")
	c.wg.Add(1)
	go c.session(transport.WsURL(src.WssURL, src.Domain))
	log.Info("stream coordinator started successfully")
	return nil
}

// Stop waits for the session worker to exit. The worker itself stops when
// the context passed to Start is cancelled.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("stream_coordinator").Info("stopping stream coordinator")
	c.wg.Wait()
	c.setState(StateDisconnected)
	c.log.WithComponent("stream_coordinator").Info("stream coordinator stopped")
}

// session owns the connect / subscribe / read / reconnect cycle.
func (c *Coordinator) session(wsURL string) {
	defer c.wg.Done()

	src := &c.config.Source.IndependentReserve
	for {
		if c.ctx.Err() != nil {
			return
		}

		sessionID := uuid.NewString()
		log := c.log.WithComponent("stream_coordinator").WithFields(logger.Fields{"session_id": sessionID})

		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(c.ctx, wsURL, nil)
		if err != nil {
			c.setState(StateDisconnected)
			log.WithError(err).Warn("failed to connect websocket, retrying")
			if !c.sleep(src.Stream.ReconnectDelay) {
				return
			}
			continue
		}

		if err := conn.WriteJSON(subscribeRequest{Event: "Subscribe", Data: c.subscriptions()}); err != nil {
			log.WithError(err).Warn("failed to subscribe, reconnecting")
			conn.Close()
			c.setState(StateDisconnected)
			if !c.sleep(src.Stream.ReconnectDelay) {
				return
			}
			continue
		}
		c.setState(StateSubscribed)
		log.WithFields(logger.Fields{"channels": c.subscriptions()}).Info("subscribed to websocket channels")

		c.readLoop(conn, log, src.Stream.HeartbeatInterval)

		conn.Close()
		c.setState(StateDisconnected)
		if !c.sleep(src.Stream.ReconnectDelay) {
			return
		}
	}
}

// subscriptions returns the channel names for every distinct primary
// currency: one ticker channel and one order book channel each.
func (c *Coordinator) subscriptions() []string {
	names := make([]string, 0, 2*len(c.pairsByPrimary))
	for primary := range c.pairsByPrimary {
		names = append(names, "ticker-"+primary, "orderbook-"+primary)
	}
	return names
}

// readLoop reads until the connection fails or the context is cancelled.
// A ping keepalive runs alongside; the exchange answers with pongs and its
// own Heartbeat events.
func (c *Coordinator) readLoop(conn *websocket.Conn, log *logger.Entry, heartbeat time.Duration) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-c.ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.WithError(err).Warn("websocket read error, reconnecting")
			}
			return
		}
		c.setState(StateStreaming)
		c.dispatch(raw, log)
	}
}

// dispatch routes one raw websocket payload. Events that affect no book
// or trade stream are dropped without error.
func (c *Coordinator) dispatch(raw []byte, log *logger.Entry) {
	var event models.WsEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		log.WithError(err).Debug("failed to decode websocket message")
		return
	}

	switch event.Event {
	case "Trade":
		logger.IncrementTradeRead(len(raw))
		for _, pair := range c.pairsForChannel(event.Channel) {
			msg, err := normalizer.TradeFromExchange(event, pair)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"pair": pair}).Warn("failed to normalize trade")
				continue
			}
			if !c.channels.SendTrade(c.ctx, msg) {
				log.WithFields(logger.Fields{"pair": pair}).Warn("trade channel full, message dropped")
			}
		}

	case "NewOrder", "OrderChanged", "OrderCanceled":
		logger.IncrementDiffRead(len(raw))
		for _, pair := range c.pairsForChannel(event.Channel) {
			msg, err := normalizer.DiffFromWs(event, pair)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"pair": pair}).Warn("failed to normalize diff")
				continue
			}
			if msg == nil {
				continue
			}
			if !c.channels.SendDiff(c.ctx, *msg) {
				log.WithFields(logger.Fields{"pair": pair}).Warn("diff channel full, message dropped")
			}
		}

	case "Heartbeat", "Subscriptions":
		// Keepalive and subscription acks carry no market data.

	default:
		log.WithFields(logger.Fields{"event": event.Event}).Debug("unhandled websocket event")
	}
}

// pairsForChannel maps "orderbook-xbt" or "ticker-xbt" to the trading
// pairs sharing that primary currency.
func (c *Coordinator) pairsForChannel(name string) []string {
	_, primary, found := strings.Cut(name, "-")
	if !found {
		return nil
	}
	return c.pairsByPrimary[primary]
}

// sleep waits for the reconnect delay, returning false when the context
// was cancelled first.
func (c *Coordinator) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.ctx.Done():
		return false
	}
}
