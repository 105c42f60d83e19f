package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reserveflow/config"
	"reserveflow/internal/auth"
	"reserveflow/internal/channel"
	"reserveflow/internal/transport"
	"reserveflow/logger"
	"reserveflow/models"
)

// UserStream maintains the authenticated websocket session and forwards
// every private event verbatim into the user channel. The exchange signs
// nothing beyond the subscription itself, so payloads pass through
// untouched and consumers decode the shapes they care about.
type UserStream struct {
	config   *config.Config
	channels *channel.Channels
	auth     *auth.Authenticator
	dialer   *websocket.Dialer

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewUserStream(cfg *config.Config, ch *channel.Channels, authenticator *auth.Authenticator, dialer *websocket.Dialer) *UserStream {
	return &UserStream{
		config:   cfg,
		channels: ch,
		auth:     authenticator,
		dialer:   dialer,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (u *UserStream) Start(ctx context.Context) error {
	if u.auth == nil {
		return fmt.Errorf("user stream requires API credentials")
	}

	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return fmt.Errorf("user stream already running")
	}
	u.running = true
	u.ctx = ctx
	u.mu.Unlock()

	src := &u.config.Source.IndependentReserve
	u.log.WithComponent("user_stream").Info("starting user stream")
	u.wg.Add(1)
	go u.session(transport.WsURL(src.WssURL, src.Domain))
	return nil
}

func (u *UserStream) Stop() {
	u.mu.Lock()
	u.running = false
	u.mu.Unlock()

	u.log.WithComponent("user_stream").Info("stopping user stream")
	u.wg.Wait()
	u.log.WithComponent("user_stream").Info("user stream stopped")
}

func (u *UserStream) session(wsURL string) {
	defer u.wg.Done()

	src := &u.config.Source.IndependentReserve
	for {
		if u.ctx.Err() != nil {
			return
		}

		log := u.log.WithComponent("user_stream").WithFields(logger.Fields{"session_id": uuid.NewString()})

		conn, _, err := u.dialer.DialContext(u.ctx, wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect user stream, retrying")
			if !u.sleep(src.Stream.ReconnectDelay) {
				return
			}
			continue
		}

		payload := u.auth.SignWsRequest([]byte(`{"Event":"Subscribe","Data":["account"]}`))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.WithError(err).Warn("failed to subscribe user stream, reconnecting")
			conn.Close()
			if !u.sleep(src.Stream.ReconnectDelay) {
				return
			}
			continue
		}
		log.Info("user stream subscribed")

		u.forward(conn, log)

		conn.Close()
		if !u.sleep(src.Stream.ReconnectDelay) {
			return
		}
	}
}

func (u *UserStream) forward(conn *websocket.Conn, log *logger.Entry) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-done:
		case <-u.ctx.Done():
			conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if u.ctx.Err() == nil {
				log.WithError(err).Warn("user stream read error, reconnecting")
			}
			return
		}
		event := models.UserEvent{Data: append([]byte(nil), raw...), Received: time.Now()}
		if !u.channels.SendUser(u.ctx, event) {
			log.Warn("user channel full, event dropped")
		}
	}
}

func (u *UserStream) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-u.ctx.Done():
		return false
	}
}
