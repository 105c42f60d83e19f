package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"reserveflow/internal/auth"
	"reserveflow/internal/channel"
)

func TestUserStreamForwardsVerbatim(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("read subscribe failed: %v", err)
			return
		}
		payload := `{"Event":"OrderStatusChanged","Data":{"OrderGuid":"g9","Status":"Filled"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	authenticator, err := auth.New("TEST_API_KEY", "TEST_API_SECRET", func() float64 { return 1000 })
	if err != nil {
		t.Fatalf("auth.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := channel.NewChannels(1, 1, 1, 10)
	us := NewUserStream(streamConfig(wsTemplate(server.URL)), ch, authenticator, websocket.DefaultDialer)
	if err := us.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case event := <-ch.User:
		want := `{"Event":"OrderStatusChanged","Data":{"OrderGuid":"g9","Status":"Filled"}}`
		if string(event.Data) != want {
			t.Errorf("event not forwarded verbatim: %s", event.Data)
		}
		if event.Received.IsZero() {
			t.Error("received timestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for user event")
	}

	cancel()
	us.Stop()
}

func TestUserStreamRequiresCredentials(t *testing.T) {
	ch := channel.NewChannels(1, 1, 1, 1)
	us := NewUserStream(streamConfig("ws://127.0.0.1:0?domain=%s"), ch, nil, websocket.DefaultDialer)
	if err := us.Start(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}
