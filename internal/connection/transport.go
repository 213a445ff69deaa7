package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"diplomacy/client/internal/config"
)

// Transport is one established full-duplex frame pipe. ReadMessage
// blocks; WriteMessage is safe for concurrent use; Close ends both
// directions and unblocks a pending read.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close() error
}

// DialFunc establishes a transport to the gateway.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// wsTransport adapts a gorilla websocket connection: UTF-8 JSON text
// frames, a read limit, and background ping keepalive.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	stopPing  chan struct{}
}

// Dialer returns a DialFunc for the configured gateway limits.
func Dialer(cfg *config.Config) DialFunc {
	return func(ctx context.Context, url string) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		conn.SetReadLimit(cfg.MaxPayloadBytes)
		t := &wsTransport{conn: conn, stopPing: make(chan struct{})}
		if cfg.PingInterval > 0 {
			go t.keepAlive(cfg.PingInterval)
		}
		return t, nil
	}
}

func (t *wsTransport) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopPing:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return payload, nil
	}
}

func (t *wsTransport) WriteMessage(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopPing)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
