package socket

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// WebSocketDialer is the production Dialer, backed by gorilla/websocket.
type WebSocketDialer struct {
	// Dialer overrides the underlying dialer; nil uses the default.
	Dialer *websocket.Dialer
}

type wsTransport struct {
	conn *websocket.Conn
}

// Dial opens a websocket connection to the given URL.
func (d *WebSocketDialer) Dial(url string) (Transport, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	conn, _, err := wd.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
