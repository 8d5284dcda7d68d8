package connector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one persistent message channel to a tool listener.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens connections to a tool listener.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer dials a websocket listener at a fixed address.
type WebsocketDialer struct {
	URL    string
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer for ws://host:port/.
func NewWebsocketDialer(host string, port int) *WebsocketDialer {
	u := url.URL{Scheme: "ws", Host: host + ":" + strconv.Itoa(port), Path: "/"}
	return NewWebsocketDialerURL(u.String())
}

// NewWebsocketDialerURL creates a dialer for an explicit websocket URL.
func NewWebsocketDialerURL(rawURL string) *WebsocketDialer {
	return &WebsocketDialer{
		URL: rawURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects to the listener. The attempt is bounded by ctx.
func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return conn, nil
}
