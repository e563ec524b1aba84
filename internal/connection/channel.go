package connection

import (
	"context"
	"net/http"

	"github.com/amoylab/tether/internal/common/errorx"

	"github.com/coder/websocket"
)

// Channel is one open duplex message channel
type Channel interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Channel authenticated with token. A handshake the remote
// end rejected is reported as *errorx.HandshakeError.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Channel, error)
}

// WebSocketDialer dials WebSocket endpoints, passing the token as a bearer
// Authorization header on the upgrade request
type WebSocketDialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

var _ Dialer = (*WebSocketDialer)(nil)

// Dial implements Dialer.Dial
func (d *WebSocketDialer) Dial(ctx context.Context, url, token string) (Channel, error) {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: h,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &errorx.HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsChannel) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
