package ibkr

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by SendText after Close.
var ErrClosed = errors.New("websocket closed")

// Conn is one open market-data connection.
type Conn interface {
	// ReadFrame blocks until the next frame arrives or the connection closes.
	ReadFrame() ([]byte, error)
	SendText(text string) error
	Close() error
}

// WSOptions tunes the WebSocket dialer.
type WSOptions struct {
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	InsecureSkipVerify bool
	Header             http.Header
}

// WSClient dials the gateway's streaming endpoint.
type WSClient struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewWSClient creates a new WebSocket client with the given URL and logger.
func NewWSClient(url string, opts WSOptions, logger *zap.Logger) *WSClient {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local gateway only
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WSClient{
		url:          url,
		header:       opts.Header,
		dialer:       dialer,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
	}
}

// Dial opens the connection. It returns once the WebSocket handshake is done.
func (c *WSClient) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.logger.Error("failed to connect to websocket", zap.String("url", c.url), zap.Error(err))
		return nil, err
	}
	c.logger.Info("websocket connected", zap.String("url", c.url))
	return &wsConn{conn: conn, writeTimeout: c.writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  bool
	once    sync.Once
}

// ReadFrame returns text and binary frames alike; the gateway sends JSON in both.
func (w *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) SendText(text string) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.closed {
		return ErrClosed
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a going-away close frame and closes the socket, which unblocks
// a pending ReadFrame. Safe to call more than once.
func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		w.writeMu.Lock()
		w.closed = true
		w.writeMu.Unlock()

		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second),
		)
		err = w.conn.Close()
	})
	return err
}
