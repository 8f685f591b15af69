package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait        = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

type TradingViewOptions struct {
	URL       string
	Origin    string
	AuthToken string
}

// TradingViewClient dials the vendor quote WebSocket. Each Connect call
// returns an independent connection.
type TradingViewClient struct {
	opts   TradingViewOptions
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewTradingViewClient(opts TradingViewOptions, logger *zap.Logger) *TradingViewClient {
	if opts.AuthToken == "" {
		opts.AuthToken = "unauthorized_user_token"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradingViewClient{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// Connect dials the feed, waits for the server hello and answers it with the
// auth token. The returned connection is already reading.
func (c *TradingViewClient) Connect(ctx context.Context) (FeedConn, error) {
	header := http.Header{}
	if c.opts.Origin != "" {
		header.Set("Origin", c.opts.Origin)
	}

	ws, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	conn := &tvConn{
		ws:     ws,
		logger: c.logger,
		done:   make(chan struct{}),
	}

	if err := conn.awaitHello(ctx); err != nil {
		ws.Close()
		return nil, fmt.Errorf("feed handshake: %w", err)
	}
	if err := conn.Send("set_auth_token", c.opts.AuthToken); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send auth token: %w", err)
	}

	go conn.readLoop()
	return conn, nil
}

type command struct {
	M string `json:"m"`
	P []any  `json:"p"`
}

type envelope struct {
	M string          `json:"m"`
	P json.RawMessage `json:"p"`
}

type tvConn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers []EventHandler

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (c *tvConn) Subscribe(h EventHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

func (c *tvConn) Send(method string, params ...any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if params == nil {
		params = []any{}
	}
	b, err := json.Marshal(command{M: method, P: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	return c.writePacket(string(b))
}

func (c *tvConn) Close() error {
	c.stop()
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *tvConn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *tvConn) writePacket(payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(EncodePacket(payload))); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// awaitHello reads frames until the server session packet arrives.
func (c *tvConn) awaitHello(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)
	defer c.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		for _, p := range DecodeFrame(string(data)) {
			if IsHeartbeat(p) {
				if err := c.writePacket(p); err != nil {
					return err
				}
				continue
			}
			var hello struct {
				SessionID string `json:"session_id"`
			}
			if json.Unmarshal([]byte(p), &hello) == nil && hello.SessionID != "" {
				c.logger.Debug("feed hello", zap.String("server_session", hello.SessionID))
				return nil
			}
		}
	}
}

func (c *tvConn) readLoop() {
	defer c.stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.logger.Warn("feed read failed", zap.Error(err))
				}
			}
			return
		}

		for _, p := range DecodeFrame(string(data)) {
			if IsHeartbeat(p) {
				if err := c.writePacket(p); err != nil {
					c.logger.Debug("heartbeat echo failed", zap.Error(err))
				}
				continue
			}
			evt, err := parseEvent(p)
			if err != nil {
				c.logger.Debug("skipping undecodable packet", zap.Error(err))
				continue
			}
			c.dispatch(evt)
		}
	}
}

func (c *tvConn) dispatch(evt Event) {
	c.mu.RLock()
	handlers := make([]EventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

func parseEvent(payload string) (Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Event{}, err
	}
	if env.M == "" {
		return Event{}, errors.New("packet has no method")
	}

	evt := Event{Name: env.M}
	if len(env.P) > 0 {
		dec := json.NewDecoder(bytes.NewReader(env.P))
		dec.UseNumber()
		if err := dec.Decode(&evt.Params); err != nil {
			return Event{}, fmt.Errorf("decode params of %s: %w", env.M, err)
		}
	}
	return evt, nil
}
