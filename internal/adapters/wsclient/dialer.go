package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey-austin/tandem/internal/adapters/transport"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Options configures the WebSocket link to the coordinator.
type Options struct {
	URL              string
	Account          string
	Token            string
	DeviceID         string
	DeviceName       string
	DeviceClass      string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *zap.Logger
}

// Dialer opens WebSocket links. Connection parameters travel in the query
// string: token, account, device_id, device_name and device_class.
type Dialer struct {
	opts   Options
	dialer websocket.Dialer
}

// NewDialer validates opts and returns a dialer.
func NewDialer(opts Options) (*Dialer, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("websocket url required")
	}
	if strings.TrimSpace(opts.DeviceID) == "" {
		return nil, errors.New("device id required")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dialer{opts: opts, dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}}, nil
}

// Endpoint returns the URL dialled, with connection parameters.
func (d *Dialer) Endpoint() (string, error) {
	u, err := url.Parse(d.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid coordinator url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	query := u.Query()
	query.Set("device_id", d.opts.DeviceID)
	if d.opts.Token != "" {
		query.Set("token", d.opts.Token)
	}
	if d.opts.Account != "" {
		query.Set("account", d.opts.Account)
	}
	if d.opts.DeviceName != "" {
		query.Set("device_name", d.opts.DeviceName)
	}
	if d.opts.DeviceClass != "" {
		query.Set("device_class", d.opts.DeviceClass)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	endpoint, err := d.Endpoint()
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	if d.opts.Token != "" {
		headers.Set("Authorization", "Bearer "+d.opts.Token)
	}
	ws, resp, err := d.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &conn{ws: ws, log: d.opts.Logger, writeTimeout: d.opts.WriteTimeout}, nil
}

type conn struct {
	ws           *websocket.Conn
	log          *zap.Logger
	writeTimeout time.Duration
	mu           sync.Mutex
	once         sync.Once
}

func (c *conn) Receive(_ context.Context) (tandem.Envelope, error) {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return tandem.Envelope{}, err
		}
		env, err := tandem.ParseEnvelope(message)
		if err != nil {
			c.log.Warn("dropping invalid frame", zap.Error(err))
			continue
		}
		return env, nil
	}
}

func (c *conn) Send(env tandem.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}
