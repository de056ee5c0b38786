package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var errSlowClient = errors.New("client send buffer full")

// wsFront serves devices connecting over WebSocket at /ws.
type wsFront struct {
	log      *zap.Logger
	hub      *Hub
	accounts map[string]string
	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// authorize checks the account token. Without configured accounts every
// connection lands in the "default" account unless it names one.
func (f *wsFront) authorize(r *http.Request) (string, bool) {
	query := r.URL.Query()
	token := query.Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	account := query.Get("account")
	if len(f.accounts) == 0 {
		if account == "" {
			account = "default"
		}
		return account, true
	}
	if account == "" {
		for name, secret := range f.accounts {
			if secret == token {
				return name, true
			}
		}
		return "", false
	}
	secret, ok := f.accounts[account]
	return account, ok && secret == token
}

func (f *wsFront) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id required", http.StatusBadRequest)
		return
	}
	account, ok := f.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	gen := f.hub.Join(account, deviceID, r.URL.Query().Get("device_name"), client.outlet)

	go client.writePump()
	f.readPump(client, account, deviceID)

	close(client.done)
	f.hub.Leave(account, deviceID, gen)
}

func (f *wsFront) readPump(c *wsClient, account, deviceID string) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.log.Warn("websocket read failed", zap.String("device", deviceID), zap.Error(err))
			}
			return
		}
		env, err := tandem.ParseEnvelope(message)
		if err != nil {
			f.log.Warn("invalid message", zap.String("device", deviceID), zap.Error(err))
			continue
		}
		f.hub.Handle(account, deviceID, env)
	}
}

func (c *wsClient) outlet(env tandem.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	case c.send <- payload:
		return nil
	default:
		_ = c.conn.Close()
		return errSlowClient
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
