package coordinator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey-austin/tandem/internal/adapters/clock"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Config configures the coordinator module.
type Config struct {
	TopicBase      string
	HandoffTimeout time.Duration
	// Listen enables the WebSocket front on this address.
	Listen string
	// Accounts maps account names to tokens for WebSocket clients.
	Accounts map[string]string
}

// Module relays playback state between the devices of each account over
// MQTT, WebSocket or both.
type Module struct {
	log    *zap.Logger
	hub    *Hub
	mqtt   *mqttFront
	ws     *wsFront
	config Config
	ready  chan string
}

// NewModule creates a coordinator. A nil client disables the MQTT front;
// an empty Listen disables the WebSocket front.
func NewModule(log *zap.Logger, client Broker, sched ports.Scheduler, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = tandem.BaseTopic
	}
	if client == nil && strings.TrimSpace(cfg.Listen) == "" {
		return nil, errors.New("coordinator needs a broker or a listen address")
	}
	if sched == nil {
		sched = clock.NewScheduler(nil)
	}

	hub := NewHub(log, sched, cfg.HandoffTimeout)
	m := &Module{log: log, hub: hub, config: cfg, ready: make(chan string, 1)}
	if client != nil {
		m.mqtt = &mqttFront{log: log, hub: hub, client: client, topicBase: cfg.TopicBase}
	}
	if cfg.Listen != "" {
		m.ws = &wsFront{
			log:      log,
			hub:      hub,
			accounts: cfg.Accounts,
			upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		}
	}
	return m, nil
}

// Hub exposes the relay for in-process fronts and tests.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Ready yields the WebSocket listen address once it is bound.
func (m *Module) Ready() <-chan string {
	return m.ready
}

// Run starts the fronts and blocks until ctx ends.
func (m *Module) Run(ctx context.Context) error {
	if m.mqtt != nil {
		if err := m.mqtt.subscribe(); err != nil {
			return err
		}
	}
	if m.ws == nil {
		<-ctx.Done()
		return nil
	}

	listener, err := net.Listen("tcp", m.config.Listen)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", m.ws)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	m.log.Info("websocket front listening", zap.String("addr", listener.Addr().String()))
	m.ready <- listener.Addr().String()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
