package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]func(string, []byte)
	published map[string][]tandem.Envelope
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]func(string, []byte){}, published: map[string][]tandem.Envelope{}}
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	var env tandem.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[topic] = append(b.published[topic], env)
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) deliver(filter, topic string, payload []byte) {
	b.mu.Lock()
	handler := b.handlers[filter]
	b.mu.Unlock()
	handler(topic, payload)
}

func (b *fakeBroker) types(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []string{}
	for _, env := range b.published[topic] {
		out = append(out, env.Type)
	}
	return out
}

func TestMQTTFrontRoutesDevices(t *testing.T) {
	broker := newFakeBroker()
	mod, err := NewModule(zap.NewNop(), broker, nil, Config{})
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	if err := mod.mqtt.subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	presenceFilter := tandem.TopicPresenceFilter(tandem.BaseTopic)
	upFilter := tandem.TopicUpFilter(tandem.BaseTopic)
	downA := tandem.TopicDownDevice(tandem.BaseTopic, "acct", "a")
	downB := tandem.TopicDownDevice(tandem.BaseTopic, "acct", "b")

	presence, _ := json.Marshal(tandem.Presence{DeviceID: "a", Name: "Laptop"})
	broker.deliver(presenceFilter, tandem.TopicPresence(tandem.BaseTopic, "acct", "a"), presence)
	if got := broker.types(downA); len(got) != 2 || got[0] != tandem.TypeListUpdate {
		t.Fatalf("unexpected join traffic %v", got)
	}

	ping, _ := json.Marshal(tandem.Envelope{Type: tandem.TypePing})
	broker.deliver(upFilter, tandem.TopicUp(tandem.BaseTopic, "acct", "b"), ping)
	got := broker.types(downB)
	if len(got) == 0 || got[len(got)-1] != tandem.TypePong {
		t.Fatalf("expected auto-join then pong, got %v", got)
	}
	broker.deliver(upFilter, tandem.TopicUp(tandem.BaseTopic, "acct", "b"), []byte("garbage"))
	stray, _ := json.Marshal(tandem.Envelope{Type: "queue.set"})
	broker.deliver(upFilter, tandem.TopicUp(tandem.BaseTopic, "acct", "c"), stray)
	if mod.Hub().Connected("acct", "c") {
		t.Fatalf("unknown message types must not join a device")
	}

	before := len(broker.types(downB))
	broker.deliver(presenceFilter, tandem.TopicPresence(tandem.BaseTopic, "acct", "a"), nil)
	after := broker.types(downB)
	if len(after) <= before {
		t.Fatalf("leave should broadcast to remaining devices")
	}
	if mod.Hub().Connected("acct", "a") {
		t.Fatalf("empty presence should remove the device")
	}
}

func TestNewModuleNeedsAFront(t *testing.T) {
	if _, err := NewModule(zap.NewNop(), nil, nil, Config{}); err == nil {
		t.Fatalf("expected error without broker or listen address")
	}
}

func TestWebSocketFront(t *testing.T) {
	mod, err := NewModule(zap.NewNop(), nil, nil, Config{Listen: "127.0.0.1:0", Accounts: map[string]string{"acct": "tok"}})
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mod.Run(ctx) }()

	var addr string
	select {
	case addr = <-mod.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("front never listened")
	}

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?device_id=a&account=acct&token=wrong", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?device_id=a&device_name=Laptop&token=tok", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	read := func() tandem.Envelope {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		env, err := tandem.ParseEnvelope(message)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return env
	}
	var list tandem.DeviceListBody
	if env := read(); env.Type != tandem.TypeListUpdate || env.Decode(&list) != nil || list.Devices[0].Name != "Laptop" {
		t.Fatalf("expected roster first, got %s %+v", env.Type, list)
	}
	if env := read(); env.Type != tandem.TypeSync {
		t.Fatalf("expected sync after the roster, got %s", env.Type)
	}

	payload, _ := json.Marshal(tandem.Envelope{Type: tandem.TypePing})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := read(); env.Type != tandem.TypePong {
		t.Fatalf("expected pong, got %s", env.Type)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for mod.Hub().Connected("acct", "a") {
		if time.Now().After(deadline) {
			t.Fatalf("closed socket should leave the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
