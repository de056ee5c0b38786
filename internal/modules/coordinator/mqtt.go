package coordinator

import (
	"encoding/json"

	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Broker is the MQTT surface the coordinator needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// mqttFront maps device topics onto the hub. Presence announces joins, an
// empty retained presence (or the will) announces a leave.
type mqttFront struct {
	log       *zap.Logger
	hub       *Hub
	client    Broker
	topicBase string
}

func (f *mqttFront) subscribe() error {
	if err := f.client.Subscribe(tandem.TopicPresenceFilter(f.topicBase), 1, f.handlePresence); err != nil {
		return err
	}
	return f.client.Subscribe(tandem.TopicUpFilter(f.topicBase), 1, f.handleUp)
}

func (f *mqttFront) handlePresence(topic string, payload []byte) {
	route, ok := tandem.ParseTopic(f.topicBase, topic)
	if !ok || route.Kind != "presence" || route.DeviceID == "" {
		return
	}
	if len(payload) == 0 {
		f.hub.Leave(route.Account, route.DeviceID, 0)
		return
	}
	var presence tandem.Presence
	if err := json.Unmarshal(payload, &presence); err != nil {
		f.log.Warn("invalid presence", zap.String("topic", topic), zap.Error(err))
		return
	}
	f.hub.Join(route.Account, route.DeviceID, presence.Name, f.outlet(route.Account, route.DeviceID))
}

func (f *mqttFront) handleUp(topic string, payload []byte) {
	route, ok := tandem.ParseTopic(f.topicBase, topic)
	if !ok || route.Kind != "up" || route.DeviceID == "" {
		return
	}
	env, err := tandem.ParseEnvelope(payload)
	if err != nil {
		f.log.Warn("invalid message", zap.String("topic", topic), zap.Error(err))
		return
	}
	if !tandem.KnownType(env.Type) {
		f.log.Debug("ignoring unknown message type", zap.String("topic", topic), zap.String("type", env.Type))
		return
	}
	// Uplinks can overtake the retained presence after a broker restart.
	if !f.hub.Connected(route.Account, route.DeviceID) {
		f.hub.Join(route.Account, route.DeviceID, "", f.outlet(route.Account, route.DeviceID))
	}
	f.hub.Handle(route.Account, route.DeviceID, env)
}

func (f *mqttFront) outlet(account, deviceID string) Outlet {
	topic := tandem.TopicDownDevice(f.topicBase, account, deviceID)
	return func(env tandem.Envelope) error {
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return f.client.Publish(topic, 1, false, payload)
	}
}
