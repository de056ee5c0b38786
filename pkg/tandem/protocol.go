package tandem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "tandem/v1"

// Message types exchanged between devices and the coordinator.
const (
	TypePlay           = "control:play"
	TypePause          = "control:pause"
	TypeNext           = "control:next"
	TypePrevious       = "control:previous"
	TypeSeek           = "control:seek"
	TypeVolume         = "control:volume"
	TypeShuffle        = "control:shuffle"
	TypeRepeat         = "control:repeat"
	TypeLoad           = "control:load"
	TypeSetActive      = "device:set_active"
	TypeGetList        = "device:get_list"
	TypeListUpdate     = "device:list_update"
	TypePlaybackUpdate = "playback:update"
	TypeSync           = "playback:sync"
	TypePing           = "ping"
	TypePong           = "pong"
)

// Envelope is the JSON frame carried by every transport.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with a JSON body. A nil body encodes as {}.
func NewEnvelope(msgType string, body any) (Envelope, error) {
	if body == nil {
		return Envelope{Type: msgType, Data: json.RawMessage("{}")}, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal body: %w", err)
	}
	return Envelope{Type: msgType, Data: payload}, nil
}

// Decode unmarshals the envelope body into v. Missing data decodes as {}.
func (e Envelope) Decode(v any) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// ParseEnvelope decodes and validates a raw frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if err := ValidateEnvelope(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ValidateEnvelope checks the type and that data, when present, is an object.
func ValidateEnvelope(env Envelope) error {
	if strings.TrimSpace(env.Type) == "" {
		return errors.New("type is required")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		return errors.New("data must be a JSON object")
	}
	if !json.Valid(data) {
		return errors.New("data is not valid JSON")
	}
	return nil
}

// KnownType reports whether msgType is part of the protocol.
func KnownType(msgType string) bool {
	switch msgType {
	case TypePlay, TypePause, TypeNext, TypePrevious, TypeSeek, TypeVolume, TypeShuffle, TypeRepeat, TypeLoad:
		return true
	case TypeSetActive, TypeGetList, TypeListUpdate:
		return true
	case TypePlaybackUpdate, TypeSync, TypePing, TypePong:
		return true
	default:
		return false
	}
}

// TopicUp builds the topic a device publishes on.
func TopicUp(topicBase, account, deviceID string) string {
	return fmt.Sprintf("%s/account/%s/up/%s", topicBase, account, deviceID)
}

// TopicDownDevice builds the topic for messages addressed to one device.
func TopicDownDevice(topicBase, account, deviceID string) string {
	return fmt.Sprintf("%s/account/%s/down/%s", topicBase, account, deviceID)
}

// TopicPresence builds the retained presence topic for a device.
func TopicPresence(topicBase, account, deviceID string) string {
	return fmt.Sprintf("%s/account/%s/presence/%s", topicBase, account, deviceID)
}

// TopicAccountFilter matches every topic of one account.
func TopicAccountFilter(topicBase, account string) string {
	return fmt.Sprintf("%s/account/%s/#", topicBase, account)
}

// TopicUpFilter matches device uplinks across accounts.
func TopicUpFilter(topicBase string) string {
	return fmt.Sprintf("%s/account/+/up/+", topicBase)
}

// TopicPresenceFilter matches device presence across accounts.
func TopicPresenceFilter(topicBase string) string {
	return fmt.Sprintf("%s/account/+/presence/+", topicBase)
}

// Route is a parsed account topic.
type Route struct {
	Account  string
	Kind     string
	DeviceID string
}

// ParseTopic splits an account topic into its parts.
func ParseTopic(topicBase, topic string) (Route, bool) {
	prefix := topicBase + "/account/"
	if !strings.HasPrefix(topic, prefix) {
		return Route{}, false
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Route{}, false
	}
	return Route{Account: parts[0], Kind: parts[1], DeviceID: parts[2]}, true
}
