package tandem

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelopeNilBody(t *testing.T) {
	env, err := NewEnvelope(TypePause, nil)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if string(env.Data) != "{}" {
		t.Fatalf("expected empty object, got %s", env.Data)
	}
}

func TestParseEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseEnvelope([]byte(`{"type":"ping","data":[1]}`)); err == nil {
		t.Fatalf("expected object error")
	}
	env, err := ParseEnvelope([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Type != TypePing {
		t.Fatalf("unexpected type %q", env.Type)
	}
}

func TestSyncBodyPartialDecode(t *testing.T) {
	env := Envelope{Type: TypeSync, Data: json.RawMessage(`{"volume":0.5,"active_device_id":"b"}`)}
	var body SyncBody
	if err := env.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TrackID != nil || body.PositionMS != nil || body.Playing != nil {
		t.Fatalf("expected absent fields to stay nil")
	}
	if body.Volume == nil || *body.Volume != 0.5 {
		t.Fatalf("expected volume")
	}
	if body.ActiveDeviceID == nil || *body.ActiveDeviceID != "b" {
		t.Fatalf("expected active device")
	}
}

func TestSyncBodyKeepsZeroPosition(t *testing.T) {
	env, err := NewEnvelope(TypeSync, SyncBody{PositionMS: Ref(int64(0)), Playing: Ref(false)})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if string(env.Data) != `{"position_ms":0,"playing":false}` {
		t.Fatalf("unexpected payload %s", env.Data)
	}
}

func TestParseTopic(t *testing.T) {
	route, ok := ParseTopic(BaseTopic, TopicUp(BaseTopic, "alice", "dev-1"))
	if !ok || route.Account != "alice" || route.Kind != "up" || route.DeviceID != "dev-1" {
		t.Fatalf("unexpected route %+v", route)
	}
	route, ok = ParseTopic(BaseTopic, TopicDownDevice(BaseTopic, "alice", "dev-2"))
	if !ok || route.Kind != "down" || route.DeviceID != "dev-2" {
		t.Fatalf("unexpected down route %+v", route)
	}
	if _, ok := ParseTopic(BaseTopic, "other/v1/account/alice/up/x"); ok {
		t.Fatalf("expected foreign prefix to fail")
	}
	if _, ok := ParseTopic(BaseTopic, BaseTopic+"/account/alice/up"); ok {
		t.Fatalf("expected missing device to fail")
	}
}

func TestKnownType(t *testing.T) {
	if !KnownType(TypeSync) || !KnownType(TypeGetList) {
		t.Fatalf("expected protocol types to be known")
	}
	if KnownType("queue.set") {
		t.Fatalf("unexpected known type")
	}
}
