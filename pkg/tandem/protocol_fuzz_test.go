package tandem

import "testing"

func FuzzParseEnvelope(f *testing.F) {
	f.Add(`{"type":"playback:sync","data":{"position_ms":10}}`)
	f.Add(`{"type":"","data":null}`)
	f.Add(`{`)

	f.Fuzz(func(t *testing.T, raw string) {
		env, err := ParseEnvelope([]byte(raw))
		if err != nil {
			return
		}
		var body SyncBody
		_ = env.Decode(&body)
	})
}
