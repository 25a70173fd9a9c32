package chat

import (
	"encoding/json"
	"testing"
	"time"

	v1 "chamados/contracts/chat/v1"
)

func TestNewEnvelopeStampsIDAndVersion(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	env := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: "store_failed"}, now)

	if env.ID == "" {
		t.Fatal("envelope id must never be empty")
	}
	if env.V != v1.Version {
		t.Fatalf("version=%q want %q", env.V, v1.Version)
	}
	if !env.TS.Equal(now) {
		t.Fatalf("ts=%v want %v", env.TS, now)
	}

	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if p.Code != "store_failed" {
		t.Fatalf("code=%q", p.Code)
	}
}

func TestNewEnvelopeUnmarshalablePayloadStaysValidJSON(t *testing.T) {
	t.Parallel()

	env := newEnvelope(v1.TypeError, make(chan int), time.Now().UTC())

	if env.ID == "" {
		t.Fatal("envelope id must never be empty")
	}
	var obj map[string]any
	if err := json.Unmarshal(env.Payload, &obj); err != nil {
		t.Fatalf("payload must degrade to an empty object: %v", err)
	}
	if len(obj) != 0 {
		t.Fatalf("payload=%v want empty object", obj)
	}
}

func TestStampIDNeverEmpty(t *testing.T) {
	t.Parallel()

	if stampID(time.Now().UTC()) == "" {
		t.Fatal("stampID returned empty id")
	}
	if stampID(time.Time{}) == "" {
		t.Fatal("stampID with zero time returned empty id")
	}
}
