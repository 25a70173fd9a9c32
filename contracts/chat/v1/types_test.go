package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "valid inbound", env: Envelope{V: Version, Type: TypeMessage}},
		{name: "valid outbound", env: Envelope{V: Version, Type: TypeChatMessage}},
		{name: "missing v", env: Envelope{Type: TypeMessage}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v2", Type: TypeMessage}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "made_up"}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(MessagePayload{Text: "oi"})
	env := Envelope{
		V:       Version,
		Type:    TypeMessage,
		ID:      "01J0000000000000000000TEST",
		TS:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload: payload,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"v", "type", "id", "ts", "payload"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("wire object missing key %q: %s", key, b)
		}
	}
}

func TestChatMessagePayloadOmitsEmptyUsername(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ChatMessagePayload{MessageID: "m1", Message: "aviso"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["username"]; ok {
		t.Fatalf("username must be omitted when empty: %s", b)
	}
}
