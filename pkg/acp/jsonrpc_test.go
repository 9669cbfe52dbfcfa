package acp

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string // "request", "response", "notification"
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, "request"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, "response"},
		{"notification", `{"jsonrpc":"2.0","method":"session/update","params":{}}`, "notification"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tc.data), &m); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			got := "none"
			switch {
			case m.IsResponse():
				got = "response"
			case m.IsNotification():
				got = "notification"
			case m.IsRequest():
				got = "request"
			}
			if got != tc.want {
				t.Errorf("classified as %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIntID(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":42,"result":{}}`), &m); err != nil {
		t.Fatal(err)
	}
	id, ok := m.IntID()
	if !ok || id != 42 {
		t.Errorf("IntID = %d, %v", id, ok)
	}

	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"abc","result":{}}`), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.IntID(); ok {
		t.Error("string id must not parse as int")
	}
}

func TestResponseEchoesAgentID(t *testing.T) {
	// Agent ids may be strings; the reply must carry them back verbatim.
	id := json.RawMessage(`"req-7"`)
	msg, err := NewResponse(id, map[string]string{"content": "x"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"req-7"`) {
		t.Errorf("id not echoed: %s", out)
	}
	if strings.ContainsRune(string(out), '\n') {
		t.Error("framing newlines belong to the transport, not the codec")
	}
}

func TestNewRequestIDs(t *testing.T) {
	msg, err := NewRequest(7, MethodSessionPrompt, PromptRequest{SessionID: "s"})
	if err != nil {
		t.Fatal(err)
	}
	out, _ := msg.Encode()
	var decoded Message
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("encoded request is not valid JSON: %v", err)
	}
	id, ok := decoded.IntID()
	if !ok || id != 7 {
		t.Errorf("id round trip = %d, %v", id, ok)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q", decoded.JSONRPC)
	}
}
