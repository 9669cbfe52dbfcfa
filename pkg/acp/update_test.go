package acp

import (
	"encoding/json"
	"testing"
)

func TestSessionUpdateDecode(t *testing.T) {
	t.Run("agent message chunk", func(t *testing.T) {
		data := `{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hello"}}`
		var u SessionUpdate
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if u.Kind != UpdateAgentMessageChunk {
			t.Errorf("kind = %q, want %q", u.Kind, UpdateAgentMessageChunk)
		}
		if u.Content == nil || u.Content.Text != "hello" {
			t.Errorf("content not decoded: %+v", u.Content)
		}
	})

	t.Run("tool call is normalized", func(t *testing.T) {
		data := `{"sessionUpdate":"tool_call","toolCallId":"tc1","title":"Edit file"}`
		var u SessionUpdate
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if u.ToolCall == nil {
			t.Fatal("tool call not decoded")
		}
		if u.ToolCall.Kind != ToolKindOther {
			t.Errorf("kind = %q, want default %q", u.ToolCall.Kind, ToolKindOther)
		}
		if u.ToolCall.Status != StatusPending {
			t.Errorf("status = %q, want default %q", u.ToolCall.Status, StatusPending)
		}
	})

	t.Run("tool call without id gets one", func(t *testing.T) {
		data := `{"sessionUpdate":"tool_call","title":"x"}`
		var u SessionUpdate
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if u.ToolCall.ToolCallID == "" {
			t.Error("expected a generated tool call id")
		}
	})

	t.Run("plan", func(t *testing.T) {
		data := `{"sessionUpdate":"plan","entries":[{"content":"step one","priority":"high","status":"pending"}]}`
		var u SessionUpdate
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if u.Plan == nil || len(u.Plan.Entries) != 1 {
			t.Fatalf("plan not decoded: %+v", u.Plan)
		}
		if u.Plan.Entries[0].Content != "step one" {
			t.Errorf("entry content = %q", u.Plan.Entries[0].Content)
		}
	})

	t.Run("unknown kind keeps raw", func(t *testing.T) {
		data := `{"sessionUpdate":"something_new","payload":42}`
		var u SessionUpdate
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			t.Fatalf("unknown kind must not fail: %v", err)
		}
		if u.Kind != "something_new" {
			t.Errorf("kind = %q", u.Kind)
		}
		if len(u.Raw) == 0 {
			t.Error("raw payload not kept")
		}
	})

	t.Run("missing discriminator fails", func(t *testing.T) {
		var u SessionUpdate
		if err := json.Unmarshal([]byte(`{"content":{}}`), &u); err == nil {
			t.Error("expected an error for a missing discriminator")
		}
	})
}

func TestToolCallApplyUpdate(t *testing.T) {
	tc := ToolCall{ToolCallID: "tc1", Title: "Edit", Status: StatusPending}

	inProgress := StatusInProgress
	tc.ApplyUpdate(&ToolCallUpdate{
		ToolCallID: "tc1",
		Status:     &inProgress,
		Content: []ToolCallContent{
			{Type: "diff", Path: "a.go", NewText: "x"},
		},
		Locations: []ToolCallLocation{{Path: "a.go"}},
	})

	if tc.Status != StatusInProgress {
		t.Errorf("status = %q", tc.Status)
	}
	if len(tc.Content) != 1 {
		t.Fatalf("content len = %d", len(tc.Content))
	}

	// Content accumulates, locations dedupe by path.
	done := StatusCompleted
	tc.ApplyUpdate(&ToolCallUpdate{
		ToolCallID: "tc1",
		Status:     &done,
		Content: []ToolCallContent{
			{Type: "diff", Path: "a.go", NewText: "y"},
		},
		Locations: []ToolCallLocation{{Path: "a.go"}, {Path: "b.go"}},
	})

	if len(tc.Content) != 2 {
		t.Errorf("content len = %d, want 2", len(tc.Content))
	}
	if len(tc.Locations) != 2 {
		t.Errorf("locations len = %d, want 2", len(tc.Locations))
	}
	if !tc.Status.Terminal() {
		t.Errorf("status %q should be terminal", tc.Status)
	}

	// Update for a different call is ignored.
	tc.ApplyUpdate(&ToolCallUpdate{ToolCallID: "other", Title: "nope"})
	if tc.Title == "nope" {
		t.Error("update for another id must be ignored")
	}
}

func TestContentBlockPassthrough(t *testing.T) {
	data := `{"type":"image","data":"abc","mimeType":"image/png"}`
	var b ContentBlock
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if b.Type != "image" {
		t.Errorf("type = %q", b.Type)
	}

	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("round trip produced bad JSON: %v", err)
	}
	if m["mimeType"] != "image/png" {
		t.Errorf("unknown field lost in round trip: %v", m)
	}
}
