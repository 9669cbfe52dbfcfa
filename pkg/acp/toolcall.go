package acp

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ToolKind categorizes a tool call so a frontend can pick an icon.
type ToolKind string

const (
	ToolKindRead    ToolKind = "read"
	ToolKindEdit    ToolKind = "edit"
	ToolKindDelete  ToolKind = "delete"
	ToolKindMove    ToolKind = "move"
	ToolKindSearch  ToolKind = "search"
	ToolKindExecute ToolKind = "execute"
	ToolKindThink   ToolKind = "think"
	ToolKindFetch   ToolKind = "fetch"
	ToolKindOther   ToolKind = "other"
)

// ToolCallStatus tracks a tool call through its lifecycle.
type ToolCallStatus string

const (
	StatusPending    ToolCallStatus = "pending"
	StatusInProgress ToolCallStatus = "in_progress"
	StatusCompleted  ToolCallStatus = "completed"
	StatusFailed     ToolCallStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s ToolCallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolCallContent is one content item of a tool call: either a regular
// content block or a file diff.
type ToolCallContent struct {
	Type string `json:"type"`

	// type == "content"
	Content *ContentBlock `json:"content,omitempty"`

	// type == "diff"
	Path    string  `json:"path,omitempty"`
	OldText *string `json:"oldText,omitempty"`
	NewText string  `json:"newText,omitempty"`
}

// IsDiff reports whether the item is a file diff.
func (c *ToolCallContent) IsDiff() bool { return c.Type == "diff" }

// ToolCallLocation names a file the tool call touches.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line *int   `json:"line,omitempty"`
}

// ToolCall is a unit of agent-initiated work surfaced through session
// updates. It is created by the first tool_call update and then mutated by
// tool_call_update notifications until a terminal status.
type ToolCall struct {
	ToolCallID string             `json:"toolCallId"`
	Title      string             `json:"title,omitempty"`
	Kind       ToolKind           `json:"kind,omitempty"`
	Status     ToolCallStatus     `json:"status,omitempty"`
	Content    []ToolCallContent  `json:"content,omitempty"`
	Locations  []ToolCallLocation `json:"locations,omitempty"`
	RawInput   json.RawMessage    `json:"rawInput,omitempty"`
	RawOutput  json.RawMessage    `json:"rawOutput,omitempty"`
}

// ToolCallUpdate carries the changed fields of an existing tool call.
// Everything except the id is optional.
type ToolCallUpdate struct {
	ToolCallID string             `json:"toolCallId"`
	Title      string             `json:"title,omitempty"`
	Kind       ToolKind           `json:"kind,omitempty"`
	Status     *ToolCallStatus    `json:"status,omitempty"`
	Content    []ToolCallContent  `json:"content,omitempty"`
	Locations  []ToolCallLocation `json:"locations,omitempty"`
	RawInput   json.RawMessage    `json:"rawInput,omitempty"`
	RawOutput  json.RawMessage    `json:"rawOutput,omitempty"`
}

// Normalize fills defaults the wire format leaves optional. Agents that
// omit the tool call id get a generated one so downstream tracking by id
// still works.
func (t *ToolCall) Normalize() {
	if t.ToolCallID == "" {
		t.ToolCallID = "call_" + uuid.NewString()
	}
	if t.Kind == "" {
		t.Kind = ToolKindOther
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// ApplyUpdate merges a tool_call_update into the call: status transitions
// replace, content and locations accumulate, raw input/output replace when
// present. Updates for a different id are ignored.
func (t *ToolCall) ApplyUpdate(u *ToolCallUpdate) {
	if u == nil || (u.ToolCallID != "" && u.ToolCallID != t.ToolCallID) {
		return
	}
	if u.Title != "" {
		t.Title = u.Title
	}
	if u.Kind != "" {
		t.Kind = u.Kind
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if len(u.Content) > 0 {
		t.Content = append(t.Content, u.Content...)
	}
	for _, loc := range u.Locations {
		if !t.hasLocation(loc.Path) {
			t.Locations = append(t.Locations, loc)
		}
	}
	if len(u.RawInput) > 0 {
		t.RawInput = u.RawInput
	}
	if len(u.RawOutput) > 0 {
		t.RawOutput = u.RawOutput
	}
}

func (t *ToolCall) hasLocation(path string) bool {
	for _, loc := range t.Locations {
		if loc.Path == path {
			return true
		}
	}
	return false
}

// Diffs returns the diff content items of the call, in order.
func (t *ToolCall) Diffs() []ToolCallContent {
	var out []ToolCallContent
	for _, c := range t.Content {
		if c.IsDiff() {
			out = append(out, c)
		}
	}
	return out
}
