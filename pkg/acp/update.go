package acp

import (
	"encoding/json"
	"fmt"
)

// Session update discriminator values.
const (
	UpdateUserMessageChunk  = "user_message_chunk"
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
	UpdateAvailableCommands = "available_commands_update"
)

// PlanEntry is one task in the agent's reported execution plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Plan is the agent's execution plan for the current turn.
type Plan struct {
	Entries []PlanEntry `json:"entries"`
}

// SessionUpdate is the tagged union carried by session/update
// notifications, keyed by the sessionUpdate discriminator. Exactly one of
// the payload fields is set, matching Kind; unknown kinds keep only Raw so
// newer agents don't break the dispatch loop.
type SessionUpdate struct {
	Kind string

	Content        *ContentBlock
	ToolCall       *ToolCall
	ToolCallUpdate *ToolCallUpdate
	Plan           *Plan

	Raw json.RawMessage
}

func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	var disc struct {
		Kind string `json:"sessionUpdate"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return err
	}
	if disc.Kind == "" {
		return fmt.Errorf("session update missing sessionUpdate discriminator")
	}
	u.Kind = disc.Kind
	u.Raw = append(json.RawMessage(nil), data...)

	switch disc.Kind {
	case UpdateUserMessageChunk, UpdateAgentMessageChunk, UpdateAgentThoughtChunk:
		var chunk struct {
			Content ContentBlock `json:"content"`
		}
		if err := json.Unmarshal(data, &chunk); err != nil {
			return fmt.Errorf("decode %s: %w", disc.Kind, err)
		}
		u.Content = &chunk.Content
	case UpdateToolCall:
		var tc ToolCall
		if err := json.Unmarshal(data, &tc); err != nil {
			return fmt.Errorf("decode tool_call: %w", err)
		}
		tc.Normalize()
		u.ToolCall = &tc
	case UpdateToolCallUpdate:
		var tu ToolCallUpdate
		if err := json.Unmarshal(data, &tu); err != nil {
			return fmt.Errorf("decode tool_call_update: %w", err)
		}
		u.ToolCallUpdate = &tu
	case UpdatePlan:
		var p Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode plan: %w", err)
		}
		u.Plan = &p
	default:
		// Unknown update kinds are carried in Raw only.
	}
	return nil
}

func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	return nil, fmt.Errorf("session update %q has no raw payload", u.Kind)
}

// SessionNotification is the params shape of session/update.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// PermissionOptionKind tells the frontend how to present an option.
type PermissionOptionKind string

const (
	AllowOnce    PermissionOptionKind = "allow_once"
	AllowAlways  PermissionOptionKind = "allow_always"
	RejectOnce   PermissionOptionKind = "reject_once"
	RejectAlways PermissionOptionKind = "reject_always"
)

// Allows reports whether choosing this kind approves the tool call.
func (k PermissionOptionKind) Allows() bool {
	return k == AllowOnce || k == AllowAlways
}

// PermissionOption is one choice offered in a permission request.
type PermissionOption struct {
	OptionID string               `json:"optionId"`
	Name     string               `json:"name"`
	Kind     PermissionOptionKind `json:"kind"`
}

// RequestPermissionRequest is the agent asking the user to authorize a
// tool call before running it.
type RequestPermissionRequest struct {
	SessionID string             `json:"sessionId"`
	ToolCall  *ToolCallUpdate    `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// PermissionOutcome resolves a permission request: either the user picked
// an option or the turn was cancelled before they answered.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // "selected" or "cancelled"
	OptionID string `json:"optionId,omitempty"`
}

// SelectedOutcome builds the outcome for a chosen option id.
func SelectedOutcome(optionID string) PermissionOutcome {
	return PermissionOutcome{Outcome: "selected", OptionID: optionID}
}

// CancelledOutcome builds the outcome for an unanswered request.
func CancelledOutcome() PermissionOutcome {
	return PermissionOutcome{Outcome: "cancelled"}
}

// RequestPermissionResponse is our reply to session/request_permission.
type RequestPermissionResponse struct {
	Outcome PermissionOutcome `json:"outcome"`
}
