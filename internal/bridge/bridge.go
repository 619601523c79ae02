// Package bridge turns a model reply into at most one executed user or email
// operation.
package bridge

import (
	"context"
	"encoding/json"
)

// Outcome is what a processed reply reports back to the dashboard.
type Outcome struct {
	Text         string          `json:"text"`
	Action       json.RawMessage `json:"action,omitempty"`
	ActionResult *Result         `json:"actionResult,omitempty"`
}

type Bridge struct {
	dispatcher *Dispatcher
}

func New(dispatcher *Dispatcher) *Bridge {
	return &Bridge{dispatcher: dispatcher}
}

// Process parses the reply and executes the embedded action, if any.
// snapshot is the caller's current user list, served back for listUsers.
func (b *Bridge) Process(ctx context.Context, text string, snapshot json.RawMessage) Outcome {
	rest, raw, ok := ExtractAction(text)
	if !ok {
		return Outcome{Text: rest}
	}
	result := b.dispatcher.Execute(ctx, DecodeAction(raw), snapshot)
	return Outcome{Text: rest, Action: raw, ActionResult: &result}
}
