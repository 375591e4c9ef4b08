// Package bus fans room events out to every server instance. Each
// instance publishes committed events to the bus and delivers whatever the
// bus hands back to its locally connected sessions.
package bus

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrClosed = errors.New("bus closed")

// Envelope is one serialized event. An empty RoomId marks a global event.
type Envelope struct {
	RoomId string          `json:"room_id,omitempty"`
	Event  json.RawMessage `json:"event"`
}

func (e Envelope) Global() bool {
	return e.RoomId == ""
}

type Handler func(Envelope)

type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Run delivers envelopes to handle in publish order until ctx is done.
	Run(ctx context.Context, handle Handler) error
	// Ready is closed once Run is receiving.
	Ready() <-chan struct{}
}
