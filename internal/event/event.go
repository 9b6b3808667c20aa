// Package event is the fire-and-forget side channel announcing pairing
// lifecycle transitions to external real-time delivery collaborators.
// Publication never blocks or fails the request that triggered it; call
// sites log errors and move on.
package event

import (
	"context"
	"time"
)

// Event types, one per lifecycle transition.
const (
	TypeCreated      = "created"
	TypePartnerSaved = "partner_saved"
	TypeMutualSaved  = "mutual_saved"
	TypeAutoDeclined = "auto_declined"
)

// Event is the payload pushed onto the bus per lifecycle transition.
type Event struct {
	PairingID uint64    `json:"pairing_id"`
	UserIDs   []uint64  `json:"user_ids"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the outbound side channel. The engine compiles and tests
// against Nop; production wires the RabbitMQ emitter.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
