package events

import (
	"context"
	"encoding/json"
	"strconv"
)

// Event types
const (
	EventEscrowCreated   = "escrow_created"
	EventEscrowAdded     = "escrow_added"
	EventEscrowFunded    = "escrow_funded"
	EventEscrowDisputed  = "escrow_disputed"
	EventEscrowCancelled = "escrow_cancelled"
	EventEscrowReleased  = "escrow_released"
	EventBalanceCredited = "balance_credited"

	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalSent      = "withdrawal_sent"
	EventWithdrawalFailed    = "withdrawal_failed"
)

// Streams
const (
	StreamEscrow  = "events:escrow"
	StreamAccount = "events:account"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// EscrowID extracts the escrow id from an event payload. In-process events carry
// a uint64; events that went through JSON carry a float64.
func EscrowID(event Event) (uint64, bool) {
	switch v := event.Payload["escrow_id"].(type) {
	case uint64:
		return v, true
	case float64:
		if v < 1 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 1 {
			return 0, false
		}
		return uint64(v), true
	case json.Number:
		n, err := strconv.ParseUint(string(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}
