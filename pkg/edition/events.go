package edition

import "time"

// EventKind identifies the mutation an event records.
type EventKind string

const (
	EventDeployed             EventKind = "Deployed"
	EventMinted               EventKind = "Minted"
	EventMetadataUpdated      EventKind = "MetadataUpdated"
	EventTransfer             EventKind = "Transfer"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
)

// Event is the API view of an EventRecord.
type Event struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Actor     string         `json:"actor"`
	TokenID   uint64         `json:"tokenId,omitempty"`
	OldValue  map[string]any `json:"oldValue,omitempty"`
	NewValue  map[string]any `json:"newValue,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// EventPage is one page of the event log.
type EventPage struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Listener receives committed events. Listeners run synchronously on the
// goroutine that performed the mutation and must not call back into a
// mutating registry method.
type Listener func(Event)

func eventFromRecord(rec *EventRecord) Event {
	return Event{
		ID:        rec.ID,
		Seq:       rec.Seq,
		Kind:      rec.Kind,
		Actor:     rec.Actor,
		TokenID:   rec.TokenID,
		OldValue:  rec.OldValue,
		NewValue:  rec.NewValue,
		CreatedAt: rec.CreatedAt,
	}
}
