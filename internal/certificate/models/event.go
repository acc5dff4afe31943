package models

import (
	"time"

	id "certregistry/pkg/domain"
)

// EventType names an entry in a certificate's history.
type EventType string

const (
	EventCreated    EventType = "created"
	EventSlabbed    EventType = "slabbed"
	EventRevised    EventType = "revised"
	EventRevoked    EventType = "revoked"
	EventRenumbered EventType = "renumbered"
	EventRegraded   EventType = "regraded"
)

// Event is an append-only history record.
type Event struct {
	ID        id.EventID       `json:"id"`
	CertID    id.CertificateID `json:"cert_id"`
	Type      EventType        `json:"type"`
	Actor     string           `json:"actor"`
	Meta      map[string]any   `json:"meta,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewEvent stamps a fresh event.
func NewEvent(certID id.CertificateID, typ EventType, actor string, meta map[string]any, now time.Time) *Event {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Event{
		ID:        id.NewEventID(),
		CertID:    certID,
		Type:      typ,
		Actor:     actor,
		Meta:      meta,
		CreatedAt: now,
	}
}

// eventForTarget maps a transition target to the event it records.
var eventForTarget = map[Status]EventType{
	StatusVerified:  EventSlabbed,
	StatusReslabbed: EventRevised,
	StatusRevoked:   EventRevoked,
}

// TransitionEvent returns the event type recorded when entering target.
func TransitionEvent(target Status) (EventType, bool) {
	t, ok := eventForTarget[target]
	return t, ok
}
