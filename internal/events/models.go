// Package events moves certificate history from the transactional outbox to
// the event stream.
//
// The lifecycle service writes an outbox row in the same transaction as the
// certificate change. The Relay later leases a batch of unpublished rows,
// publishes it outside any transaction and marks it, so a crash between
// commit and publish delays delivery but never loses an event. Consumers
// must tolerate duplicates.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certregistry/internal/certificate/models"
)

const aggregateCertificate = "certificate"

// Entry is one outbox row.
type Entry struct {
	Seq           int64
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	// ClaimedUntil is the lease held by the relay publishing this row.
	ClaimedUntil *time.Time
}

// Message is the JSON published for every certificate event.
type Message struct {
	ID            string         `json:"id"`
	CertID        string         `json:"cert_id"`
	SerialNumber  string         `json:"serial_number"`
	DisplayNumber string         `json:"display_number,omitempty"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Actor         string         `json:"actor"`
	Meta          map[string]any `json:"meta,omitempty"`
	OccurredAt    string         `json:"occurred_at"`
	RequestID     string         `json:"request_id,omitempty"`
}

// NewEntry builds the outbox row for e, snapshotting the certificate state
// after the change.
func NewEntry(e *models.Event, cert *models.Certificate, requestID string) (*Entry, error) {
	msg := Message{
		ID:            e.ID.String(),
		CertID:        e.CertID.String(),
		SerialNumber:  cert.SerialNumber,
		DisplayNumber: cert.DisplayNumber,
		Type:          string(e.Type),
		Status:        string(cert.Status),
		Actor:         e.Actor,
		Meta:          e.Meta,
		OccurredAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		RequestID:     requestID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &Entry{
		ID:            uuid.UUID(e.ID),
		AggregateType: aggregateCertificate,
		AggregateID:   e.CertID.String(),
		EventType:     string(e.Type),
		Payload:       payload,
		CreatedAt:     e.CreatedAt,
	}, nil
}
