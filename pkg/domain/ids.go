// Package domain holds typed identifiers shared across bounded contexts.
//
// Each identifier wraps a uuid.UUID so the compiler rejects passing a
// consignment id where a certificate id is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "certregistry/pkg/domain-errors"
)

type (
	CertificateID uuid.UUID
	ConsignmentID uuid.UUID
	ItemID        uuid.UUID
	EventID       uuid.UUID
	ImageID       uuid.UUID
)

func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id ConsignmentID) String() string { return uuid.UUID(id).String() }
func (id ItemID) String() string        { return uuid.UUID(id).String() }
func (id EventID) String() string       { return uuid.UUID(id).String() }
func (id ImageID) String() string       { return uuid.UUID(id).String() }

func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsignmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ImageID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }
func NewConsignmentID() ConsignmentID { return ConsignmentID(uuid.New()) }
func NewItemID() ItemID               { return ItemID(uuid.New()) }
func NewEventID() EventID             { return EventID(uuid.New()) }
func NewImageID() ImageID             { return ImageID(uuid.New()) }

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate id")
	return CertificateID(u), err
}

func ParseConsignmentID(s string) (ConsignmentID, error) {
	u, err := parseUUID(s, "consignment id")
	return ConsignmentID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item id")
	return ItemID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" must not be nil")
	}
	return u, nil
}

// Text marshalling keeps JSON and query parameters in canonical UUID form.

func (id CertificateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConsignmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ItemID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ImageID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }

func (id *CertificateID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ConsignmentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ItemID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ImageID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
