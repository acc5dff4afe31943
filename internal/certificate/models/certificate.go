// Package models defines the certificate aggregate and its lifecycle.
package models

import (
	"time"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/coin"
	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

// ImageKind names which face of the coin or slab an image shows.
type ImageKind string

const (
	ImageObverse ImageKind = "obv"
	ImageReverse ImageKind = "rev"
	ImageSlab    ImageKind = "slab"
)

func (k ImageKind) IsValid() bool {
	return k == ImageObverse || k == ImageReverse || k == ImageSlab
}

// Image references a stored picture. Images are owned by their certificate.
type Image struct {
	ID     id.ImageID       `json:"id"`
	CertID id.CertificateID `json:"cert_id"`
	Kind   ImageKind        `json:"kind"`
	Path   string           `json:"path"`
	Width  int              `json:"width"`
	Height int              `json:"height"`
}

// Certificate is the unit of public verification.
//
// Invariants:
//   - SerialNumber is set at construction and never changes
//   - DisplayNumber, when set, matches one of the display grammars
//   - GradeNum is in [1,70] and Strike is MS, PF, PL or PU
//   - SupersededBy is set if and only if Status is reslabbed, and never
//     points at the certificate itself
type Certificate struct {
	ID            id.CertificateID  `json:"id"`
	SerialNumber  string            `json:"serial_number"`
	DisplayNumber string            `json:"display_number,omitempty"`
	Status        Status            `json:"status"`
	ConsignmentID *id.ConsignmentID `json:"consignment_id,omitempty"`
	ItemID        *id.ItemID        `json:"item_id,omitempty"`
	coin.Detail
	Variety      string            `json:"variety,omitempty"`
	LabelType    string            `json:"label_type,omitempty"`
	Pedigree     string            `json:"pedigree,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Images       []Image           `json:"images,omitempty"`
	SupersededBy *id.CertificateID `json:"superseded_by,omitempty"`
	VerifiedAt   *time.Time        `json:"verified_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewCertificate builds a pending certificate and checks its invariants.
func NewCertificate(serial, displayNumber string, detail coin.Detail, now time.Time) (*Certificate, error) {
	c := &Certificate{
		ID:            id.NewCertificateID(),
		SerialNumber:  serial,
		DisplayNumber: displayNumber,
		Status:        StatusPending,
		Detail:        detail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the field-level invariants.
func (c *Certificate) Validate() error {
	if c.SerialNumber == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "serial number is required")
	}
	if c.DisplayNumber != "" {
		if err := identifier.ValidateDisplayNumber(c.DisplayNumber); err != nil {
			return err
		}
	}
	if !c.Status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown status %q", c.Status)
	}
	if !coin.ValidGrade(c.GradeNum) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "grade %d outside 1..70", c.GradeNum)
	}
	if !coin.ValidStrike(c.Strike) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown strike %q", c.Strike)
	}
	if c.DenominationSlug == "" || c.Year == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "denomination and year are required")
	}
	if (c.Status == StatusReslabbed) != (c.SupersededBy != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "superseded_by must be set exactly when reslabbed")
	}
	if c.SupersededBy != nil && *c.SupersededBy == c.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "certificate cannot supersede itself")
	}
	for _, img := range c.Images {
		if !img.Kind.IsValid() {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown image kind %q", img.Kind)
		}
	}
	return nil
}

// BucketKey is the census bucket this certificate counts in.
func (c *Certificate) BucketKey() censusmodels.BucketKey {
	return censusmodels.BucketKey{Slug: c.DenominationSlug, Strike: c.Strike, Year: c.Year, GradeNum: c.GradeNum}
}

// IsCounted reports whether the census currently counts this certificate.
func (c *Certificate) IsCounted() bool {
	return c.Status.IsCounted()
}

// CanTransition checks target against the transition table.
// An idempotent repeat (verify of verified, revoke of revoked) is allowed and
// reported through the bool.
func (c *Certificate) CanTransition(target Status) (changed bool, err error) {
	if c.Status.IsIdempotentRepeat(target) {
		return false, nil
	}
	if !c.Status.CanTransitionTo(target) {
		return false, dErrors.Newf(dErrors.CodeInvalidTransition,
			"cannot move certificate from %s to %s", c.Status, target)
	}
	return true, nil
}

// ApplyTransition moves the certificate to target. Call CanTransition first.
// supersededBy is only used for reslabbed.
func (c *Certificate) ApplyTransition(target Status, supersededBy *id.CertificateID, now time.Time) {
	c.Status = target
	c.UpdatedAt = now
	switch target {
	case StatusVerified:
		t := now
		c.VerifiedAt = &t
	case StatusReslabbed:
		c.SupersededBy = supersededBy
	}
}

// CanReviseGrade checks that the grade of this certificate may change.
// Only counted certificates can be regraded.
func (c *Certificate) CanReviseGrade() error {
	if !c.Status.IsCounted() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot regrade a %s certificate", c.Status)
	}
	return nil
}

// ApplyGrade replaces the grade fields.
func (c *Certificate) ApplyGrade(gradeText string, gradeNum int, strike string, now time.Time) {
	c.GradeText = gradeText
	c.GradeNum = gradeNum
	c.Strike = strike
	c.UpdatedAt = now
}

// CanRenumber checks a new display number. Revoked certificates keep theirs.
func (c *Certificate) CanRenumber(displayNumber string) error {
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot renumber a revoked certificate")
	}
	return identifier.ValidateDisplayNumber(displayNumber)
}

// ApplyRenumber sets the display number.
func (c *Certificate) ApplyRenumber(displayNumber string, now time.Time) {
	c.DisplayNumber = displayNumber
	c.UpdatedAt = now
}

// Clone returns a deep copy, so stores never share mutable state with
// callers.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	out := *c
	if c.ConsignmentID != nil {
		v := *c.ConsignmentID
		out.ConsignmentID = &v
	}
	if c.ItemID != nil {
		v := *c.ItemID
		out.ItemID = &v
	}
	if c.SupersededBy != nil {
		v := *c.SupersededBy
		out.SupersededBy = &v
	}
	if c.VerifiedAt != nil {
		v := *c.VerifiedAt
		out.VerifiedAt = &v
	}
	if c.Images != nil {
		out.Images = append([]Image(nil), c.Images...)
	}
	return &out
}

// TransitionResult reports the outcome of a lifecycle request.
type TransitionResult struct {
	Certificate *Certificate `json:"certificate"`
	From        Status       `json:"from"`
	To          Status       `json:"to"`
	Changed     bool         `json:"changed"`
	Event       *Event       `json:"event,omitempty"`
}
