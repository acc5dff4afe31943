package models

import (
	"strings"

	"certregistry/internal/coin"
	"certregistry/internal/labelkb"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

// ImageInput describes an image to attach at creation.
type ImageInput struct {
	Kind   ImageKind `json:"kind"`
	Path   string    `json:"path"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// CreateRequest carries everything needed to issue a certificate.
//
// The serial comes from SerialNumber when set (an explicit idempotency
// key), otherwise from ConsignmentNumber and ItemSeq. LabelKey names a
// knowledge base entry exactly; LabelText is free text resolved through
// aliases. Explicit descriptive fields always win over the entry.
type CreateRequest struct {
	SerialNumber      string            `json:"serial_number"`
	ConsignmentNumber string            `json:"consignment_number"`
	ItemSeq           int               `json:"item_seq"`
	DisplayNumber     string            `json:"display_number"`
	ConsignmentID     *id.ConsignmentID `json:"consignment_id,omitempty"`
	ItemID            *id.ItemID        `json:"item_id,omitempty"`

	LabelKey  string `json:"label_key"`
	LabelText string `json:"label_text"`

	Country     string `json:"country"`
	YearAndName string `json:"year_and_name"`
	CoinName    string `json:"coin_name"`
	Year        string `json:"year"`
	Grade       string `json:"grade"`
	Variety     string `json:"variety"`
	LabelType   string `json:"label_type"`
	Pedigree    string `json:"pedigree"`
	Notes       string `json:"notes"`

	Images []ImageInput `json:"images"`
}

// Normalize trims every free-text field.
func (r *CreateRequest) Normalize() {
	for _, f := range []*string{
		&r.SerialNumber, &r.ConsignmentNumber, &r.DisplayNumber, &r.LabelKey, &r.LabelText,
		&r.Country, &r.YearAndName, &r.CoinName, &r.Year, &r.Grade,
		&r.Variety, &r.LabelType, &r.Pedigree, &r.Notes,
	} {
		*f = strings.TrimSpace(*f)
	}
	for i := range r.Images {
		r.Images[i].Path = strings.TrimSpace(r.Images[i].Path)
	}
}

// Validate checks shape only; coin detail is validated after derivation.
func (r *CreateRequest) Validate() error {
	if r.SerialNumber == "" && r.ConsignmentNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "serial_number or consignment_number is required")
	}
	for _, img := range r.Images {
		if !img.Kind.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown image kind %q", img.Kind)
		}
		if img.Path == "" {
			return dErrors.New(dErrors.CodeValidation, "image path is required")
		}
		if img.Width < 0 || img.Height < 0 {
			return dErrors.New(dErrors.CodeValidation, "image dimensions must not be negative")
		}
	}
	return nil
}

// Descriptors exposes the free-text fields for knowledge base enrichment.
// A combined "year and name" is split first so the caller's own values
// still win over the entry.
func (r *CreateRequest) Descriptors() labelkb.Descriptors {
	d := labelkb.Descriptors{
		Country:    r.Country,
		Year:       r.Year,
		CoinName:   r.CoinName,
		GradeLabel: r.Grade,
		Addl1:      r.Variety,
	}
	if d.CoinName == "" && r.YearAndName != "" {
		year, name := coin.SplitYearAndName(r.YearAndName)
		d.CoinName = name
		if d.Year == "" {
			d.Year = year
		}
	}
	return d
}

// ApplyDescriptors writes enriched descriptors back. Addl1 is the variety;
// Addl2 and Addl3 become notes when the caller gave none.
func (r *CreateRequest) ApplyDescriptors(d labelkb.Descriptors) {
	r.Country = d.Country
	r.Year = d.Year
	r.CoinName = d.CoinName
	r.Grade = d.GradeLabel
	r.Variety = d.Addl1
	if r.Notes == "" {
		var notes []string
		for _, n := range []string{d.Addl2, d.Addl3} {
			if n != "" {
				notes = append(notes, n)
			}
		}
		r.Notes = strings.Join(notes, "; ")
	}
}

// CoinFields returns the inputs for coin detail derivation.
func (r *CreateRequest) CoinFields() coin.Fields {
	return coin.Fields{
		Country:     r.Country,
		YearAndName: r.YearAndName,
		CoinName:    r.CoinName,
		Year:        r.Year,
		Grade:       r.Grade,
	}
}
