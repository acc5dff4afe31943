// Package models defines consignments, their items and the export view.
package models

import (
	"strings"
	"time"

	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

// PedigreeMode controls where an item's pedigree comes from.
type PedigreeMode string

const (
	PedigreeNone           PedigreeMode = "none"
	PedigreePerConsignment PedigreeMode = "per_consignment"
	PedigreePerCoin        PedigreeMode = "per_coin"
)

func (m PedigreeMode) IsValid() bool {
	switch m {
	case PedigreeNone, PedigreePerConsignment, PedigreePerCoin:
		return true
	}
	return false
}

// Consignment is a batch of coins submitted together. It owns its items.
type Consignment struct {
	ID            id.ConsignmentID `json:"id"`
	Number        string           `json:"number"`
	PedigreeMode  PedigreeMode     `json:"pedigree_mode"`
	PedigreeValue string           `json:"pedigree_value,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewConsignment validates and builds a consignment. The number must yield
// well-formed serials.
func NewConsignment(number string, mode PedigreeMode, pedigree string, now time.Time) (*Consignment, error) {
	number = strings.TrimSpace(number)
	pedigree = strings.TrimSpace(pedigree)
	if mode == "" {
		mode = PedigreeNone
	}
	if !mode.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown pedigree mode %q", mode)
	}
	if mode == PedigreePerConsignment && pedigree == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "pedigree_value required for per_consignment")
	}
	if strings.ContainsAny(number, " \t\n") {
		return nil, dErrors.Newf(dErrors.CodeValidation, "consignment number %q must not contain whitespace", number)
	}
	if _, err := identifier.DeriveSerial(number, 1); err != nil {
		return nil, err
	}
	if mode != PedigreePerConsignment {
		pedigree = ""
	}
	return &Consignment{
		ID:            id.NewConsignmentID(),
		Number:        number,
		PedigreeMode:  mode,
		PedigreeValue: pedigree,
		CreatedAt:     now,
	}, nil
}

// PedigreeFor picks the pedigree for one item.
func (c *Consignment) PedigreeFor(override string) string {
	switch c.PedigreeMode {
	case PedigreePerConsignment:
		return c.PedigreeValue
	case PedigreePerCoin:
		return strings.TrimSpace(override)
	}
	return ""
}

// SerialFor is the certificate serial of the itemNo-th item.
func (c *Consignment) SerialFor(itemNo int) (string, error) {
	return identifier.DeriveSerial(c.Number, itemNo)
}

// Item is one coin in a consignment, as typed on its label.
type Item struct {
	ID            id.ItemID        `json:"id"`
	ConsignmentID id.ConsignmentID `json:"consignment_id"`
	ItemNo        int              `json:"item_no"`
	Grade1        string           `json:"grade1"`
	Grade2        string           `json:"grade2,omitempty"`
	Country       string           `json:"country"`
	YearAndName   string           `json:"year_and_name"`
	Addl1         string           `json:"addl1,omitempty"`
	Addl2         string           `json:"addl2,omitempty"`
	Addl3         string           `json:"addl3,omitempty"`
	LabelType     string           `json:"label_type"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AddItemRequest describes an item to add. ItemNo zero means next free.
type AddItemRequest struct {
	ItemNo           int    `json:"item_no"`
	Grade1           string `json:"grade1"`
	Grade2           string `json:"grade2"`
	Country          string `json:"country"`
	YearAndName      string `json:"year_and_name"`
	Addl1            string `json:"addl1"`
	Addl2            string `json:"addl2"`
	Addl3            string `json:"addl3"`
	PedigreeOverride string `json:"pedigree_override"`
}

func (r *AddItemRequest) Normalize() {
	for _, f := range []*string{
		&r.Grade1, &r.Grade2, &r.Country, &r.YearAndName,
		&r.Addl1, &r.Addl2, &r.Addl3, &r.PedigreeOverride,
	} {
		*f = strings.TrimSpace(*f)
	}
}

func (r *AddItemRequest) Validate() error {
	if r.ItemNo < 0 {
		return dErrors.New(dErrors.CodeValidation, "item_no must not be negative")
	}
	if r.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country is required")
	}
	if r.YearAndName == "" {
		return dErrors.New(dErrors.CodeValidation, "year_and_name is required")
	}
	return nil
}

// NewItem builds an item for c, placing the pedigree and computing the
// label type.
func NewItem(c *Consignment, itemNo int, req AddItemRequest, now time.Time) *Item {
	addl := PlacePedigree([3]string{req.Addl1, req.Addl2, req.Addl3}, c.PedigreeFor(req.PedigreeOverride))
	return &Item{
		ID:            id.NewItemID(),
		ConsignmentID: c.ID,
		ItemNo:        itemNo,
		Grade1:        req.Grade1,
		Grade2:        req.Grade2,
		Country:       req.Country,
		YearAndName:   req.YearAndName,
		Addl1:         addl[0],
		Addl2:         addl[1],
		Addl3:         addl[2],
		LabelType:     LabelType(req.Grade2, addl),
		CreatedAt:     now,
	}
}

// PlacePedigree puts pedigree into the first empty slot. When every slot is
// taken the pedigree is dropped.
func PlacePedigree(addl [3]string, pedigree string) [3]string {
	pedigree = strings.TrimSpace(pedigree)
	if pedigree == "" {
		return addl
	}
	for i := range addl {
		if strings.TrimSpace(addl[i]) == "" {
			addl[i] = pedigree
			return addl
		}
	}
	return addl
}

// Label layouts, chosen by whether a second grade is printed and how many
// additional lines the label carries.
const (
	LabelSimple         = "Simple"
	LabelSimplePlus     = "Simple +"
	LabelSimplePlusPlus = "Simple ++"
	LabelDouble         = "Double"
	LabelDoublePlus     = "Double +"
)

func LabelType(grade2 string, addl [3]string) string {
	lines := 0
	for _, a := range addl {
		if strings.TrimSpace(a) != "" {
			lines++
		}
	}
	if strings.TrimSpace(grade2) == "" {
		switch {
		case lines <= 1:
			return LabelSimple
		case lines == 2:
			return LabelSimplePlus
		default:
			return LabelSimplePlusPlus
		}
	}
	if lines <= 1 {
		return LabelDouble
	}
	return LabelDoublePlus
}

// NumberLess orders consignment numbers naturally: two all-digit numbers
// compare by value ("9" before "10"), anything else compares as text.
func NumberLess(a, b string) bool {
	if !allDigits(a) || !allDigits(b) {
		return a < b
	}
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		return len(ta) < len(tb)
	}
	if ta != tb {
		return ta < tb
	}
	return a < b
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
