package models

import (
	"encoding/csv"
	"fmt"
	"io"

	id "certregistry/pkg/domain"
)

// ExportHeader is the label printer's column layout.
var ExportHeader = []string{
	"Serial Number", "Grade 1", "Grade 2", "Country", "Year and Name",
	"Additional Information", "Additional Information 2", "Additional Information 3",
	"Label Type",
}

// ExportRow is one line of the label export.
type ExportRow struct {
	ConsignmentID     id.ConsignmentID `json:"consignment_id"`
	ConsignmentNumber string           `json:"consignment_number"`
	ItemNo            int              `json:"item_no"`
	SerialNumber      string           `json:"serial_number"`
	Grade1            string           `json:"grade1"`
	Grade2            string           `json:"grade2"`
	Country           string           `json:"country"`
	YearAndName       string           `json:"year_and_name"`
	Addl1             string           `json:"addl1"`
	Addl2             string           `json:"addl2"`
	Addl3             string           `json:"addl3"`
	LabelType         string           `json:"label_type"`
}

// NewExportRow flattens an item of c.
func NewExportRow(c *Consignment, it *Item) (ExportRow, error) {
	serial, err := c.SerialFor(it.ItemNo)
	if err != nil {
		return ExportRow{}, err
	}
	return ExportRow{
		ConsignmentID:     c.ID,
		ConsignmentNumber: c.Number,
		ItemNo:            it.ItemNo,
		SerialNumber:      serial,
		Grade1:            it.Grade1,
		Grade2:            it.Grade2,
		Country:           it.Country,
		YearAndName:       it.YearAndName,
		Addl1:             it.Addl1,
		Addl2:             it.Addl2,
		Addl3:             it.Addl3,
		LabelType:         it.LabelType,
	}, nil
}

func (r ExportRow) Record() []string {
	return []string{
		r.SerialNumber, r.Grade1, r.Grade2, r.Country, r.YearAndName,
		r.Addl1, r.Addl2, r.Addl3, r.LabelType,
	}
}

// WriteCSV writes the header and rows.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("write export row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
