// Package identifier derives certificate serial numbers and validates the
// public display-number grammars.
//
// Serial numbers are internal and immutable: "<consignment number>-<seq>",
// with seq zero-padded to three digits. Display numbers are what collectors
// type into the lookup form and come in two shapes:
//
//	legacy:      YYYY-XXXX-NNN  (YYYY in 2000..2099)
//	eight-digit: NNNNNNNN-NNN
package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	dErrors "certregistry/pkg/domain-errors"
)

// Format names the grammar a display number matched.
type Format string

const (
	FormatLegacy     Format = "legacy"
	FormatEightDigit Format = "eight_digit"
)

var (
	legacyDisplay     = regexp.MustCompile(`^20\d{2}-\d{4}-\d{3}$`)
	eightDigitDisplay = regexp.MustCompile(`^\d{8}-\d{3}$`)
	seqSuffix         = regexp.MustCompile(`^\d{3,}$`)
)

// DeriveSerial builds the serial for the itemSeq-th item of a consignment.
func DeriveSerial(consignmentNumber string, itemSeq int) (string, error) {
	consignmentNumber = strings.TrimSpace(consignmentNumber)
	if consignmentNumber == "" {
		return "", dErrors.New(dErrors.CodeValidation, "consignment number is required")
	}
	if itemSeq <= 0 {
		return "", dErrors.Newf(dErrors.CodeValidation, "item sequence must be positive, got %d", itemSeq)
	}
	return fmt.Sprintf("%s-%03d", consignmentNumber, itemSeq), nil
}

const (
	consignmentPlaceholder = "{consignment}"
	seqPlaceholder         = "{seq}"
)

// ValidateSerialFormat checks a serial override template. The template
// decorates the consignment number and must end in "-{seq}", so every
// serial it renders still parses with ParseSerial.
func ValidateSerialFormat(format string) error {
	head, ok := strings.CutSuffix(format, "-"+seqPlaceholder)
	if !ok || strings.Count(head, consignmentPlaceholder) != 1 || strings.Contains(head, seqPlaceholder) ||
		strings.TrimSpace(head) != head {
		return dErrors.Newf(dErrors.CodeValidation, "invalid serial format %q", format)
	}
	return nil
}

// FormatSerial renders a serial through an override template such as
// "R{consignment}-{seq}". An empty format is DeriveSerial.
func FormatSerial(format, consignmentNumber string, itemSeq int) (string, error) {
	serial, err := DeriveSerial(consignmentNumber, itemSeq)
	if err != nil || format == "" {
		return serial, err
	}
	if err := ValidateSerialFormat(format); err != nil {
		return "", err
	}
	head := strings.TrimSuffix(format, "-"+seqPlaceholder)
	cn, seq, _ := ParseSerial(serial)
	return fmt.Sprintf("%s-%03d", strings.Replace(head, consignmentPlaceholder, cn, 1), seq), nil
}

// ParseSerial splits a serial at its last hyphen. It is the inverse of
// DeriveSerial for every value DeriveSerial accepts.
func ParseSerial(serial string) (string, int, error) {
	idx := strings.LastIndex(serial, "-")
	if idx <= 0 || idx == len(serial)-1 {
		return "", 0, dErrors.Newf(dErrors.CodeValidation, "malformed serial %q", serial)
	}
	consignment, suffix := serial[:idx], serial[idx+1:]
	if strings.TrimSpace(consignment) != consignment || !seqSuffix.MatchString(suffix) {
		return "", 0, dErrors.Newf(dErrors.CodeValidation, "malformed serial %q", serial)
	}
	// Padding is exactly three digits unless the sequence needs more.
	if len(suffix) > 3 && suffix[0] == '0' {
		return "", 0, dErrors.Newf(dErrors.CodeValidation, "malformed serial %q", serial)
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil || seq <= 0 {
		return "", 0, dErrors.Newf(dErrors.CodeValidation, "malformed serial %q", serial)
	}
	return consignment, seq, nil
}

// DisplayNumberFormat reports which grammar candidate matches.
func DisplayNumberFormat(candidate string) (Format, bool) {
	switch {
	case legacyDisplay.MatchString(candidate):
		return FormatLegacy, true
	case eightDigitDisplay.MatchString(candidate):
		return FormatEightDigit, true
	default:
		return "", false
	}
}

// ValidateDisplayNumber rejects anything outside the two accepted grammars.
// It never touches storage; uniqueness is the store's job.
func ValidateDisplayNumber(candidate string) error {
	if _, ok := DisplayNumberFormat(candidate); !ok {
		return dErrors.Newf(dErrors.CodeValidation, "invalid display number %q", candidate)
	}
	return nil
}

// IsSerialShape reports whether s looks like a serial rather than a display
// number, for lookups that accept either.
func IsSerialShape(s string) bool {
	if _, ok := DisplayNumberFormat(s); ok {
		return false
	}
	_, _, err := ParseSerial(s)
	return err == nil
}
