package service

import (
	"context"
	"fmt"

	"certregistry/internal/certificate/models"
	certstore "certregistry/internal/certificate/store/certificate"
	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

// Violation is one broken supersession invariant.
type Violation struct {
	CertID       id.CertificateID `json:"cert_id"`
	SerialNumber string           `json:"serial_number"`
	Problem      string           `json:"problem"`
}

// CheckSupersession verifies across the whole store that reslabbed is
// exactly the set of certificates with superseded_by, that every link
// resolves to another certificate, and that no chain loops.
func (s *Service) CheckSupersession(ctx context.Context) ([]Violation, error) {
	links, err := s.certs.ListLinks(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return checkLinks(links), nil
}

func checkLinks(links []certstore.Link) []Violation {
	byID := make(map[id.CertificateID]certstore.Link, len(links))
	for _, l := range links {
		byID[l.ID] = l
	}

	var out []Violation
	add := func(l certstore.Link, format string, args ...any) {
		out = append(out, Violation{CertID: l.ID, SerialNumber: l.SerialNumber, Problem: fmt.Sprintf(format, args...)})
	}
	for _, l := range links {
		reslabbed := l.Status == models.StatusReslabbed
		switch {
		case reslabbed && l.SupersededBy == nil:
			add(l, "reslabbed without superseded_by")
			continue
		case !reslabbed && l.SupersededBy != nil:
			add(l, "superseded_by set on a %s certificate", l.Status)
		}
		if l.SupersededBy == nil {
			continue
		}
		if *l.SupersededBy == l.ID {
			add(l, "supersedes itself")
			continue
		}
		if _, ok := byID[*l.SupersededBy]; !ok {
			add(l, "superseded_by %s does not exist", l.SupersededBy)
			continue
		}

		seen := map[id.CertificateID]bool{l.ID: true}
		for next := l.SupersededBy; next != nil; {
			if seen[*next] {
				add(l, "supersession chain loops at %s", next)
				break
			}
			seen[*next] = true
			target, ok := byID[*next]
			if !ok {
				break
			}
			next = target.SupersededBy
		}
	}
	return out
}

// DisplayNumberReport summarizes stored display numbers by grammar.
type DisplayNumberReport struct {
	Legacy     int              `json:"legacy"`
	EightDigit int              `json:"eight_digit"`
	Missing    int              `json:"missing"`
	Invalid    []certstore.Link `json:"invalid"`
}

// AuditDisplayNumbers finds stored display numbers that match neither
// grammar. Writes never accept them; this surfaces rows from older imports.
func (s *Service) AuditDisplayNumbers(ctx context.Context) (*DisplayNumberReport, error) {
	links, err := s.certs.ListLinks(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	report := &DisplayNumberReport{}
	for _, l := range links {
		if l.DisplayNumber == "" {
			report.Missing++
			continue
		}
		format, ok := identifier.DisplayNumberFormat(l.DisplayNumber)
		switch {
		case !ok:
			report.Invalid = append(report.Invalid, l)
		case format == identifier.FormatLegacy:
			report.Legacy++
		default:
			report.EightDigit++
		}
	}
	return report, nil
}
