package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore appends to cert_events. Rows are never updated or deleted
// except by the certificate's own cascade.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *models.Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshal event meta: %w", err)
	}
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO cert_events (id, cert_id, type, actor, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(e.ID), uuid.UUID(e.CertID), string(e.Type), e.Actor, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCert(ctx context.Context, certID id.CertificateID) ([]*models.Event, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id, type, actor, meta, created_at
		FROM cert_events
		WHERE cert_id = $1
		ORDER BY seq
	`, uuid.UUID(certID))
	if err != nil {
		return nil, fmt.Errorf("query cert events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			eventID uuid.UUID
			typ     string
			meta    []byte
			e       = &models.Event{CertID: certID}
		)
		if err := rows.Scan(&eventID, &typ, &e.Actor, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cert event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.Type = models.EventType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cert events: %w", err)
	}
	return events, nil
}
