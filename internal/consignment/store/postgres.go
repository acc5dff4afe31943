package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certregistry/internal/consignment/models"
	"certregistry/internal/platform/postgres"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/sentinel"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore persists consignments and consignment_items. Items cascade
// with their consignment; certificate links are nulled by the foreign key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConsignment(ctx context.Context, c *models.Consignment) error {
	q := txcontext.Pick(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO consignments (id, number, pedigree_mode, pedigree_value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(c.ID), c.Number, string(c.PedigreeMode), c.PedigreeValue, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert consignment: %w", postgres.TranslateError(err))
	}
	return nil
}

const consignmentColumns = `id, number, pedigree_mode, pedigree_value, created_at`

func (s *PostgresStore) FindConsignment(ctx context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error) {
	return s.findConsignment(ctx, `WHERE id = $1`, uuid.UUID(consignmentID))
}

// FindConsignmentForUpdate locks the consignment row so item numbering is
// serialized per consignment.
func (s *PostgresStore) FindConsignmentForUpdate(ctx context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error) {
	return s.findConsignment(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(consignmentID))
}

func (s *PostgresStore) FindConsignmentByNumber(ctx context.Context, number string) (*models.Consignment, error) {
	return s.findConsignment(ctx, `WHERE number = $1`, number)
}

func (s *PostgresStore) findConsignment(ctx context.Context, where string, arg any) (*models.Consignment, error) {
	q := txcontext.Pick(ctx, s.db)
	row := q.QueryRowContext(ctx, `SELECT `+consignmentColumns+` FROM consignments `+where, arg)
	c, err := scanConsignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find consignment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConsignments(ctx context.Context) ([]*models.Consignment, error) {
	q := txcontext.Pick(ctx, s.db)
	rows, err := q.QueryContext(ctx, `SELECT `+consignmentColumns+` FROM consignments ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("list consignments: %w", err)
	}
	defer rows.Close()
	var out []*models.Consignment
	for rows.Next() {
		c, err := scanConsignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consignment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteConsignment(ctx context.Context, consignmentID id.ConsignmentID) error {
	q := txcontext.Pick(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM consignments WHERE id = $1`, uuid.UUID(consignmentID))
	if err != nil {
		return fmt.Errorf("delete consignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete consignment: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddItem(ctx context.Context, it *models.Item) error {
	q := txcontext.Pick(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO consignment_items (
			id, consignment_id, item_no, grade1, grade2, country, year_and_name,
			addl1, addl2, addl3, label_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, uuid.UUID(it.ID), uuid.UUID(it.ConsignmentID), it.ItemNo, it.Grade1, it.Grade2,
		it.Country, it.YearAndName, it.Addl1, it.Addl2, it.Addl3, it.LabelType, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) NextItemNo(ctx context.Context, consignmentID id.ConsignmentID) (int, error) {
	q := txcontext.Pick(ctx, s.db)
	var next int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(item_no), 0) + 1 FROM consignment_items WHERE consignment_id = $1
	`, uuid.UUID(consignmentID)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next item number: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, consignmentID id.ConsignmentID) ([]*models.Item, error) {
	q := txcontext.Pick(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, consignment_id, item_no, grade1, grade2, country, year_and_name,
			addl1, addl2, addl3, label_type, created_at
		FROM consignment_items
		WHERE consignment_id = $1
		ORDER BY item_no
	`, uuid.UUID(consignmentID))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		var it models.Item
		var itemID, cid uuid.UUID
		if err := rows.Scan(&itemID, &cid, &it.ItemNo, &it.Grade1, &it.Grade2, &it.Country,
			&it.YearAndName, &it.Addl1, &it.Addl2, &it.Addl3, &it.LabelType, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.ID = id.ItemID(itemID)
		it.ConsignmentID = id.ConsignmentID(cid)
		out = append(out, &it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsignment(row rowScanner) (*models.Consignment, error) {
	var c models.Consignment
	var cid uuid.UUID
	var mode string
	if err := row.Scan(&cid, &c.Number, &mode, &c.PedigreeValue, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ConsignmentID(cid)
	c.PedigreeMode = models.PedigreeMode(mode)
	return &c, nil
}
