package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/certificate/models"
	"certregistry/internal/platform/postgres"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/sentinel"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore persists certificates in the certificates and cert_images
// tables. It is pure I/O; lifecycle rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const certColumns = `
	id, serial_number, display_number, status, consignment_id, item_id,
	denomination, denomination_slug, country, year, variety, metal, strike,
	grade_text, grade_num, label_type, pedigree, notes, superseded_by,
	verified_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Certificate) error {
	q := txcontext.Pick(ctx, s.db)
	query := `
		INSERT INTO certificates (` + certColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := q.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.SerialNumber,
		nullString(c.DisplayNumber),
		string(c.Status),
		consignmentArg(c.ConsignmentID),
		itemArg(c.ItemID),
		c.Denomination,
		c.DenominationSlug,
		c.Country,
		c.Year,
		c.Variety,
		c.Metal,
		c.Strike,
		c.GradeText,
		c.GradeNum,
		c.LabelType,
		c.Pedigree,
		c.Notes,
		certArg(c.SupersededBy),
		c.VerifiedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", postgres.TranslateError(err))
	}

	for i := range c.Images {
		img := &c.Images[i]
		if img.ID.IsNil() {
			img.ID = id.NewImageID()
		}
		img.CertID = c.ID
		_, err := q.ExecContext(ctx, `
			INSERT INTO cert_images (id, cert_id, kind, path, width, height)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(img.ID), uuid.UUID(c.ID), string(img.Kind), img.Path, img.Width, img.Height)
		if err != nil {
			return fmt.Errorf("insert certificate image: %w", err)
		}
	}
	return nil
}

// Update writes every mutable column. serial_number and created_at are
// never touched.
func (s *PostgresStore) Update(ctx context.Context, c *models.Certificate) error {
	query := `
		UPDATE certificates SET
			display_number = $2,
			status = $3,
			consignment_id = $4,
			item_id = $5,
			denomination = $6,
			denomination_slug = $7,
			country = $8,
			year = $9,
			variety = $10,
			metal = $11,
			strike = $12,
			grade_text = $13,
			grade_num = $14,
			label_type = $15,
			pedigree = $16,
			notes = $17,
			superseded_by = $18,
			verified_at = $19,
			updated_at = $20
		WHERE id = $1
	`
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		nullString(c.DisplayNumber),
		string(c.Status),
		consignmentArg(c.ConsignmentID),
		itemArg(c.ItemID),
		c.Denomination,
		c.DenominationSlug,
		c.Country,
		c.Year,
		c.Variety,
		c.Metal,
		c.Strike,
		c.GradeText,
		c.GradeNum,
		c.LabelType,
		c.Pedigree,
		c.Notes,
		certArg(c.SupersededBy),
		c.VerifiedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", postgres.TranslateError(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certificate rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(certID))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
// Concurrent transitions on the same certificate queue behind the lock and
// then read the committed state.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return s.findOne(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(certID))
}

func (s *PostgresStore) FindBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	return s.findOne(ctx, `WHERE serial_number = $1`, serial)
}

func (s *PostgresStore) FindByDisplayNumber(ctx context.Context, displayNumber string) (*models.Certificate, error) {
	return s.findOne(ctx, `WHERE display_number = $1`, displayNumber)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Certificate, error) {
	q := txcontext.Pick(ctx, s.db)
	c, err := scanCertificate(q.QueryRowContext(ctx, `SELECT `+certColumns+` FROM certificates `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	images, err := s.loadImages(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	c.Images = images
	return c, nil
}

func (s *PostgresStore) loadImages(ctx context.Context, q txcontext.Querier, certID id.CertificateID) ([]models.Image, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, kind, path, width, height
		FROM cert_images
		WHERE cert_id = $1
		ORDER BY kind, path
	`, uuid.UUID(certID))
	if err != nil {
		return nil, fmt.Errorf("query certificate images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var (
			imgID uuid.UUID
			kind  string
			img   models.Image
		)
		if err := rows.Scan(&imgID, &kind, &img.Path, &img.Width, &img.Height); err != nil {
			return nil, fmt.Errorf("scan certificate image: %w", err)
		}
		img.ID = id.ImageID(imgID)
		img.CertID = certID
		img.Kind = models.ImageKind(kind)
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificate images: %w", err)
	}
	return images, nil
}

func (s *PostgresStore) ExistingSerials(ctx context.Context, serials []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(serials) == 0 {
		return out, nil
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT serial_number FROM certificates WHERE serial_number = ANY($1)`, pq.Array(serials))
	if err != nil {
		return nil, fmt.Errorf("query existing serials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("scan serial: %w", err)
		}
		out[serial] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate serials: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListLinks(ctx context.Context) ([]Link, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id, serial_number, display_number, status, superseded_by
		FROM certificates
		ORDER BY serial_number
	`)
	if err != nil {
		return nil, fmt.Errorf("query certificate links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var (
			certID     uuid.UUID
			display    sql.NullString
			status     string
			superseded uuid.NullUUID
			link       Link
		)
		if err := rows.Scan(&certID, &link.SerialNumber, &display, &status, &superseded); err != nil {
			return nil, fmt.Errorf("scan certificate link: %w", err)
		}
		link.ID = id.CertificateID(certID)
		link.DisplayNumber = display.String
		link.Status = models.Status(status)
		if superseded.Valid {
			v := id.CertificateID(superseded.UUID)
			link.SupersededBy = &v
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificate links: %w", err)
	}
	return links, nil
}

func (s *PostgresStore) CountBuckets(ctx context.Context) (map[censusmodels.BucketKey]int, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT denomination_slug, strike, year, grade_num, COUNT(*)
		FROM certificates
		WHERE status IN ('pending', 'verified')
		GROUP BY denomination_slug, strike, year, grade_num
	`)
	if err != nil {
		return nil, fmt.Errorf("count buckets: %w", err)
	}
	defer rows.Close()

	counts := make(map[censusmodels.BucketKey]int)
	for rows.Next() {
		var (
			key   censusmodels.BucketKey
			count int
		)
		if err := rows.Scan(&key.Slug, &key.Strike, &key.Year, &key.GradeNum, &count); err != nil {
			return nil, fmt.Errorf("scan bucket count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket counts: %w", err)
	}
	return counts, nil
}

// DetachConsignment nulls the source links. The foreign keys do the same on
// delete; calling it first keeps both stores behaving alike.
func (s *PostgresStore) DetachConsignment(ctx context.Context, consignmentID id.ConsignmentID) (int, error) {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE certificates
		SET consignment_id = NULL, item_id = NULL
		WHERE consignment_id = $1
	`, uuid.UUID(consignmentID))
	if err != nil {
		return 0, fmt.Errorf("detach consignment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach consignment rows affected: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		c             models.Certificate
		certID        uuid.UUID
		display       sql.NullString
		status        string
		consignmentID uuid.NullUUID
		itemID        uuid.NullUUID
		superseded    uuid.NullUUID
		verifiedAt    sql.NullTime
	)
	err := row.Scan(
		&certID,
		&c.SerialNumber,
		&display,
		&status,
		&consignmentID,
		&itemID,
		&c.Denomination,
		&c.DenominationSlug,
		&c.Country,
		&c.Year,
		&c.Variety,
		&c.Metal,
		&c.Strike,
		&c.GradeText,
		&c.GradeNum,
		&c.LabelType,
		&c.Pedigree,
		&c.Notes,
		&superseded,
		&verifiedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.CertificateID(certID)
	c.DisplayNumber = display.String
	c.Status = models.Status(status)
	if consignmentID.Valid {
		v := id.ConsignmentID(consignmentID.UUID)
		c.ConsignmentID = &v
	}
	if itemID.Valid {
		v := id.ItemID(itemID.UUID)
		c.ItemID = &v
	}
	if superseded.Valid {
		v := id.CertificateID(superseded.UUID)
		c.SupersededBy = &v
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func consignmentArg(v *id.ConsignmentID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func itemArg(v *id.ItemID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func certArg(v *id.CertificateID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
