//go:build integration

package certificate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"certregistry/internal/certificate/models"
	"certregistry/internal/certificate/store/certificate"
	consignmentmodels "certregistry/internal/consignment/models"
	consignmentstore "certregistry/internal/consignment/store"
	"certregistry/pkg/platform/sentinel"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/testutil/containers"
)

type PostgresCertificateSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *certificate.PostgresStore
	tx    *tx.SQLRunner
}

func TestPostgresCertificateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCertificateSuite))
}

func (s *PostgresCertificateSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = certificate.NewPostgres(s.pg.DB)
	s.tx = tx.NewSQLRunner(s.pg.DB, 0)
}

func (s *PostgresCertificateSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func (s *PostgresCertificateSuite) TestRoundTripWithImages() {
	ctx := context.Background()
	c := newCert(s.T(), "24001-001", "24001001-001", 62)
	c.Variety = "Double Shaft"
	c.Images = []models.Image{{Kind: models.ImageObverse, Path: "24001-001/obv.jpg", Width: 800, Height: 800}}
	s.Require().NoError(s.store.Create(ctx, c))

	got, err := s.store.FindByDisplayNumber(ctx, "24001001-001")
	s.Require().NoError(err)
	s.Equal(c.ID, got.ID)
	s.Equal("Double Shaft", got.Variety)
	s.Require().Len(got.Images, 1)
	s.Equal(models.ImageObverse, got.Images[0].Kind)
	s.Equal(c.ID, got.Images[0].CertID)
}

func (s *PostgresCertificateSuite) TestUniqueViolationsNameTheField() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newCert(s.T(), "24001-001", "24001001-001", 62)))

	s.Equal("serial_number", usedField(s.store.Create(ctx, newCert(s.T(), "24001-001", "", 62))))
	s.Equal("display_number", usedField(s.store.Create(ctx, newCert(s.T(), "24001-002", "24001001-001", 62))))
}

func (s *PostgresCertificateSuite) TestUpdateAndSupersession() {
	ctx := context.Background()
	old := newCert(s.T(), "24001-001", "", 62)
	replacement := newCert(s.T(), "24001-002", "", 63)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, old); err != nil {
			return err
		}
		if err := s.store.Create(ctx, replacement); err != nil {
			return err
		}
		locked, err := s.store.FindByIDForUpdate(ctx, old.ID)
		if err != nil {
			return err
		}
		locked.Status = models.StatusReslabbed
		locked.SupersededBy = &replacement.ID
		return s.store.Update(ctx, locked)
	})
	s.Require().NoError(err)

	links, err := s.store.ListLinks(ctx)
	s.Require().NoError(err)
	s.Require().Len(links, 2)
	s.Equal(models.StatusReslabbed, links[0].Status)
	s.Equal(replacement.ID, *links[0].SupersededBy)

	counts, err := s.store.CountBuckets(ctx)
	s.Require().NoError(err)
	s.Equal(map[string]int{"1-pond/MS/1892/63": 1}, stringKeys(counts), "reslabbed certificates are not counted")
}

func (s *PostgresCertificateSuite) TestRollbackDiscardsWrites() {
	ctx := context.Background()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, newCert(s.T(), "24001-001", "", 62)); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.FindBySerial(ctx, "24001-001")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresCertificateSuite) TestExistingSerialsAndDetach() {
	ctx := context.Background()
	consignments := consignmentstore.NewPostgres(s.pg.DB)
	cons, err := consignmentmodels.NewConsignment("24001", consignmentmodels.PedigreeNone, "", now)
	s.Require().NoError(err)
	s.Require().NoError(consignments.CreateConsignment(ctx, cons))

	c := newCert(s.T(), "24001-001", "", 62)
	c.ConsignmentID = &cons.ID
	s.Require().NoError(s.store.Create(ctx, c))

	existing, err := s.store.ExistingSerials(ctx, []string{"24001-001", "24001-002"})
	s.Require().NoError(err)
	s.Equal(map[string]bool{"24001-001": true}, existing)

	n, err := s.store.DetachConsignment(ctx, cons.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Nil(got.ConsignmentID)
}
