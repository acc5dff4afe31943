package certificate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certregistry/internal/certificate/models"
	"certregistry/internal/certificate/store/certificate"
	"certregistry/internal/coin"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/sentinel"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCert(t *testing.T, serial, display string, grade int) *models.Certificate {
	t.Helper()
	c, err := models.NewCertificate(serial, display, coin.Detail{
		Denomination:     "1 Pond",
		DenominationSlug: "1-pond",
		Country:          "ZAR",
		Year:             1892,
		Strike:           coin.StrikeMS,
		GradeText:        "MS",
		GradeNum:         grade,
	}, now)
	require.NoError(t, err)
	return c
}

func TestInMemoryUniqueness(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()

	a := newCert(t, "24001-001", "24001001-001", 62)
	require.NoError(t, s.Create(ctx, a))

	err := s.Create(ctx, newCert(t, "24001-001", "", 62))
	assert.Equal(t, "serial_number", usedField(err))

	err = s.Create(ctx, newCert(t, "24001-002", "24001001-001", 62))
	assert.Equal(t, "display_number", usedField(err))

	b := newCert(t, "24001-002", "", 63)
	require.NoError(t, s.Create(ctx, b))
	b.DisplayNumber = "24001001-001"
	assert.Equal(t, "display_number", usedField(s.Update(ctx, b)))
}

func TestInMemoryUpdateKeepsSerialAndIndexes(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()
	c := newCert(t, "24001-001", "24001001-001", 62)
	require.NoError(t, s.Create(ctx, c))

	c.SerialNumber = "99999-999"
	c.DisplayNumber = "24001001-002"
	require.NoError(t, s.Update(ctx, c))

	got, err := s.FindBySerial(ctx, "24001-001")
	require.NoError(t, err)
	assert.Equal(t, "24001-001", got.SerialNumber, "serial is immutable")

	_, err = s.FindByDisplayNumber(ctx, "24001001-001")
	require.ErrorIs(t, err, sentinel.ErrNotFound, "old display number is released")
	got, err = s.FindByDisplayNumber(ctx, "24001001-002")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()
	c := newCert(t, "24001-001", "", 62)
	require.NoError(t, s.Create(ctx, c))

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	got.GradeNum = 1

	again, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 62, again.GradeNum)
}

func TestInMemorySupersessionTargetMustExist(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()
	c := newCert(t, "24001-001", "", 62)
	require.NoError(t, s.Create(ctx, c))

	missing := id.NewCertificateID()
	c.Status = models.StatusReslabbed
	c.SupersededBy = &missing
	require.ErrorIs(t, s.Update(ctx, c), sentinel.ErrInvalidState)
}

func TestInMemoryQueries(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()
	consignmentID := id.NewConsignmentID()

	a := newCert(t, "24001-002", "", 62)
	a.ConsignmentID = &consignmentID
	b := newCert(t, "24001-001", "", 62)
	b.ConsignmentID = &consignmentID
	revoked := newCert(t, "24001-003", "", 64)
	revoked.Status = models.StatusRevoked
	for _, c := range []*models.Certificate{a, b, revoked} {
		require.NoError(t, s.Create(ctx, c))
	}

	existing, err := s.ExistingSerials(ctx, []string{"24001-001", "24001-009"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"24001-001": true}, existing)

	links, err := s.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "24001-001", links[0].SerialNumber)

	counts, err := s.CountBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1-pond/MS/1892/62": 2}, stringKeys(counts))

	n, err := s.DetachConsignment(ctx, consignmentID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ConsignmentID)
}

func TestInMemorySnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := certificate.NewInMemory()
	c := newCert(t, "24001-001", "", 62)
	require.NoError(t, s.Create(ctx, c))

	restore := s.Snapshot()
	c.GradeNum = 65
	require.NoError(t, s.Update(ctx, c))
	require.NoError(t, s.Create(ctx, newCert(t, "24001-002", "", 62)))
	restore()

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 62, got.GradeNum)
	_, err = s.FindBySerial(ctx, "24001-002")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func stringKeys[K interface {
	comparable
	String() string
}](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k.String()] = v
	}
	return out
}

func usedField(err error) string {
	field, _ := sentinel.UsedField(err)
	return field
}
