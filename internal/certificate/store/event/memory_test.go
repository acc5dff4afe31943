package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
)

func TestInMemoryHistory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	certID := id.NewCertificateID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, models.NewEvent(certID, models.EventCreated, "grader-1", nil, at)))
	restore := s.Snapshot()
	require.NoError(t, s.Append(ctx, models.NewEvent(certID, models.EventSlabbed, "grader-1", nil, at.Add(time.Minute))))

	events, err := s.ListByCert(ctx, certID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventCreated, events[0].Type)
	assert.Equal(t, models.EventSlabbed, events[1].Type)

	restore()
	events, err = s.ListByCert(ctx, certID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	none, err := s.ListByCert(ctx, id.NewCertificateID())
	require.NoError(t, err)
	assert.Empty(t, none)
}
