package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certregistry/internal/coin"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pond(grade int) coin.Detail {
	return coin.Detail{
		Denomination:     "1 Pond",
		DenominationSlug: "1-pond",
		Country:          "ZAR",
		Year:             1892,
		Strike:           coin.StrikeMS,
		GradeText:        "MS",
		GradeNum:         grade,
	}
}

func TestTransitionTable(t *testing.T) {
	type outcome int
	const (
		reject outcome = iota
		apply
		noop
	)
	want := map[Status]map[Status]outcome{
		StatusPending:   {StatusPending: reject, StatusVerified: apply, StatusReslabbed: reject, StatusRevoked: apply},
		StatusVerified:  {StatusPending: reject, StatusVerified: noop, StatusReslabbed: apply, StatusRevoked: apply},
		StatusReslabbed: {StatusPending: reject, StatusVerified: reject, StatusReslabbed: reject, StatusRevoked: apply},
		StatusRevoked:   {StatusPending: reject, StatusVerified: reject, StatusReslabbed: reject, StatusRevoked: noop},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				c := &Certificate{Status: from}
				changed, err := c.CanTransition(to)
				switch want[from][to] {
				case apply:
					require.NoError(t, err)
					assert.True(t, changed)
				case noop:
					require.NoError(t, err)
					assert.False(t, changed)
				case reject:
					require.Error(t, err)
					assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
					assert.Equal(t, from, c.Status, "rejected transition must not mutate")
				}
			})
		}
	}
}

func TestNewCertificate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		c, err := NewCertificate("C100-001", "12345678-001", pond(64), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, c.Status)
		assert.False(t, c.ID.IsNil())
		assert.Equal(t, "1-pond/MS/1892/64", c.BucketKey().String())
		assert.True(t, c.IsCounted())
	})

	t.Run("display number is optional", func(t *testing.T) {
		_, err := NewCertificate("C100-001", "", pond(64), now)
		require.NoError(t, err)
	})

	tests := []struct {
		name    string
		serial  string
		display string
		detail  coin.Detail
		code    dErrors.Code
	}{
		{"missing serial", "", "", pond(64), dErrors.CodeInvariantViolation},
		{"bad display number", "C100-001", "123-456", pond(64), dErrors.CodeValidation},
		{"grade too high", "C100-001", "", pond(71), dErrors.CodeInvariantViolation},
		{"grade zero", "C100-001", "", pond(0), dErrors.CodeInvariantViolation},
		{"bad strike", "C100-001", "", func() coin.Detail { d := pond(64); d.Strike = "XX"; return d }(), dErrors.CodeInvariantViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCertificate(tt.serial, tt.display, tt.detail, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestApplyTransition(t *testing.T) {
	c, err := NewCertificate("C100-001", "", pond(65), now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	c.ApplyTransition(StatusVerified, nil, later)
	require.NotNil(t, c.VerifiedAt)
	assert.Equal(t, later, *c.VerifiedAt)
	require.NoError(t, c.Validate())

	newID := id.NewCertificateID()
	c.ApplyTransition(StatusReslabbed, &newID, later)
	assert.Equal(t, &newID, c.SupersededBy)
	require.NoError(t, c.Validate())
	assert.False(t, c.IsCounted())
}

func TestValidate_Supersession(t *testing.T) {
	c, err := NewCertificate("C100-001", "", pond(65), now)
	require.NoError(t, err)

	c.Status = StatusReslabbed
	assert.Error(t, c.Validate(), "reslabbed without superseded_by")

	self := c.ID
	c.SupersededBy = &self
	assert.Error(t, c.Validate(), "self supersession")

	c.Status = StatusVerified
	other := id.NewCertificateID()
	c.SupersededBy = &other
	assert.Error(t, c.Validate(), "superseded_by on a verified cert")
}

func TestGradeAndRenumberGuards(t *testing.T) {
	c, err := NewCertificate("C100-001", "", pond(65), now)
	require.NoError(t, err)

	require.NoError(t, c.CanReviseGrade())
	require.NoError(t, c.CanRenumber("2019-0001-042"))
	assert.True(t, dErrors.HasCode(c.CanRenumber("bogus"), dErrors.CodeValidation))

	c.Status = StatusRevoked
	assert.True(t, dErrors.HasCode(c.CanReviseGrade(), dErrors.CodeInvalidTransition))
	assert.True(t, dErrors.HasCode(c.CanRenumber("2019-0001-042"), dErrors.CodeInvalidTransition))
}

func TestClone(t *testing.T) {
	c, err := NewCertificate("C100-001", "", pond(65), now)
	require.NoError(t, err)
	c.Images = []Image{{Kind: ImageObverse, Path: "a.jpg"}}
	c.ApplyTransition(StatusVerified, nil, now)

	cp := c.Clone()
	cp.Images[0].Path = "b.jpg"
	*cp.VerifiedAt = now.Add(time.Hour)

	assert.Equal(t, "a.jpg", c.Images[0].Path)
	assert.Equal(t, now, *c.VerifiedAt)
}

func TestTransitionEvent(t *testing.T) {
	typ, ok := TransitionEvent(StatusVerified)
	assert.True(t, ok)
	assert.Equal(t, EventSlabbed, typ)
	typ, _ = TransitionEvent(StatusReslabbed)
	assert.Equal(t, EventRevised, typ)
	_, ok = TransitionEvent(StatusPending)
	assert.False(t, ok)
}

func TestCreateRequest(t *testing.T) {
	t.Run("requires a serial source", func(t *testing.T) {
		r := CreateRequest{Grade: "MS64"}
		assert.True(t, dErrors.HasCode(r.Validate(), dErrors.CodeValidation))
	})

	t.Run("rejects bad images", func(t *testing.T) {
		r := CreateRequest{SerialNumber: "x-001", Images: []ImageInput{{Kind: "side", Path: "p"}}}
		assert.Error(t, r.Validate())
	})

	t.Run("descriptors split year and name", func(t *testing.T) {
		r := CreateRequest{YearAndName: "1892 1 Pond", Variety: "Double Shaft"}
		d := r.Descriptors()
		assert.Equal(t, "1892", d.Year)
		assert.Equal(t, "1 Pond", d.CoinName)
		assert.Equal(t, "Double Shaft", d.Addl1)
	})

	t.Run("notes collect extra label lines", func(t *testing.T) {
		var r CreateRequest
		d := r.Descriptors()
		d.Addl2, d.Addl3 = "Gold", "Ex Pretoria"
		r.ApplyDescriptors(d)
		assert.Equal(t, "Gold; Ex Pretoria", r.Notes)
	})
}
