package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"

	censusmodels "certregistry/internal/census/models"
	censusservice "certregistry/internal/census/service"
	censusstore "certregistry/internal/census/store"
	"certregistry/internal/certificate/models"
	"certregistry/internal/certificate/service"
	certstore "certregistry/internal/certificate/store/certificate"
	eventstore "certregistry/internal/certificate/store/event"
	outboxstore "certregistry/internal/events/store"
	"certregistry/internal/labelkb"
	"certregistry/internal/platform/metrics"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	certs   *certstore.InMemory
	events  *eventstore.InMemory
	buckets *censusstore.InMemory
	outbox  *outboxstore.InMemory
	metrics *metrics.Metrics
	svc     *service.Service
	ctx     context.Context
	seq     int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.certs = certstore.NewInMemory()
	s.events = eventstore.NewInMemory()
	s.buckets = censusstore.NewInMemory()
	s.outbox = outboxstore.NewInMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.seq = 0

	runner := tx.NewMemoryRunner(s.certs, s.events, s.buckets, s.outbox)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	census, err := censusservice.New(s.buckets, runner, censusservice.WithLogger(logger))
	s.Require().NoError(err)

	idx, err := labelkb.NewIndex([]labelkb.Entry{{
		Key:      "ZAR 1892 1 Pond",
		Country:  "ZAR",
		Year:     "1892",
		CoinName: "1 Pond",
		Addl1:    "Double Shaft",
		Aliases:  []string{"kruger pond 1892"},
	}, {
		Key:          "1965 R1 Silver - English",
		Country:      "South Africa",
		Year:         "1965",
		CoinName:     "R1-S",
		SerialFormat: "R{consignment}-{seq}",
	}})
	s.Require().NoError(err)

	svc, err := service.New(s.certs, s.events, census, runner,
		service.WithLogger(logger),
		service.WithMetrics(s.metrics),
		service.WithOutbox(s.outbox),
		service.WithLabels(labelkb.NewRegistry(idx)),
		service.WithTracer(noop.NewTracerProvider().Tracer("certificate-test")),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) request(grade string) models.CreateRequest {
	s.seq++
	return models.CreateRequest{
		ConsignmentNumber: "C200",
		ItemSeq:           s.seq,
		Country:           "South Africa",
		YearAndName:       "1892 1 Pond",
		Grade:             grade,
	}
}

func (s *ServiceSuite) create(grade string) *models.Certificate {
	cert, err := s.svc.Create(s.ctx, s.request(grade), "grader-1")
	s.Require().NoError(err)
	return cert
}

func pondBucket(grade int) censusmodels.BucketKey {
	return censusmodels.BucketKey{Slug: "1-pond", Strike: "MS", Year: 1892, GradeNum: grade}
}

func (s *ServiceSuite) bucketCounts() map[censusmodels.BucketKey]int {
	all, err := s.buckets.All(s.ctx)
	s.Require().NoError(err)
	return all
}

func (s *ServiceSuite) eventTypes(certID id.CertificateID) []models.EventType {
	list, err := s.svc.Events(s.ctx, certID)
	s.Require().NoError(err)
	out := make([]models.EventType, 0, len(list))
	for _, e := range list {
		out = append(out, e.Type)
	}
	return out
}

func (s *ServiceSuite) TestNewRequiresDependencies() {
	runner := tx.NewMemoryRunner()
	census, _ := censusservice.New(censusstore.NewInMemory(), runner)
	_, err := service.New(nil, s.events, census, runner)
	s.Error(err)
	_, err = service.New(s.certs, nil, census, runner)
	s.Error(err)
	_, err = service.New(s.certs, s.events, nil, runner)
	s.Error(err)
	_, err = service.New(s.certs, s.events, census, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestCreate() {
	s.Run("derives serial and coin detail", func() {
		cert := s.create("MS 65")
		s.Equal("C200-001", cert.SerialNumber)
		s.Equal(models.StatusPending, cert.Status)
		s.Equal("1 Pond", cert.Denomination)
		s.Equal("ZAR", cert.Country, "pre-1903 issues are ZAR")
		s.Equal(65, cert.GradeNum)
		s.Equal(fixedNow, cert.CreatedAt)

		s.Equal([]models.EventType{models.EventCreated}, s.eventTypes(cert.ID))
		s.Equal(map[censusmodels.BucketKey]int{pondBucket(65): 1}, s.bucketCounts())
		backlog, _ := s.outbox.CountUnpublished(s.ctx)
		s.Equal(1, backlog)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CertificatesCreated))
	})

	s.Run("explicit serial and display number", func() {
		req := s.request("PF 63")
		req.SerialNumber = "X9-004"
		req.DisplayNumber = "12345678-004"
		req.Images = []models.ImageInput{{Kind: models.ImageObverse, Path: "/img/x9-004-obv.jpg"}}
		cert, err := s.svc.Create(s.ctx, req, "")
		s.Require().NoError(err)
		s.Equal("X9-004", cert.SerialNumber)
		s.Equal("PF", cert.Strike)

		found, err := s.svc.Lookup(s.ctx, "12345678-004")
		s.Require().NoError(err)
		s.Equal(cert.ID, found.ID)
		s.Len(found.Images, 1)

		list, _ := s.svc.Events(s.ctx, cert.ID)
		s.Equal("system", list[0].Actor)
	})

	s.Run("label key fills empty descriptors", func() {
		cert, err := s.svc.Create(s.ctx, models.CreateRequest{
			ConsignmentNumber: "C201",
			ItemSeq:           1,
			LabelKey:          "zar 1892 1 pond",
			Grade:             "AU 58",
		}, "grader-1")
		s.Require().NoError(err)
		s.Equal("ZAR", cert.Country)
		s.Equal(1892, cert.Year)
		s.Equal("Double Shaft", cert.Variety)
	})

	s.Run("label serial format overrides the derived serial", func() {
		cert, err := s.svc.Create(s.ctx, models.CreateRequest{
			ConsignmentNumber: "C202",
			ItemSeq:           4,
			LabelKey:          "1965 r1 silver - english",
			Grade:             "MS 63",
		}, "grader-1")
		s.Require().NoError(err)
		s.Equal("RC202-004", cert.SerialNumber)

		explicit, err := s.svc.Create(s.ctx, models.CreateRequest{
			SerialNumber: "C202-005",
			LabelKey:     "1965 r1 silver - english",
			Grade:        "MS 63",
		}, "grader-1")
		s.Require().NoError(err)
		s.Equal("C202-005", explicit.SerialNumber, "explicit serial wins")
	})

	s.Run("alias miss falls through to manual entry", func() {
		req := s.request("MS 62")
		req.LabelText = "something unknown"
		_, err := s.svc.Create(s.ctx, req, "grader-1")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestCreateValidation() {
	cases := map[string]func(r *models.CreateRequest){
		"missing grade":         func(r *models.CreateRequest) { r.Grade = "" },
		"grade out of range":    func(r *models.CreateRequest) { r.Grade = "MS 71" },
		"missing denomination":  func(r *models.CreateRequest) { r.YearAndName = "1892" },
		"bad display number":    func(r *models.CreateRequest) { r.DisplayNumber = "1999-0001-001" },
		"short display number":  func(r *models.CreateRequest) { r.DisplayNumber = "1234567-001" },
		"no serial source":      func(r *models.CreateRequest) { r.ConsignmentNumber = "" },
		"malformed serial":      func(r *models.CreateRequest) { r.SerialNumber = "no-suffix-x" },
		"unknown label key":     func(r *models.CreateRequest) { r.LabelKey = "nope" },
		"image without path":    func(r *models.CreateRequest) { r.Images = []models.ImageInput{{Kind: models.ImageSlab}} },
		"unknown image kind":    func(r *models.CreateRequest) { r.Images = []models.ImageInput{{Kind: "side", Path: "/a"}} },
		"non-positive item seq": func(r *models.CreateRequest) { r.ItemSeq = 0 },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			req := s.request("MS 65")
			mutate(&req)
			_, err := s.svc.Create(s.ctx, req, "grader-1")
			s.True(dErrors.Is(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	s.Empty(s.bucketCounts(), "nothing written")
	links, _ := s.certs.ListLinks(s.ctx)
	s.Empty(links)
}

func (s *ServiceSuite) TestCreateConflicts() {
	first := s.request("MS 65")
	first.DisplayNumber = "2019-0001-001"
	_, err := s.svc.Create(s.ctx, first, "grader-1")
	s.Require().NoError(err)

	s.Run("duplicate serial", func() {
		dup := first
		dup.DisplayNumber = ""
		_, err := s.svc.Create(s.ctx, dup, "grader-1")
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Equal("serial number already in use", dErrors.MessageOf(err))
	})

	s.Run("duplicate display number", func() {
		dup := s.request("MS 64")
		dup.DisplayNumber = "2019-0001-001"
		_, err := s.svc.Create(s.ctx, dup, "grader-1")
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Equal("display number already in use", dErrors.MessageOf(err))
	})

	s.Equal(map[censusmodels.BucketKey]int{pondBucket(65): 1}, s.bucketCounts(), "failed creates roll back the census")
}

func (s *ServiceSuite) TestConcurrentSameSerialCreate() {
	req := s.request("MS 65")
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.Create(s.ctx, req, fmt.Sprintf("grader-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case dErrors.Is(err, dErrors.CodeConflict):
			conflicts++
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, conflicts)
	s.Equal(map[censusmodels.BucketKey]int{pondBucket(65): 1}, s.bucketCounts())
}

// certIn returns a certificate driven into status through the service.
func (s *ServiceSuite) certIn(status models.Status) *models.Certificate {
	cert := s.create("MS 63")
	switch status {
	case models.StatusPending:
		return cert
	case models.StatusVerified:
		res, err := s.svc.Verify(s.ctx, cert.ID, "grader-1")
		s.Require().NoError(err)
		return res.Certificate
	case models.StatusReslabbed:
		_, err := s.svc.Verify(s.ctx, cert.ID, "grader-1")
		s.Require().NoError(err)
		old, _, err := s.svc.Reslab(s.ctx, cert.ID, s.request("MS 64"), "grader-1")
		s.Require().NoError(err)
		return old
	case models.StatusRevoked:
		res, err := s.svc.Revoke(s.ctx, cert.ID, "grader-1", "test")
		s.Require().NoError(err)
		return res.Certificate
	}
	s.FailNow("unknown status")
	return nil
}

func (s *ServiceSuite) TestTransitionTableConformance() {
	type outcome int
	const (
		changed outcome = iota
		noop
		invalid
	)
	expect := map[models.Status]map[models.Status]outcome{
		models.StatusPending:   {models.StatusPending: invalid, models.StatusVerified: changed, models.StatusReslabbed: invalid, models.StatusRevoked: changed},
		models.StatusVerified:  {models.StatusPending: invalid, models.StatusVerified: noop, models.StatusReslabbed: invalid, models.StatusRevoked: changed},
		models.StatusReslabbed: {models.StatusPending: invalid, models.StatusVerified: invalid, models.StatusReslabbed: invalid, models.StatusRevoked: changed},
		models.StatusRevoked:   {models.StatusPending: invalid, models.StatusVerified: invalid, models.StatusReslabbed: invalid, models.StatusRevoked: noop},
	}

	for _, from := range models.Statuses {
		for _, to := range models.Statuses {
			s.Run(fmt.Sprintf("%s to %s", from, to), func() {
				cert := s.certIn(from)
				before := s.eventTypes(cert.ID)

				res, err := s.svc.Transition(s.ctx, cert.ID, to, "grader-1", nil)
				after, getErr := s.svc.GetByID(s.ctx, cert.ID)
				s.Require().NoError(getErr)

				switch expect[from][to] {
				case changed:
					s.Require().NoError(err)
					s.True(res.Changed)
					s.Equal(to, after.Status)
					s.Len(s.eventTypes(cert.ID), len(before)+1)
				case noop:
					s.Require().NoError(err)
					s.False(res.Changed)
					s.Nil(res.Event)
					s.Equal(from, after.Status)
					s.Equal(before, s.eventTypes(cert.ID))
				case invalid:
					s.True(dErrors.Is(err, dErrors.CodeInvalidTransition), "got %v", err)
					s.Equal(from, after.Status, "state unchanged")
					s.Equal(before, s.eventTypes(cert.ID))
				}
			})
		}
	}
}

func (s *ServiceSuite) TestIdempotentRevoke() {
	cert := s.create("MS 65")
	first, err := s.svc.Revoke(s.ctx, cert.ID, "grader-1", "counterfeit")
	s.Require().NoError(err)
	s.True(first.Changed)
	s.Equal("counterfeit", first.Event.Meta["reason"])

	second, err := s.svc.Revoke(s.ctx, cert.ID, "grader-1", "counterfeit")
	s.Require().NoError(err)
	s.False(second.Changed)

	s.Equal([]models.EventType{models.EventCreated, models.EventRevoked}, s.eventTypes(cert.ID))
	s.Empty(s.bucketCounts(), "revoked certificates leave the census")
}

func (s *ServiceSuite) TestReslabScenario() {
	cert := s.create("MS 65")
	_, err := s.svc.Verify(s.ctx, cert.ID, "grader-1")
	s.Require().NoError(err)

	old, replacement, err := s.svc.Reslab(s.ctx, cert.ID, s.request("MS 66"), "grader-2")
	s.Require().NoError(err)

	s.Equal(models.StatusReslabbed, old.Status)
	s.Require().NotNil(old.SupersededBy)
	s.Equal(replacement.ID, *old.SupersededBy)
	s.Equal(models.StatusPending, replacement.Status)
	s.Equal(66, replacement.GradeNum)

	s.Equal(map[censusmodels.BucketKey]int{pondBucket(66): 1}, s.bucketCounts())
	s.Equal([]models.EventType{models.EventCreated, models.EventSlabbed, models.EventRevised}, s.eventTypes(old.ID))
	s.Equal([]models.EventType{models.EventCreated}, s.eventTypes(replacement.ID))

	violations, err := s.svc.CheckSupersession(s.ctx)
	s.Require().NoError(err)
	s.Empty(violations)

	s.Run("reslabbed certificates may only be revoked", func() {
		_, _, err := s.svc.Reslab(s.ctx, old.ID, s.request("MS 67"), "grader-2")
		s.True(dErrors.Is(err, dErrors.CodeInvalidTransition))
		_, err = s.svc.Verify(s.ctx, old.ID, "grader-2")
		s.True(dErrors.Is(err, dErrors.CodeInvalidTransition))

		res, err := s.svc.Revoke(s.ctx, old.ID, "grader-2", "slab destroyed")
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, res.Certificate.Status)
		s.Equal(map[censusmodels.BucketKey]int{pondBucket(66): 1}, s.bucketCounts(), "already uncounted")
	})
}

func (s *ServiceSuite) TestReslabRollsBack() {
	s.Run("pending certificates cannot be reslabbed", func() {
		cert := s.create("MS 65")
		_, _, err := s.svc.Reslab(s.ctx, cert.ID, s.request("MS 66"), "grader-1")
		s.True(dErrors.Is(err, dErrors.CodeInvalidTransition))
		s.Equal(map[censusmodels.BucketKey]int{pondBucket(65): 1}, s.bucketCounts(), "replacement not created")
	})

	s.Run("replacement conflict leaves the old certificate verified", func() {
		existing := s.create("MS 60")
		cert := s.certIn(models.StatusVerified)
		before := s.bucketCounts()

		req := s.request("MS 66")
		req.SerialNumber = existing.SerialNumber
		_, _, err := s.svc.Reslab(s.ctx, cert.ID, req, "grader-1")
		s.True(dErrors.Is(err, dErrors.CodeConflict))

		after, _ := s.svc.GetByID(s.ctx, cert.ID)
		s.Equal(models.StatusVerified, after.Status)
		s.Nil(after.SupersededBy)
		s.Equal(before, s.bucketCounts())
	})

	s.Run("unknown certificate", func() {
		_, _, err := s.svc.Reslab(s.ctx, id.NewCertificateID(), s.request("MS 66"), "grader-1")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestReviseGrade() {
	cert := s.create("MS 63")

	updated, err := s.svc.ReviseGrade(s.ctx, cert.ID, "MS 64", "grader-1")
	s.Require().NoError(err)
	s.Equal(64, updated.GradeNum)
	s.Equal(map[censusmodels.BucketKey]int{pondBucket(64): 1}, s.bucketCounts())

	list, _ := s.svc.Events(s.ctx, cert.ID)
	s.Require().Len(list, 2)
	s.Equal(models.EventRegraded, list[1].Type)
	s.Equal(63, list[1].Meta["old_grade_num"])

	_, err = s.svc.ReviseGrade(s.ctx, cert.ID, "MS 64", "grader-1")
	s.Require().NoError(err)
	s.Len(s.eventTypes(cert.ID), 2, "same grade is a no-op")

	_, err = s.svc.ReviseGrade(s.ctx, cert.ID, "MS 0", "grader-1")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.svc.Revoke(s.ctx, cert.ID, "grader-1", "")
	s.Require().NoError(err)
	_, err = s.svc.ReviseGrade(s.ctx, cert.ID, "MS 65", "grader-1")
	s.True(dErrors.Is(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestRenumber() {
	a := s.create("MS 63")
	b := s.create("MS 63")

	_, err := s.svc.Renumber(s.ctx, a.ID, "2020-0042-001", "grader-1")
	s.Require().NoError(err)

	_, err = s.svc.Renumber(s.ctx, b.ID, "2020-0042-001", "grader-1")
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.Equal("display number already in use", dErrors.MessageOf(err))

	_, err = s.svc.Renumber(s.ctx, b.ID, "42", "grader-1")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.svc.Renumber(s.ctx, a.ID, "87654321-001", "grader-1")
	s.Require().NoError(err)
	_, err = s.svc.GetByDisplayNumber(s.ctx, "2020-0042-001")
	s.True(dErrors.Is(err, dErrors.CodeNotFound), "old number released")

	s.Equal([]models.EventType{models.EventCreated, models.EventRenumbered, models.EventRenumbered}, s.eventTypes(a.ID))
}

func (s *ServiceSuite) TestLookup() {
	cert := s.create("MS 63")

	found, err := s.svc.Lookup(s.ctx, cert.SerialNumber)
	s.Require().NoError(err)
	s.Equal(cert.ID, found.ID)

	_, err = s.svc.Lookup(s.ctx, "12345678-999")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	_, err = s.svc.Lookup(s.ctx, "not a number")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.svc.GetByDisplayNumber(s.ctx, "2019-001-001")
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	_, err = s.svc.Events(s.ctx, id.NewCertificateID())
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestConcurrentCreateAndRevokeKeepsBucketsNonNegative() {
	certs := make([]*models.Certificate, 20)
	for i := range certs {
		certs[i] = s.create("MS 65")
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(c *models.Certificate) {
			defer wg.Done()
			_, _ = s.svc.Revoke(s.ctx, c.ID, "grader-1", "race")
		}(certs[i])
		go func(c *models.Certificate) {
			defer wg.Done()
			_, _ = s.svc.Revoke(s.ctx, c.ID, "grader-2", "race")
		}(certs[i])
		go func(seq int) {
			defer wg.Done()
			_, _ = s.svc.Create(s.ctx, models.CreateRequest{
				ConsignmentNumber: "C300", ItemSeq: seq, YearAndName: "1892 1 Pond", Grade: "MS 65",
			}, "grader-3")
		}(i + 1)
	}
	wg.Wait()

	s.Equal(map[censusmodels.BucketKey]int{pondBucket(65): 20}, s.bucketCounts())
	for _, c := range certs {
		s.Len(s.eventTypes(c.ID), 2, "exactly one revoke event")
	}
}
