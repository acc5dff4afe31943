// Package models defines population buckets and standing.
package models

import "fmt"

// BucketKey identifies one population bucket.
type BucketKey struct {
	Slug     string `json:"denomination_slug"`
	Strike   string `json:"strike"`
	Year     int    `json:"year"`
	GradeNum int    `json:"grade_num"`
}

// Series drops the grade, naming the group Population reports on.
func (k BucketKey) Series() SeriesKey {
	return SeriesKey{Slug: k.Slug, Strike: k.Strike, Year: k.Year}
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", k.Slug, k.Strike, k.Year, k.GradeNum)
}

// SeriesKey identifies every bucket of one denomination, strike and year.
type SeriesKey struct {
	Slug   string `json:"denomination_slug"`
	Strike string `json:"strike"`
	Year   int    `json:"year"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Slug, k.Strike, k.Year)
}

// GradeCount is one row of a population report.
type GradeCount struct {
	GradeNum int `json:"grade_num"`
	Count    int `json:"count"`
}

// Standing places one certificate within its series.
type Standing struct {
	Key       BucketKey `json:"key"`
	SameGrade int       `json:"same_grade_count"`
	Higher    int       `json:"higher_grade_count"`
	Total     int       `json:"total_in_denomination"`
	Message   string    `json:"message"`
}

// NewStanding computes a certificate's standing from its series counts.
// The certificate itself is excluded from SameGrade.
func NewStanding(key BucketKey, counts []GradeCount) Standing {
	s := Standing{Key: key}
	for _, c := range counts {
		s.Total += c.Count
		switch {
		case c.GradeNum == key.GradeNum:
			s.SameGrade = c.Count
		case c.GradeNum > key.GradeNum:
			s.Higher += c.Count
		}
	}
	if s.SameGrade > 0 {
		s.SameGrade--
	}

	switch {
	case s.Higher == 0 && s.SameGrade == 0:
		s.Message = "Stand Alone Finest Known"
	case s.Higher == 0:
		inGrade := s.SameGrade + 1
		s.Message = fmt.Sprintf("Finest Grade Known with %d %s in this grade", inGrade, coins(inGrade))
	default:
		s.Message = fmt.Sprintf("%d other %s in this grade, %d %s graded higher",
			s.SameGrade, coins(s.SameGrade), s.Higher, coins(s.Higher))
	}
	return s
}

func coins(n int) string {
	if n == 1 {
		return "coin"
	}
	return "coins"
}
