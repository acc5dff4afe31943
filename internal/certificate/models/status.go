package models

// Status is a certificate's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusReslabbed Status = "reslabbed"
	StatusRevoked   Status = "revoked"
)

// Statuses lists every lifecycle state.
var Statuses = []Status{StatusPending, StatusVerified, StatusReslabbed, StatusRevoked}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusReslabbed, StatusRevoked:
		return true
	}
	return false
}

// IsCounted reports whether certificates in this state count towards the
// census.
func (s Status) IsCounted() bool {
	return s == StatusPending || s == StatusVerified
}

// allowed is the transition table. Revoked has no outgoing edges.
var allowed = map[Status]map[Status]bool{
	StatusPending:   {StatusVerified: true, StatusRevoked: true},
	StatusVerified:  {StatusReslabbed: true, StatusRevoked: true},
	StatusReslabbed: {StatusRevoked: true},
}

// CanTransitionTo reports whether the table has an edge s -> target.
func (s Status) CanTransitionTo(target Status) bool {
	return allowed[s][target]
}

// IsIdempotentRepeat reports whether asking for target while already in it
// is a successful no-op rather than an error.
func (s Status) IsIdempotentRepeat(target Status) bool {
	return s == target && (s == StatusVerified || s == StatusRevoked)
}
