package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into coded domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrAlreadyUsed: a unique identifier (serial, display number, item number,
//     consignment number, label key) is already taken
//   - ErrInvalidState: row is in the wrong state for the requested write
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

// UniqueViolation identifies which unique identifier collided. Stores wrap
// ErrAlreadyUsed with it so services can report "display number already in
// use" separately from a duplicate serial.
type UniqueViolation struct {
	Field string
}

func (e *UniqueViolation) Error() string {
	return e.Field + " already used"
}

func (e *UniqueViolation) Unwrap() error {
	return ErrAlreadyUsed
}

// AlreadyUsed returns an ErrAlreadyUsed-compatible error naming field.
func AlreadyUsed(field string) error {
	return &UniqueViolation{Field: field}
}

// UsedField returns the colliding field when err is a UniqueViolation.
func UsedField(err error) (string, bool) {
	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv.Field, true
	}
	return "", false
}
