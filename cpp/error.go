package cpp

import "fmt"

type ErrorLoc struct {
	Err error
	Pos FilePos
}

func ErrWithLoc(e error, pos FilePos) error {
	return ErrorLoc{
		Err: e,
		Pos: pos,
	}
}

func (e ErrorLoc) Error() string {
	return fmt.Sprintf("%s at %s", e.Err, e.Pos)
}

func (e ErrorLoc) Unwrap() error { return e.Err }

// Position is the source location the error is reported against.
func (e ErrorLoc) Position() FilePos { return e.Pos }

// Positioned is implemented by every error in this module that carries
// a source location.
type Positioned interface {
	error
	Position() FilePos
}
