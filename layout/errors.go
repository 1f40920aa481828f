package layout

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"github.com/andrewchambers/cdecl/cpp"
)

type ErrorKind int

const (
	Overflow ErrorKind = iota
	IncompleteType
	InvalidBitfield
)

func (k ErrorKind) String() string {
	switch k {
	case Overflow:
		return "overflow"
	case IncompleteType:
		return "incomplete type"
	case InvalidBitfield:
		return "invalid bitfield"
	}
	return "layout error"
}

type Error struct {
	Kind ErrorKind
	Pos  cpp.FilePos
	Msg  string
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s at %s", e.Kind, e.Msg, e.Pos)
}

func (e *Error) Position() cpp.FilePos { return e.Pos }

func IsKind(err error, k ErrorKind) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind == k
	}
	return false
}

func newError(kind ErrorKind, pos cpp.FilePos, m string, vals ...interface{}) error {
	var err error = &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(m, vals...)}
	if env.Bool("CCDEBUG") {
		err = errors.WithStack(err)
	}
	return err
}

// atPos fills in the position of a layout error raised without one.
func atPos(err error, pos cpp.FilePos) error {
	var lerr *Error
	if errors.As(err, &lerr) && lerr.Pos.Line == 0 {
		lerr.Pos = pos
	}
	return err
}
