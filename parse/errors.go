package parse

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/andrewchambers/cdecl/cpp"
)

type ErrorKind int

const (
	SyntaxError ErrorKind = iota
	UnknownTypeName
	DuplicateTypedef
	Redefinition
	MalformedVariadic
)

// UnexpectedToken is the grammar violation reported by the declarator
// parser, it is the same class as SyntaxError.
const UnexpectedToken = SyntaxError

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case UnknownTypeName:
		return "unknown type name"
	case DuplicateTypedef:
		return "duplicate typedef"
	case Redefinition:
		return "redefinition"
	case MalformedVariadic:
		return "malformed variadic"
	}
	return "error"
}

// Error is returned by every parse entry point. It always carries the
// position of the offending token.
type Error struct {
	Kind ErrorKind
	Pos  cpp.FilePos
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s at %s", e.Kind, e.Msg, e.Pos)
}

func (e *Error) Position() cpp.FilePos { return e.Pos }

// IsKind reports whether err wraps a parse error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == k
	}
	return false
}

// fromTokenError converts a lexer or filter failure into a syntax error.
func fromTokenError(err error, pos cpp.FilePos) *Error {
	var loc cpp.ErrorLoc
	if errors.As(err, &loc) {
		return &Error{Kind: SyntaxError, Pos: loc.Pos, Msg: loc.Err.Error()}
	}
	return &Error{Kind: SyntaxError, Pos: pos, Msg: err.Error()}
}
