package cpp

import (
	"fmt"
	"io"
	"strings"
)

// TokenStream is anything that hands out tokens one at a time.
// Once exhausted a stream keeps returning EOF tokens.
type TokenStream interface {
	Next() (*Token, error)
}

// Filter sits between the lexer and the parser. The input is expected to
// be preprocessed already, so the only directives it understands are
// #pragma and GCC line markers. #pragma pack survives as a PRAGMA_PACK
// token, other pragmas as PRAGMA tokens.
type Filter struct {
	ts TokenStream
}

func NewFilter(ts TokenStream) *Filter {
	return &Filter{ts: ts}
}

type filterBreakout struct {
	err error
}

func (f *Filter) next() *Token {
	t, err := f.ts.Next()
	if err != nil {
		panic(&filterBreakout{err})
	}
	return t
}

func (f *Filter) filterError(e string, pos FilePos) {
	panic(&filterBreakout{ErrWithLoc(fmt.Errorf("%s", e), pos)})
}

func (f *Filter) Next() (t *Token, err error) {
	defer func() {
		if e := recover(); e != nil {
			b := e.(*filterBreakout) // Will re-panic if not a breakout.
			t = &Token{Kind: ERROR}
			err = b.err
		}
	}()

	for {
		t = f.next()
		if t.Kind != DIRECTIVE {
			return t, nil
		}
		t = f.handleDirective(t)
		if t != nil {
			return t, nil
		}
	}
}

// readDirectiveLine returns the tokens up to the END_DIRECTIVE.
func (f *Filter) readDirectiveLine(dirTok *Token) []*Token {
	var line []*Token
	for {
		t := f.next()
		switch t.Kind {
		case END_DIRECTIVE:
			return line
		case EOF:
			f.filterError("end of file in directive", dirTok.Pos)
		}
		line = append(line, t)
	}
}

func (f *Filter) handleDirective(dirTok *Token) *Token {
	line := f.readDirectiveLine(dirTok)
	switch dirTok.Val {
	case "line":
		return nil
	case "pragma":
		if len(line) > 0 && line[0].Kind == IDENT && line[0].Val == "pack" {
			return &Token{Kind: PRAGMA_PACK, Val: f.packArgs(dirTok, line[1:]), Pos: dirTok.Pos}
		}
		return &Token{Kind: PRAGMA, Val: joinTokens(line), Pos: dirTok.Pos}
	default:
		f.filterError(fmt.Sprintf("unexpected directive #%s, input must be preprocessed", dirTok.Val), dirTok.Pos)
	}
	panic("unreachable")
}

// packArgs normalises the argument list of #pragma pack into
// "", "N", "push", "push,N" or "pop".
func (f *Filter) packArgs(dirTok *Token, args []*Token) string {
	if len(args) < 2 || args[0].Kind != LPAREN || args[len(args)-1].Kind != RPAREN {
		f.filterError("malformed #pragma pack", dirTok.Pos)
	}
	var parts []string
	for _, t := range args[1 : len(args)-1] {
		switch t.Kind {
		case COMMA:
		case INT_CONSTANT, IDENT:
			parts = append(parts, t.Val)
		default:
			f.filterError(fmt.Sprintf("unexpected %s in #pragma pack", t.Kind), t.Pos)
		}
	}
	if len(parts) > 0 && (parts[0] == "push" || parts[0] == "pop") {
		// An optional identifier label between push and the alignment is ignored.
		if len(parts) == 3 {
			parts = []string{parts[0], parts[2]}
		}
		if parts[0] == "pop" {
			parts = parts[:1]
		}
	}
	if len(parts) > 2 {
		f.filterError("too many arguments to #pragma pack", dirTok.Pos)
	}
	return strings.Join(parts, ",")
}

func joinTokens(toks []*Token) string {
	vals := make([]string, 0, len(toks))
	for _, t := range toks {
		vals = append(vals, t.Val)
	}
	return strings.Join(vals, " ")
}

// TokenList is a TokenStream over an in memory slice of tokens.
type TokenList struct {
	toks []*Token
	idx  int
}

func NewTokenList(toks []*Token) *TokenList {
	return &TokenList{toks: toks}
}

func (tl *TokenList) Next() (*Token, error) {
	if tl.idx < len(tl.toks) {
		t := tl.toks[tl.idx]
		tl.idx += 1
		if t.Kind == EOF {
			tl.idx = len(tl.toks)
		}
		return t, nil
	}
	eof := &Token{Kind: EOF}
	if len(tl.toks) != 0 {
		eof = tl.toks[len(tl.toks)-1].copy()
		eof.Kind = EOF
		eof.Val = ""
	}
	return eof, nil
}

// Tokenize lexes and filters src completely. The returned slice ends
// with the EOF token.
func Tokenize(name string, src io.Reader) ([]*Token, error) {
	ts := NewFilter(Lex(name, src))
	var toks []*Token
	for {
		t, err := ts.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks, nil
		}
	}
}
