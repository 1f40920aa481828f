package parse

import (
	"strconv"
	"strings"

	"github.com/andrewchambers/cdecl/cpp"
)

/*
   Integer constant expressions, as found in array dimensions, bitfield
   widths and enumerator values.

   expression may contain:

   Integer constants, with or without u/l suffixes.

   Character constants, which are interpreted as they would be in normal code.

   Enumerator names defined earlier in the session.

   Arithmetic, bitwise, relational and logical operators, unary - + ! ~,
   parentheses and the ternary operator.
*/

func (p *parser) parseConstExpr() int64 {
	return p.parseConstTernary()
}

func (p *parser) parseConstTernary() int64 {
	cond := p.parseConstBinop(0)
	if p.curt.Kind != '?' {
		return cond
	}
	p.next()
	a := p.parseConstExpr()
	p.expect(':')
	b := p.parseConstTernary()
	if cond != 0 {
		return a
	}
	return b
}

func getPrec(k cpp.TokenKind) int {
	switch k {
	case '*', '%', '/':
		return 10
	case '+', '-':
		return 9
	case cpp.SHR, cpp.SHL:
		return 8
	case '<', '>', cpp.GEQ, cpp.LEQ:
		return 7
	case cpp.EQL, cpp.NEQ:
		return 6
	case '&':
		return 5
	case '^':
		return 4
	case '|':
		return 3
	case cpp.LAND:
		return 2
	case cpp.LOR:
		return 1
	}
	return -1
}

// This is the precedence climbing algorithm, simplified because
// all the operators are left associative.
func (p *parser) parseConstBinop(prec int) int64 {
	l := p.parseConstAtom()
	for {
		op := p.curt
		pr := getPrec(op.Kind)
		if pr == -1 || pr < prec {
			return l
		}
		p.next()
		rpos := p.curt.Pos
		r := p.parseConstBinop(pr + 1)
		l = p.evalConstBinop(op.Kind, l, r, rpos)
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *parser) evalConstBinop(k cpp.TokenKind, l, r int64, rpos cpp.FilePos) int64 {
	switch k {
	case cpp.LOR:
		return b2i(l != 0 || r != 0)
	case cpp.LAND:
		return b2i(l != 0 && r != 0)
	case '|':
		return l | r
	case '^':
		return l ^ r
	case '&':
		return l & r
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case cpp.SHR:
		return l >> uint64(r)
	case cpp.SHL:
		return l << uint64(r)
	case '/', '%':
		if r == 0 {
			p.errorPos(SyntaxError, "divide by zero in constant expression", rpos)
		}
		if k == '/' {
			return l / r
		}
		return l % r
	case cpp.EQL:
		return b2i(l == r)
	case cpp.NEQ:
		return b2i(l != r)
	case '<':
		return b2i(l < r)
	case '>':
		return b2i(l > r)
	case cpp.LEQ:
		return b2i(l <= r)
	case cpp.GEQ:
		return b2i(l >= r)
	}
	panic("internal error, bad constant operator")
}

func (p *parser) parseConstAtom() int64 {
	p.enter()
	defer p.leave()

	t := p.curt
	switch t.Kind {
	case '!':
		p.next()
		return b2i(p.parseConstAtom() == 0)
	case '~':
		p.next()
		return ^p.parseConstAtom()
	case '-':
		p.next()
		return -p.parseConstAtom()
	case '+':
		p.next()
		return p.parseConstAtom()
	case '(':
		p.next()
		v := p.parseConstExpr()
		p.expect(')')
		return v
	case cpp.INT_CONSTANT:
		p.next()
		v, err := parseIntConstant(t.Val)
		if err != nil {
			p.errorPos(SyntaxError, "bad integer constant %s", t.Pos, t.Val)
		}
		return v
	case cpp.CHAR_CONSTANT:
		p.next()
		v, err := parseCharConstant(t.Val)
		if err != nil {
			p.errorPos(SyntaxError, "bad character constant %s", t.Pos, t.Val)
		}
		return v
	case cpp.IDENT:
		p.next()
		v, ok := p.s.enums[t.Val]
		if !ok {
			p.errorPos(SyntaxError, "%s is not an integer constant", t.Pos, t.Val)
		}
		return v
	}
	p.errorPos(SyntaxError, "expected constant expression but got %s", t.Pos, t.Kind)
	panic("unreachable")
}

func parseIntConstant(s string) (int64, error) {
	s = strings.TrimRight(s, "uUlL")
	v, err := strconv.ParseUint(s, 0, 64)
	return int64(v), err
}

func parseCharConstant(s string) (int64, error) {
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, strconv.ErrSyntax
	}
	r, _, tail, err := strconv.UnquoteChar(s[1:len(s)-1], '\'')
	if err != nil {
		return 0, err
	}
	if tail != "" {
		return 0, strconv.ErrSyntax
	}
	// Plain char is signed on the supported targets.
	return int64(int8(r)), nil
}
