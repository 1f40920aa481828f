package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xyproto/env/v2"

	"github.com/andrewchambers/cdecl/cpp"
)

const DefaultMaxDepth = 256

// Session holds the state shared by every declaration of one translation
// unit. A session must not be used from more than one goroutine.
type Session struct {
	Typedefs *TypedefEnv
	Tags     *TagTable
	Log      logrus.FieldLogger
	// Bound on declarator and expression nesting.
	MaxDepth int

	enums     enumConsts
	pack      int
	packStack []int
	anonCount int
	// One parser per stream so that tokens read ahead are not lost when
	// the caller alternates between streams.
	parsers map[cpp.TokenStream]*parser
}

func NewSession() *Session {
	log := logrus.New()
	log.Out = io.Discard
	s := &Session{
		Typedefs: NewTypedefEnv(nil),
		Tags:     NewTagTable(),
		Log:      log,
		MaxDepth: env.Int("CDECL_MAX_DEPTH", DefaultMaxDepth),
		enums:    make(enumConsts),
	}
	s.defineBuiltins()
	return s
}

func (s *Session) defineBuiltins() {
	vaTag := &AggregateDef{
		Kind: StructTag,
		Tag:  "__va_list_tag",
		Fields: []Field{
			{Name: "gp_offset", Type: CUInt},
			{Name: "fp_offset", Type: CUInt},
			{Name: "overflow_arg_area", Type: &Ptr{CVoid}},
			{Name: "reg_save_area", Type: &Ptr{CVoid}},
		},
	}
	_ = s.Tags.Define(vaTag)
	_ = s.Typedefs.Bind("__builtin_va_list", &Array{MemberType: vaTag.Type(), Dim: 1})
}

// Pack is the alignment cap currently in effect, 0 if none.
func (s *Session) Pack() int { return s.pack }

// EnumConstant returns the value of a previously parsed enumerator.
func (s *Session) EnumConstant(name string) (int64, bool) {
	v, ok := s.enums[name]
	return v, ok
}

func (s *Session) anonTag() string {
	s.anonCount += 1
	return fmt.Sprintf("__anon%d", s.anonCount)
}

func (s *Session) parserFor(ts cpp.TokenStream) *parser {
	if s.parsers == nil {
		s.parsers = make(map[cpp.TokenStream]*parser)
	}
	p, ok := s.parsers[ts]
	if !ok {
		p = &parser{s: s, ts: ts}
		s.parsers[ts] = p
	}
	return p
}

// ParseDeclaration parses a single declarator over base. If base is nil
// the declaration specifiers are read from ts first. The declarator may
// be abstract, in which case name is empty. An optional trailing ';' is
// accepted, anything after it is an error.
func (s *Session) ParseDeclaration(ts cpp.TokenStream, base CType) (string, CType, error) {
	p := &parser{s: s, ts: ts}
	var name string
	var ty CType
	err := p.run(func() {
		if base == nil {
			base = p.parseDeclarationSpecifiers(false).ty
		}
		d := p.parseDeclarator(true)
		name, ty = d.name, d.wrap(base)
		if p.curt.Kind == ';' {
			p.next()
		}
		if p.curt.Kind != cpp.EOF {
			p.errorPos(SyntaxError, "unexpected %s after declarator", p.curt.Pos, p.curt.Kind)
		}
	})
	if err != nil {
		return "", nil, err
	}
	return name, ty, nil
}

// ParseTypeName parses a type name such as "uint32 (*)(int, uint32)".
func (s *Session) ParseTypeName(ts cpp.TokenStream) (CType, error) {
	p := &parser{s: s, ts: ts}
	var ty CType
	err := p.run(func() {
		base := p.parseDeclarationSpecifiers(false).ty
		d := p.parseDeclarator(true)
		if d.name != "" {
			p.errorPos(SyntaxError, "unexpected identifier %s in type name", d.pos, d.name)
		}
		ty = d.wrap(base)
		if p.curt.Kind != cpp.EOF {
			p.errorPos(SyntaxError, "unexpected %s after type name", p.curt.Pos, p.curt.Kind)
		}
	})
	if err != nil {
		return nil, err
	}
	return ty, nil
}

// Next parses the next external declaration from ts. It returns io.EOF
// once the stream is exhausted. After an error the caller may call Resync
// and continue.
func (s *Session) Next(ts cpp.TokenStream) (*ExternalDecl, error) {
	p := s.parserFor(ts)
	var ed *ExternalDecl
	err := p.run(func() {
		for p.curt.Kind == ';' {
			p.next()
		}
		if p.curt.Kind == cpp.EOF {
			return
		}
		ed = p.parseExternalDecl()
	})
	if err != nil {
		return nil, err
	}
	if ed == nil {
		return nil, io.EOF
	}
	return ed, nil
}

// Resync skips the rest of a declaration that failed to parse. It stops
// after the next ';' outside of braces, or after the '}' closing the
// current body.
func (s *Session) Resync(ts cpp.TokenStream) error {
	p := s.parserFor(ts)
	return p.run(func() {
		depth := 0
		for {
			switch p.curt.Kind {
			case cpp.EOF:
				return
			case '{':
				depth += 1
			case '}':
				depth -= 1
				if depth <= 0 {
					p.next()
					if p.curt.Kind == ';' {
						p.next()
					}
					return
				}
			case ';':
				if depth <= 0 {
					p.next()
					return
				}
			}
			p.next()
		}
	})
}

// ParseTranslationUnit parses ts to the end, stopping at the first error.
func (s *Session) ParseTranslationUnit(ts cpp.TokenStream) (*TranslationUnit, error) {
	tu := &TranslationUnit{Session: s}
	for {
		ed, err := s.Next(ts)
		if err == io.EOF {
			return tu, nil
		}
		if err != nil {
			return nil, err
		}
		tu.Decls = append(tu.Decls, ed)
		if ed.Pragma != nil {
			tu.Pragmas = append(tu.Pragmas, ed.Pragma)
		}
	}
}

func Parse(ts cpp.TokenStream) (*TranslationUnit, error) {
	return NewSession().ParseTranslationUnit(ts)
}

type parser struct {
	s           *Session
	ts          cpp.TokenStream
	curt, nextt *cpp.Token
	depth       int
	// Aggregates defined by the current external declaration.
	aggs []*AggregateDef
}

type parseErrorBreakOut struct {
	err error
}

func (p *parser) run(f func()) (errRet error) {
	defer func() {
		if e := recover(); e != nil {
			peb := e.(parseErrorBreakOut) // Will re-panic if not a breakout.
			errRet = peb.err
		}
	}()
	p.depth = 0
	for p.curt == nil {
		p.next()
	}
	f()
	return nil
}

func (p *parser) errorPos(kind ErrorKind, m string, pos cpp.FilePos, vals ...interface{}) {
	var err error = &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(m, vals...)}
	if env.Bool("CCDEBUG") {
		err = errors.WithStack(err)
	}
	panic(parseErrorBreakOut{err})
}

func (p *parser) expect(k cpp.TokenKind) {
	if p.curt.Kind != k {
		p.errorPos(SyntaxError, "expected %s got %s", p.curt.Pos, k, p.curt.Kind)
	}
	p.next()
}

func (p *parser) next() {
	p.curt = p.nextt
	t, err := p.ts.Next()
	p.nextt = t
	if err != nil {
		var pos cpp.FilePos
		if p.curt != nil {
			pos = p.curt.Pos
		}
		var perr error = fromTokenError(err, pos)
		if env.Bool("CCDEBUG") {
			perr = errors.WithStack(perr)
		}
		panic(parseErrorBreakOut{perr})
	}
}

func (p *parser) enter() {
	p.depth += 1
	if p.s.MaxDepth > 0 && p.depth > p.s.MaxDepth {
		p.errorPos(SyntaxError, "nesting exceeds the limit of %d", p.curt.Pos, p.s.MaxDepth)
	}
}

func (p *parser) leave() {
	p.depth -= 1
}

// skipGNUExtensions consumes __attribute__((...)), __asm__(...) and
// __extension__, which show up in preprocessed system headers.
func (p *parser) skipGNUExtensions() {
	for p.curt.Kind == cpp.IDENT {
		switch p.curt.Val {
		case "__extension__":
			p.next()
		case "__attribute__", "__attribute", "__asm__", "__asm", "asm":
			p.next()
			p.skipBalanced('(', ')')
		default:
			return
		}
	}
}

func (p *parser) skipBalanced(open, close cpp.TokenKind) []*cpp.Token {
	start := p.curt
	p.expect(open)
	toks := []*cpp.Token{start}
	depth := 1
	for depth > 0 {
		switch p.curt.Kind {
		case cpp.EOF:
			p.errorPos(SyntaxError, "unexpected end of file, unclosed %s", start.Pos, open)
		case open:
			depth += 1
		case close:
			depth -= 1
		}
		toks = append(toks, p.curt)
		p.next()
	}
	return toks
}

func (p *parser) parseExternalDecl() *ExternalDecl {
	p.aggs = nil
	switch p.curt.Kind {
	case cpp.PRAGMA_PACK, cpp.PRAGMA:
		return p.parsePragma()
	}
	p.skipGNUExtensions()
	specs := p.parseDeclarationSpecifiers(true)
	ed := &ExternalDecl{Pos: specs.pos, SClass: specs.sclass}
	if p.curt.Kind == ';' {
		p.next()
		ed.Aggregates = p.aggs
		return ed
	}
	for first := true; ; first = false {
		d := p.parseDeclarator(false)
		decl := &Declaration{
			Pos:       d.pos,
			Name:      d.name,
			Type:      d.wrap(specs.ty),
			SClass:    specs.sclass,
			Inline:    specs.inline,
			IsTypedef: specs.sclass == SC_TYPEDEF,
		}
		p.skipGNUExtensions()
		if first && p.curt.Kind == '{' {
			if !IsFunctionType(decl.Type) {
				p.errorPos(SyntaxError, "expected '=', ',' or ';' after %s", p.curt.Pos, decl.Name)
			}
			if decl.IsTypedef {
				p.errorPos(SyntaxError, "function definition declared typedef", decl.Pos)
			}
			decl.IsFunctionDefinition = true
			p.declare(decl)
			p.skipBalanced('{', '}')
			ed.Decls = append(ed.Decls, decl)
			ed.Aggregates = p.aggs
			return ed
		}
		if p.curt.Kind == '=' {
			if decl.IsTypedef {
				p.errorPos(SyntaxError, "typedef %s is initialized", p.curt.Pos, decl.Name)
			}
			p.next()
			decl.Init = p.parseInitializer()
		}
		p.declare(decl)
		ed.Decls = append(ed.Decls, decl)
		if p.curt.Kind != ',' {
			break
		}
		p.next()
	}
	if p.curt.Kind != ';' {
		p.errorPos(SyntaxError, "expected '=', ',' or ';' but got %s", p.curt.Pos, p.curt.Kind)
	}
	p.next()
	ed.Aggregates = p.aggs
	return ed
}

func (p *parser) declare(decl *Declaration) {
	if !decl.IsTypedef {
		if IsVoid(decl.Type) && decl.SClass != SC_EXTERN {
			p.errorPos(SyntaxError, "variable %s declared void", decl.Pos, decl.Name)
		}
		return
	}
	err := p.s.Typedefs.Bind(decl.Name, decl.Type)
	if err != nil {
		p.errorPos(DuplicateTypedef, "%s", decl.Pos, err)
	}
	p.s.Log.WithFields(logrus.Fields{
		"name": decl.Name,
		"type": decl.Type.String(),
		"pos":  decl.Pos.String(),
	}).Debug("typedef bound")
}

// parseInitializer returns the source text of an initializer, stopping at
// the ',' or ';' that ends it.
func (p *parser) parseInitializer() string {
	var toks []*cpp.Token
	depth := 0
	for {
		switch p.curt.Kind {
		case cpp.EOF:
			p.errorPos(SyntaxError, "unexpected end of file in initializer", p.curt.Pos)
		case '(', '[', '{':
			depth += 1
		case ')', ']', '}':
			depth -= 1
			if depth < 0 {
				p.errorPos(SyntaxError, "unbalanced %s in initializer", p.curt.Pos, p.curt.Kind)
			}
		case ',', ';':
			if depth == 0 {
				if len(toks) == 0 {
					p.errorPos(SyntaxError, "expected expression before %s", p.curt.Pos, p.curt.Kind)
				}
				return JoinTokens(toks)
			}
		}
		toks = append(toks, p.curt)
		p.next()
	}
}

func isWordLike(t *cpp.Token) bool {
	switch t.Kind {
	case cpp.IDENT, cpp.INT_CONSTANT, cpp.FLOAT_CONSTANT, cpp.CHAR_CONSTANT, cpp.STRING:
		return true
	}
	return cpp.IsKeyword(t.Val)
}

// JoinTokens rebuilds source text from tokens, keeping a single space
// wherever the original had whitespace.
func JoinTokens(toks []*cpp.Token) string {
	var sb strings.Builder
	for i, t := range toks {
		if i > 0 {
			prev := toks[i-1]
			gap := t.Pos.Offset > prev.Pos.Offset+len(prev.Val)
			if gap || (isWordLike(prev) && isWordLike(t)) {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.Val)
	}
	return sb.String()
}

func (p *parser) parsePragma() *ExternalDecl {
	t := p.curt
	p.next()
	pr := &Pragma{Pos: t.Pos, Text: t.Val}
	if t.Kind == cpp.PRAGMA_PACK {
		pr.Text = "pack(" + t.Val + ")"
		pr.Pack = p.packDirective(t)
		p.applyPack(pr.Pack, t.Pos)
	} else {
		p.s.Log.WithField("pos", t.Pos.String()).Debugf("uninterpreted #pragma %s", t.Val)
	}
	return &ExternalDecl{Pos: t.Pos, Pragma: pr}
}

func (p *parser) packDirective(t *cpp.Token) *PackDirective {
	args := strings.Split(t.Val, ",")
	d := &PackDirective{}
	switch args[0] {
	case "":
		d.Action = PackReset
		return d
	case "pop":
		d.Action = PackPop
		return d
	case "push":
		d.Action = PackPush
		if len(args) == 1 {
			return d
		}
		args = args[1:]
	default:
		d.Action = PackSet
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || n > 16 || n&(n-1) != 0 {
		p.errorPos(SyntaxError, "alignment must be a small power of two, not %s", t.Pos, args[0])
	}
	d.Value = n
	return d
}

func (p *parser) applyPack(d *PackDirective, pos cpp.FilePos) {
	s := p.s
	switch d.Action {
	case PackSet:
		s.pack = d.Value
	case PackReset:
		s.pack = 0
	case PackPush:
		s.packStack = append(s.packStack, s.pack)
		if d.Value != 0 {
			s.pack = d.Value
		}
	case PackPop:
		if len(s.packStack) == 0 {
			s.Log.WithField("pos", pos.String()).Warn("#pragma pack(pop) without a matching push")
			s.pack = 0
			break
		}
		s.pack = s.packStack[len(s.packStack)-1]
		s.packStack = s.packStack[:len(s.packStack)-1]
	}
	s.Log.WithFields(logrus.Fields{"pack": s.pack, "pos": pos.String()}).Debug("pack changed")
}

type declSpecs struct {
	pos    cpp.FilePos
	sclass SClass
	inline bool
	ty     CType
}

func isSpecifierKeyword(k cpp.TokenKind) bool {
	switch k {
	case cpp.VOID, cpp.BOOL, cpp.CHAR, cpp.SHORT, cpp.INT, cpp.LONG, cpp.FLOAT,
		cpp.DOUBLE, cpp.SIGNED, cpp.UNSIGNED, cpp.STRUCT, cpp.UNION, cpp.ENUM,
		cpp.CONST, cpp.VOLATILE, cpp.RESTRICT, cpp.REGISTER:
		return true
	}
	return false
}

func sclassOf(k cpp.TokenKind) SClass {
	switch k {
	case cpp.TYPEDEF:
		return SC_TYPEDEF
	case cpp.EXTERN:
		return SC_EXTERN
	case cpp.STATIC:
		return SC_STATIC
	case cpp.AUTO:
		return SC_AUTO
	case cpp.REGISTER:
		return SC_REGISTER
	}
	return SC_NONE
}

func (p *parser) parseDeclarationSpecifiers(allowSClass bool) declSpecs {
	// A single integer counts every type keyword, two bits each, so a
	// combination can be recognised with one switch.
	const (
		VOID     = 1 << 0
		BOOL     = 1 << 2
		CHAR     = 1 << 4
		SHORT    = 1 << 6
		INT      = 1 << 8
		LONG     = 1 << 10
		FLOAT    = 1 << 12
		DOUBLE   = 1 << 14
		OTHER    = 1 << 16
		SIGNED   = 1 << 17
		UNSIGNED = 1 << 18
	)

	specs := declSpecs{pos: p.curt.Pos}
	counter := 0
	var ty CType
loop:
	for {
		t := p.curt
		switch t.Kind {
		case cpp.TYPEDEF, cpp.EXTERN, cpp.STATIC, cpp.AUTO, cpp.REGISTER:
			if !allowSClass && t.Kind != cpp.REGISTER {
				p.errorPos(SyntaxError, "storage class specifier %s is not allowed here", t.Pos, t.Kind)
			}
			if specs.sclass != SC_NONE {
				p.errorPos(SyntaxError, "multiple storage classes in declaration specifiers", t.Pos)
			}
			specs.sclass = sclassOf(t.Kind)
			p.next()
			continue
		case cpp.INLINE:
			if !allowSClass {
				p.errorPos(SyntaxError, "inline is not allowed here", t.Pos)
			}
			specs.inline = true
			p.next()
			continue
		case cpp.CONST, cpp.VOLATILE, cpp.RESTRICT:
			p.next()
			continue
		case cpp.STRUCT, cpp.UNION, cpp.ENUM:
			if counter != 0 {
				p.errorPos(SyntaxError, "two or more data types in declaration specifiers", t.Pos)
			}
			if t.Kind == cpp.ENUM {
				ty = p.parseEnum()
			} else {
				ty = p.parseAggregate()
			}
			counter += OTHER
			continue
		case cpp.IDENT:
			if t.Val == "__extension__" || t.Val == "__attribute__" {
				p.skipGNUExtensions()
				continue
			}
			if counter != 0 {
				break loop
			}
			tdty, ok := p.s.Typedefs.Lookup(t.Val)
			if !ok {
				break loop
			}
			ty = tdty
			counter += OTHER
			p.next()
			continue
		case cpp.VOID:
			counter += VOID
		case cpp.BOOL:
			counter += BOOL
		case cpp.CHAR:
			counter += CHAR
		case cpp.SHORT:
			counter += SHORT
		case cpp.INT:
			counter += INT
		case cpp.LONG:
			counter += LONG
		case cpp.FLOAT:
			counter += FLOAT
		case cpp.DOUBLE:
			counter += DOUBLE
		case cpp.SIGNED:
			if counter&SIGNED != 0 {
				p.errorPos(SyntaxError, "duplicate signed", t.Pos)
			}
			counter |= SIGNED
		case cpp.UNSIGNED:
			if counter&UNSIGNED != 0 {
				p.errorPos(SyntaxError, "duplicate unsigned", t.Pos)
			}
			counter |= UNSIGNED
		default:
			break loop
		}

		switch counter {
		case VOID:
			ty = CVoid
		case BOOL:
			ty = CBool
		case CHAR:
			ty = CChar
		case SIGNED + CHAR:
			ty = CSChar
		case UNSIGNED + CHAR:
			ty = CUChar
		case SHORT, SHORT + INT, SIGNED + SHORT, SIGNED + SHORT + INT:
			ty = CShort
		case UNSIGNED + SHORT, UNSIGNED + SHORT + INT:
			ty = CUShort
		case INT, SIGNED, SIGNED + INT:
			ty = CInt
		case UNSIGNED, UNSIGNED + INT:
			ty = CUInt
		case LONG, LONG + INT, SIGNED + LONG, SIGNED + LONG + INT:
			ty = CLong
		case UNSIGNED + LONG, UNSIGNED + LONG + INT:
			ty = CULong
		case LONG + LONG, LONG + LONG + INT, SIGNED + LONG + LONG, SIGNED + LONG + LONG + INT:
			ty = CLLong
		case UNSIGNED + LONG + LONG, UNSIGNED + LONG + LONG + INT:
			ty = CULLong
		case FLOAT:
			ty = CFloat
		case DOUBLE:
			ty = CDouble
		case LONG + DOUBLE:
			ty = CLDouble
		default:
			p.errorPos(SyntaxError, "invalid combination of type specifiers, unexpected %s", t.Pos, t.Kind)
		}
		p.next()
	}
	if counter == 0 {
		if p.curt.Kind == cpp.IDENT {
			p.errorPos(UnknownTypeName, "unknown type name %s", p.curt.Pos, p.curt.Val)
		}
		p.errorPos(SyntaxError, "expected declaration specifiers but got %s", p.curt.Pos, p.curt.Kind)
	}
	specs.ty = ty
	return specs
}

// Declarator
// ----------
//
// A declarator is parsed into the declared name and a function which,
// given the base type, builds the declared type. The base type is only
// known from the outside in, while the declarator must be applied from
// the name outwards:
//
//   int *(*fp[2])(char)
//
// fp is the innermost hole. Its suffix [2] applies to whatever the
// enclosing "*(...)(char)" produces from "int".
type declarator struct {
	name string
	pos  cpp.FilePos
	wrap func(CType) CType
}

func identity(ty CType) CType { return ty }

func isQualifier(k cpp.TokenKind) bool {
	return k == cpp.CONST || k == cpp.VOLATILE || k == cpp.RESTRICT
}

func (p *parser) parseDeclarator(abstract bool) *declarator {
	p.enter()
	defer p.leave()

	nptrs := 0
	for p.curt.Kind == '*' || isQualifier(p.curt.Kind) {
		if p.curt.Kind == '*' {
			nptrs += 1
		}
		p.next()
	}
	d := p.parseDirectDeclarator(abstract)
	inner := d.wrap
	d.wrap = func(base CType) CType {
		for i := 0; i < nptrs; i++ {
			base = &Ptr{base}
		}
		return inner(base)
	}
	return d
}

// startsParams reports whether the '(' at curt opens a parameter list
// rather than a nested declarator. Only asked for abstract declarators,
// where "(T)" with T a typedef name is a function taking a T.
func (p *parser) startsParams() bool {
	switch p.nextt.Kind {
	case ')', cpp.ELLIPSIS:
		return true
	case cpp.IDENT:
		return p.s.Typedefs.IsTypeName(p.nextt.Val)
	}
	return isSpecifierKeyword(p.nextt.Kind)
}

func (p *parser) parseDirectDeclarator(abstract bool) *declarator {
	var d *declarator
	switch {
	case p.curt.Kind == cpp.IDENT:
		d = &declarator{name: p.curt.Val, pos: p.curt.Pos, wrap: identity}
		p.next()
	case p.curt.Kind == '(' && !(abstract && p.startsParams()):
		p.next()
		d = p.parseDeclarator(abstract)
		p.expect(')')
	default:
		if !abstract {
			p.errorPos(SyntaxError, "expected identifier or '(' but got %s", p.curt.Pos, p.curt.Kind)
		}
		d = &declarator{pos: p.curt.Pos, wrap: identity}
	}
	suffix := p.parseDeclaratorSuffixes()
	inner := d.wrap
	d.wrap = func(base CType) CType {
		return inner(suffix(base))
	}
	return d
}

// parseDeclaratorSuffixes handles any run of [N] and (params). The
// leftmost suffix is the outermost type, so x[2][3] is an array of 2
// arrays of 3.
func (p *parser) parseDeclaratorSuffixes() func(CType) CType {
	p.enter()
	defer p.leave()

	pos := p.curt.Pos
	switch p.curt.Kind {
	case '[':
		dim, incomplete := p.parseArrayDim()
		rest := p.parseDeclaratorSuffixes()
		return func(base CType) CType {
			member := rest(base)
			switch member := member.(type) {
			case *FunctionType:
				p.errorPos(SyntaxError, "declaration of array of functions", pos)
			case *Array:
				if member.Incomplete {
					p.errorPos(SyntaxError, "array type has incomplete element type", pos)
				}
			}
			if IsVoid(member) {
				p.errorPos(SyntaxError, "declaration of array of void", pos)
			}
			return &Array{MemberType: member, Dim: dim, Incomplete: incomplete}
		}
	case '(':
		params, variadic := p.parseParams()
		rest := p.parseDeclaratorSuffixes()
		return func(base CType) CType {
			ret := rest(base)
			switch ret.(type) {
			case *FunctionType:
				p.errorPos(SyntaxError, "function returning a function", pos)
			case *Array:
				p.errorPos(SyntaxError, "function returning an array", pos)
			}
			return &FunctionType{RetType: ret, Params: params, IsVarArg: variadic}
		}
	}
	return identity
}

func (p *parser) parseArrayDim() (int64, bool) {
	p.expect('[')
	for isQualifier(p.curt.Kind) || p.curt.Kind == cpp.STATIC {
		p.next()
	}
	if p.curt.Kind == ']' {
		p.next()
		return 0, true
	}
	pos := p.curt.Pos
	n := p.parseConstExpr()
	if n < 0 {
		p.errorPos(SyntaxError, "size of array is negative", pos)
	}
	p.expect(']')
	return n, false
}

func (p *parser) parseParams() ([]Param, bool) {
	p.expect('(')
	if p.curt.Kind == ')' {
		p.next()
		return nil, false
	}
	var params []Param
	for {
		if p.curt.Kind == cpp.ELLIPSIS {
			if len(params) == 0 {
				p.errorPos(MalformedVariadic, "'...' must follow at least one parameter", p.curt.Pos)
			}
			p.next()
			if p.curt.Kind != ')' {
				p.errorPos(SyntaxError, "'...' must be the last parameter, got %s", p.curt.Pos, p.curt.Kind)
			}
			p.next()
			return params, true
		}
		pos := p.curt.Pos
		specs := p.parseDeclarationSpecifiers(false)
		d := p.parseDeclarator(true)
		ty := d.wrap(specs.ty)
		if IsVoid(ty) && len(params) == 0 && d.name == "" && p.curt.Kind == ')' {
			// (void), also spelled through a typedef.
			p.next()
			return nil, false
		}
		if IsVoid(ty) {
			p.errorPos(SyntaxError, "%s parameter has void type", pos, humanize.Ordinal(len(params)+1))
		}
		if d.name != "" {
			pos = d.pos
		}
		params = append(params, Param{Name: d.name, Type: ty, Pos: pos})
		if p.curt.Kind == ',' {
			p.next()
			continue
		}
		if p.curt.Kind != ')' {
			p.errorPos(SyntaxError, "expected ',' or ')' after %s parameter but got %s",
				p.curt.Pos, humanize.Ordinal(len(params)), p.curt.Kind)
		}
		p.next()
		return params, false
	}
}

func (p *parser) defineAggregate(def *AggregateDef) {
	err := p.s.Tags.Define(def)
	if err != nil {
		p.errorPos(Redefinition, "%s", def.Pos, err)
	}
	p.aggs = append(p.aggs, def)
	p.s.Log.WithFields(logrus.Fields{
		"tag":  def.Kind.String() + " " + def.Tag,
		"pack": def.Pack,
		"pos":  def.Pos.String(),
	}).Debug("aggregate defined")
}

func (p *parser) parseAggregate() CType {
	p.enter()
	defer p.leave()

	kind := StructTag
	if p.curt.Kind == cpp.UNION {
		kind = UnionTag
	}
	pos := p.curt.Pos
	p.next()
	p.skipGNUExtensions()
	tag := ""
	if p.curt.Kind == cpp.IDENT {
		tag = p.curt.Val
		p.next()
	}
	if p.curt.Kind != '{' {
		if tag == "" {
			p.errorPos(SyntaxError, "expected '{' or a tag after %s", p.curt.Pos, kind)
		}
		return &Named{Kind: kind, Tag: tag}
	}
	def := &AggregateDef{Pos: pos, Kind: kind, Tag: tag, Pack: p.s.pack}
	if tag == "" {
		def.Tag = p.s.anonTag()
		def.Anonymous = true
	}
	p.expect('{')
	for p.curt.Kind != '}' {
		p.parseStructDeclaration(def)
	}
	p.expect('}')
	p.skipGNUExtensions()
	p.defineAggregate(def)
	return def.Type()
}

func (p *parser) parseStructDeclaration(def *AggregateDef) {
	specs := p.parseDeclarationSpecifiers(false)
	if p.curt.Kind == ';' {
		// Anonymous struct or union member.
		if n, ok := specs.ty.(*Named); ok && n.Kind != EnumTag {
			if member, ok := p.s.Tags.Lookup(n.Kind, n.Tag); ok && member.Anonymous {
				def.Fields = append(def.Fields, Field{Type: n, Pos: specs.pos})
			}
		}
		p.next()
		return
	}
	for {
		f := Field{Pos: p.curt.Pos, Type: specs.ty}
		if p.curt.Kind != ':' {
			d := p.parseDeclarator(false)
			f.Name, f.Pos, f.Type = d.name, d.pos, d.wrap(specs.ty)
		}
		p.skipGNUExtensions()
		if p.curt.Kind == ':' {
			p.next()
			wpos := p.curt.Pos
			w := p.parseConstExpr()
			if w < 0 {
				p.errorPos(SyntaxError, "negative width in bitfield %s", wpos, f.Name)
			}
			if w == 0 && f.Name != "" {
				p.errorPos(SyntaxError, "zero width for bitfield %s", wpos, f.Name)
			}
			f.IsBitfield = true
			f.BitWidth = int(w)
		}
		if f.Name != "" {
			for i, g := range def.Fields {
				if g.Name == f.Name {
					p.errorPos(Redefinition, "duplicate member %s, already the %s field of %s %s",
						f.Pos, f.Name, humanize.Ordinal(i+1), def.Kind, def.Tag)
				}
			}
		}
		def.Fields = append(def.Fields, f)
		if p.curt.Kind != ',' {
			break
		}
		p.next()
	}
	p.expect(';')
}

func (p *parser) parseEnum() CType {
	p.enter()
	defer p.leave()

	pos := p.curt.Pos
	p.expect(cpp.ENUM)
	p.skipGNUExtensions()
	tag := ""
	if p.curt.Kind == cpp.IDENT {
		tag = p.curt.Val
		p.next()
	}
	if p.curt.Kind != '{' {
		if tag == "" {
			p.errorPos(SyntaxError, "expected '{' or a tag after enum", p.curt.Pos)
		}
		return &Named{Kind: EnumTag, Tag: tag}
	}
	def := &AggregateDef{Pos: pos, Kind: EnumTag, Tag: tag, Pack: p.s.pack}
	if tag == "" {
		def.Tag = p.s.anonTag()
		def.Anonymous = true
	}
	p.expect('{')
	v := int64(0)
	for p.curt.Kind != '}' {
		t := p.curt
		p.expect(cpp.IDENT)
		if p.curt.Kind == '=' {
			p.next()
			v = p.parseConstExpr()
		}
		err := p.s.enums.define(t.Val, v)
		if err != nil {
			p.errorPos(Redefinition, "%s", t.Pos, err)
		}
		def.Enumerators = append(def.Enumerators, Enumerator{Name: t.Val, Value: v, Pos: t.Pos})
		v += 1
		if p.curt.Kind != ',' {
			break
		}
		p.next()
	}
	p.expect('}')
	if len(def.Enumerators) == 0 {
		p.errorPos(SyntaxError, "empty enum %s", pos, def.Tag)
	}
	p.defineAggregate(def)
	return def.Type()
}
