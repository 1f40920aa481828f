package parse

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/andrewchambers/cdecl/cpp"
)

type declTest struct {
	Name    string  `yaml:"name"`
	Prelude string  `yaml:"prelude"`
	Input   string  `yaml:"input"`
	Decl    *string `yaml:"decl"`
	Want    string  `yaml:"want"`
	Error   string  `yaml:"error"`
}

type declTestFile struct {
	Tests []declTest `yaml:"tests"`
}

func tokens(t *testing.T, src string) cpp.TokenStream {
	toks, err := cpp.Tokenize("test.c", strings.NewReader(src))
	require.NoError(t, err)
	return cpp.NewTokenList(toks)
}

func parseUnit(t *testing.T, s *Session, src string) []*ExternalDecl {
	ts := tokens(t, src)
	var ret []*ExternalDecl
	for {
		ed, err := s.Next(ts)
		if err == io.EOF {
			return ret
		}
		require.NoError(t, err)
		ret = append(ret, ed)
	}
}

func TestDeclarationsYAML(t *testing.T) {
	data, err := os.ReadFile("testdata/declarations.yaml")
	require.NoError(t, err)
	var file declTestFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Tests)

	for _, tc := range file.Tests {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			s := NewSession()
			if tc.Prelude != "" {
				parseUnit(t, s, tc.Prelude)
			}
			name, ty, err := s.ParseDeclaration(tokens(t, tc.Input), nil)
			if tc.Error != "" {
				require.Error(t, err)
				var perr *Error
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tc.Error, perr.Kind.String(), err.Error())
				assert.Nil(t, ty)
				return
			}
			require.NoError(t, err)
			if tc.Decl != nil {
				assert.Equal(t, *tc.Decl, name)
			}
			assert.Equal(t, tc.Want, ty.String())
		})
	}
}

func TestPrecedence(t *testing.T) {
	s := NewSession()
	_, ty, err := s.ParseDeclaration(tokens(t, "int (*funcPtrArr[10])(int* a, int b)"), nil)
	require.NoError(t, err)

	want := &Array{
		Dim: 10,
		MemberType: &Ptr{&FunctionType{
			RetType: CInt,
			Params:  []Param{{Type: &Ptr{CInt}}, {Type: CInt}},
		}},
	}
	assert.True(t, Equal(want, ty), "got %s", ty)
	assert.False(t, Equal(&Ptr{&Array{Dim: 10, MemberType: want.MemberType.(*Ptr).PointsTo}}, ty))
}

func TestParseDeclarationWithBase(t *testing.T) {
	s := NewSession()
	name, ty, err := s.ParseDeclaration(tokens(t, "*x[4]"), CChar)
	require.NoError(t, err)
	assert.Equal(t, "x", name)
	assert.True(t, Equal(&Array{Dim: 4, MemberType: &Ptr{CChar}}, ty))
}

func TestTypedefTransparency(t *testing.T) {
	s := NewSession()
	parseUnit(t, s, "typedef unsigned int uint32; typedef uint32 myFunc(int, uint32); typedef myFunc *myFuncPtr;")

	_, viaTypedef, err := s.ParseDeclaration(tokens(t, "myFuncPtr p"), nil)
	require.NoError(t, err)
	direct, err := s.ParseTypeName(tokens(t, "uint32 (*)(int, uint32)"))
	require.NoError(t, err)
	spelled, err := s.ParseTypeName(tokens(t, "unsigned int (*)(int x, unsigned y)"))
	require.NoError(t, err)

	assert.True(t, Equal(direct, viaTypedef))
	assert.True(t, Equal(spelled, viaTypedef))

	bound, ok := s.Typedefs.Lookup("myFunc")
	require.True(t, ok)
	assert.Equal(t, "function (int, unsigned int) returning unsigned int", bound.String())
}

func TestTypeNameRejectsIdentifier(t *testing.T) {
	s := NewSession()
	_, err := s.ParseTypeName(tokens(t, "int *p"))
	assert.True(t, IsKind(err, SyntaxError))
}

func TestDuplicateTypedef(t *testing.T) {
	s := NewSession()
	parseUnit(t, s, "typedef int a; typedef int a; typedef int (*fp)(int x); typedef int (*fp)(int y);")

	_, err := s.Next(tokens(t, "\ntypedef long a;"))
	require.Error(t, err)
	assert.True(t, IsKind(err, DuplicateTypedef))
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Pos.Line)
	assert.Equal(t, 14, perr.Pos.Col)
}

func TestUnknownTypeNamePosition(t *testing.T) {
	s := NewSession()
	ts := tokens(t, "int ok;\n  Foo x;")
	_, err := s.Next(ts)
	require.NoError(t, err)
	_, err = s.Next(ts)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, UnknownTypeName, perr.Kind)
	assert.Equal(t, 2, perr.Pos.Line)
	assert.Equal(t, 3, perr.Pos.Col)
	assert.Equal(t, 10, perr.Pos.Offset)
	assert.Contains(t, err.Error(), "Foo")
}

func TestEnumAutoIncrement(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, "typedef enum{\n CAT = 0,\n DOG = 1,\n LION,\n DRAGON,\n} ANIMAL;")
	require.Len(t, eds, 1)
	require.Len(t, eds[0].Aggregates, 1)

	def := eds[0].Aggregates[0]
	assert.Equal(t, EnumTag, def.Kind)
	assert.True(t, def.Anonymous)
	assert.Equal(t, "__anon1", def.Tag)

	var names []string
	var values []int64
	for _, e := range def.Enumerators {
		names = append(names, e.Name)
		values = append(values, e.Value)
	}
	assert.Equal(t, []string{"CAT", "DOG", "LION", "DRAGON"}, names)
	assert.Equal(t, []int64{0, 1, 2, 3}, values)

	v, ok := s.EnumConstant("DRAGON")
	assert.True(t, ok)
	assert.EqualValues(t, 3, v)

	animal, ok := s.Typedefs.Lookup("ANIMAL")
	require.True(t, ok)
	assert.True(t, Equal(&Named{Kind: EnumTag, Tag: "__anon1"}, animal))
}

func TestEnumValuesMayRepeatAndGoBackward(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, "enum e { A = 5, B = 2, C, D = 3 };")
	var values []int64
	for _, e := range eds[0].Aggregates[0].Enumerators {
		values = append(values, e.Value)
	}
	assert.Equal(t, []int64{5, 2, 3, 3}, values)
}

func TestConstantExpressions(t *testing.T) {
	s := NewSession()
	parseUnit(t, s, `enum {
		A = 1 << 4,
		B = A | 3,
		C = (A > B) ? 7 : 9,
		D = 'a',
		E = -1,
		F = 10 % 3,
		G = !0 + ~0,
		H = 0x10 - 010,
		I = 2 + 3 * 4 - 6 / 2,
		J = 1 && 0 || 1,
		K = '\n',
		L = 4000000000u,
	};`)
	want := map[string]int64{
		"A": 16, "B": 19, "C": 9, "D": 97, "E": -1, "F": 1,
		"G": 0, "H": 8, "I": 11, "J": 1, "K": 10, "L": 4000000000,
	}
	for name, v := range want {
		got, ok := s.EnumConstant(name)
		if assert.True(t, ok, name) {
			assert.Equal(t, v, got, name)
		}
	}
}

func TestStructAndBitfields(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, `
typedef union
{
    struct {
        unsigned a : 8;
        unsigned b : 8;
        unsigned c : 8;
        unsigned d : 8;
    } four_bytes;
    unsigned int abcd;
} abcd_t;`)
	require.Len(t, eds, 1)
	aggs := eds[0].Aggregates
	require.Len(t, aggs, 2)

	inner, outer := aggs[0], aggs[1]
	assert.Equal(t, StructTag, inner.Kind)
	assert.Equal(t, UnionTag, outer.Kind)
	assert.Equal(t, "__anon1", outer.Tag)
	assert.Equal(t, "__anon2", inner.Tag)

	require.Len(t, inner.Fields, 4)
	for i, name := range []string{"a", "b", "c", "d"} {
		f := inner.Fields[i]
		assert.Equal(t, name, f.Name)
		assert.True(t, f.IsBitfield)
		assert.Equal(t, 8, f.BitWidth)
		assert.True(t, Equal(CUInt, f.Type))
	}
	require.Len(t, outer.Fields, 2)
	assert.Equal(t, "four_bytes", outer.Fields[0].Name)
	assert.True(t, Equal(inner.Type(), outer.Fields[0].Type))

	require.Len(t, eds[0].Decls, 1)
	d := eds[0].Decls[0]
	assert.True(t, d.IsTypedef)
	assert.Equal(t, "abcd_t", d.Name)
}

func TestAnonymousMembersAndUnnamedBitfields(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, "struct s { int a : 3; int : 0; union { int x; float y; }; int b; };")
	def := eds[0].Aggregates[1]
	require.Equal(t, "s", def.Tag)
	require.Len(t, def.Fields, 4)
	assert.Equal(t, "", def.Fields[1].Name)
	assert.True(t, def.Fields[1].IsBitfield)
	assert.Equal(t, 0, def.Fields[1].BitWidth)
	assert.Equal(t, "", def.Fields[2].Name)
	assert.Equal(t, "union __anon1", def.Fields[2].Type.String())
}

func TestBitfieldErrors(t *testing.T) {
	for _, src := range []string{
		"struct s { int a : -1; };",
		"struct s { int a : 0; };",
		"struct s { int a; long a; };",
	} {
		s := NewSession()
		_, err := s.Next(tokens(t, src))
		assert.Error(t, err, src)
	}
	s := NewSession()
	_, err := s.Next(tokens(t, "struct s { int a; long a; };"))
	assert.True(t, IsKind(err, Redefinition))
	assert.Contains(t, err.Error(), "1st field")
}

func TestSelfReferentialStruct(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, "struct node { int v; struct node *next; };")
	def := eds[0].Aggregates[0]
	assert.True(t, Equal(&Ptr{&Named{Kind: StructTag, Tag: "node"}}, def.Fields[1].Type))
	got, ok := s.Tags.Lookup(StructTag, "node")
	assert.True(t, ok)
	assert.Same(t, def, got)
}

func TestAggregateRedefinition(t *testing.T) {
	s := NewSession()
	parseUnit(t, s, "struct s { int a; }; struct s { int a; };")
	_, err := s.Next(tokens(t, "struct s { long a; };"))
	assert.True(t, IsKind(err, Redefinition))
}

func TestPragmaPack(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, `
#pragma pack(4)
struct A { char c; double d; };
#pragma pack(push, 2)
struct B { char c; double d; };
#pragma pack(pop)
struct C { char c; double d; };
#pragma pack()
struct D { char c; double d; };
#pragma GCC diagnostic warning "-Wuninitialized"
`)
	var packs []int
	var pragmas []string
	for _, ed := range eds {
		if ed.Pragma != nil {
			pragmas = append(pragmas, ed.Pragma.Text)
			continue
		}
		packs = append(packs, ed.Aggregates[0].Pack)
	}
	assert.Equal(t, []int{4, 2, 4, 0}, packs)
	assert.Equal(t, []string{"pack(4)", "pack(push,2)", "pack(pop)", "pack()", `GCC diagnostic warning "-Wuninitialized"`}, pragmas)
	assert.Equal(t, 0, s.Pack())
}

func TestPragmaPackRejectsBadAlignment(t *testing.T) {
	s := NewSession()
	_, err := s.Next(tokens(t, "#pragma pack(3)\n"))
	assert.True(t, IsKind(err, SyntaxError))
}

func TestInitializerText(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, `
enum { CAT, DOG };
struct position { short x; short y; } pos1 = {.x=CAT, .y=DOG};
int x = 3 + 4, y = f(1, 2), z;`)
	require.Len(t, eds, 3)

	pos1 := eds[1].Decls[0]
	assert.Equal(t, "pos1", pos1.Name)
	assert.Equal(t, "{.x=CAT, .y=DOG}", pos1.Init)
	assert.Equal(t, "struct position", pos1.Type.String())

	decls := eds[2].Decls
	require.Len(t, decls, 3)
	assert.Equal(t, "3 + 4", decls[0].Init)
	assert.Equal(t, "f(1, 2)", decls[1].Init)
	assert.Equal(t, "", decls[2].Init)
}

func TestFunctionDefinitionBodyIsSkipped(t *testing.T) {
	s := NewSession()
	eds := parseUnit(t, s, `
int rec_func(int val)
{
    if(val <= 0) { return val; } else { return rec_func(val - 1); }
}
static inline int g;`)
	require.Len(t, eds, 2)
	f := eds[0].Decls[0]
	assert.True(t, f.IsFunctionDefinition)
	assert.Equal(t, "rec_func", f.Name)
	assert.Equal(t, "val", f.Type.(*FunctionType).Params[0].Name)

	g := eds[1].Decls[0]
	assert.Equal(t, SC_STATIC, g.SClass)
	assert.True(t, g.Inline)
}

// A session reading two streams in turn keeps its place in each.
func TestNextAlternatingStreams(t *testing.T) {
	s := NewSession()
	a := tokens(t, "int a1; int a2; int a3;")
	b := tokens(t, "int b1; int b2;")
	var names []string
	for _, ts := range []cpp.TokenStream{a, b, a, b, a} {
		ed, err := s.Next(ts)
		require.NoError(t, err)
		names = append(names, ed.Decls[0].Name)
	}
	assert.Equal(t, []string{"a1", "b1", "a2", "b2", "a3"}, names)
	_, err := s.Next(a)
	assert.Equal(t, io.EOF, err)
}

func TestResync(t *testing.T) {
	s := NewSession()
	ts := tokens(t, "int a; Foo b; struct s { int x y; }; int c; void f(void) { } int d;")
	var names []string
	var errs []error
	for {
		ed, err := s.Next(ts)
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err)
			require.NoError(t, s.Resync(ts))
			continue
		}
		for _, d := range ed.Decls {
			names = append(names, d.Name)
		}
	}
	assert.Equal(t, []string{"a", "c", "f", "d"}, names)
	require.Len(t, errs, 3)
	assert.True(t, IsKind(errs[0], UnknownTypeName))
}

func TestMaxDepth(t *testing.T) {
	s := NewSession()
	s.MaxDepth = 16
	src := "int " + strings.Repeat("(", 40) + "x" + strings.Repeat(")", 40) + ";"
	_, err := s.Next(tokens(t, src))
	require.Error(t, err)
	assert.True(t, IsKind(err, SyntaxError))
	assert.Contains(t, err.Error(), "nesting")

	s = NewSession()
	_, err = s.Next(tokens(t, src))
	assert.NoError(t, err)
}

func TestLexErrorsBecomeSyntaxErrors(t *testing.T) {
	s := NewSession()
	toks := []*cpp.Token{
		{Kind: cpp.INT, Val: "int"},
	}
	_, err := s.Next(&failingStream{toks: toks})
	assert.True(t, IsKind(err, SyntaxError))
}

type failingStream struct {
	toks []*cpp.Token
}

func (fs *failingStream) Next() (*cpp.Token, error) {
	if len(fs.toks) == 0 {
		return &cpp.Token{Kind: cpp.ERROR}, cpp.ErrWithLoc(io.ErrUnexpectedEOF, cpp.FilePos{Line: 7})
	}
	t := fs.toks[0]
	fs.toks = fs.toks[1:]
	return t, nil
}

func TestParseFixture(t *testing.T) {
	f, err := os.Open("../testdata/fixture.c")
	require.NoError(t, err)
	defer f.Close()

	tu, err := Parse(cpp.NewFilter(cpp.Lex("fixture.c", f)))
	require.NoError(t, err)

	byName := map[string]*Declaration{}
	for _, ed := range tu.Decls {
		for _, d := range ed.Decls {
			byName[d.Name] = d
		}
	}
	assert.Equal(t, "array 10 of pointer to function (pointer to int, int) returning pointer to function (pointer to int, int) returning pointer to int",
		byName["funcPtrArr"].Type.String())
	assert.True(t, byName["main"].IsFunctionDefinition)
	assert.Equal(t, "LION", byName["foo"].Init)
	assert.Equal(t, "{.x=CAT, .y=DOG}", byName["pos1"].Init)
	assert.Equal(t, "array 10 of int", byName["bar"].Type.String())

	var typedefs []string
	for _, d := range tu.Typedefs() {
		typedefs = append(typedefs, d.Name)
	}
	assert.Equal(t, []string{"uint32", "myFunc", "funcPtr", "myFuncPtr", "abcd_t", "ANIMAL"}, typedefs)

	var tags []string
	for _, def := range tu.Aggregates() {
		tags = append(tags, def.Kind.String()+" "+def.Tag)
		assert.Equal(t, 4, def.Pack)
	}
	assert.Equal(t, []string{"struct bar", "struct __anon2", "union __anon1", "enum eColor", "enum __anon3", "struct position"}, tags)

	require.Len(t, tu.Pragmas, 2)
	assert.Equal(t, "pack(4)", tu.Pragmas[0].Text)
}
