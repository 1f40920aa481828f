package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewchambers/cdecl/cpp"
	"github.com/andrewchambers/cdecl/internal/symdb"
	"github.com/andrewchambers/cdecl/parse"
)

const fixture = "../../testdata/fixture.c"

type runResult struct {
	Stdout string
	Stderr string
}

func runApp(args ...string) (runResult, error) {
	app := newApp()
	var outBuf, errBuf bytes.Buffer
	app.Writer = &outBuf
	app.ErrWriter = &errBuf
	err := app.Run(append([]string{"cdecl"}, args...))
	return runResult{outBuf.String(), errBuf.String()}, err
}

func writeSource(t *testing.T, src string) string {
	path := filepath.Join(t.TempDir(), "input.c")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestTokens(t *testing.T) {
	res, err := runApp("tokens", fixture)
	require.NoError(t, err)
	lines := strings.Split(res.Stdout, "\n")
	assert.Contains(t, lines, "unsigned:unsigned:5:1")
	assert.Contains(t, lines, "ident:func0:5:14")
	assert.True(t, strings.HasPrefix(lines[len(lines)-2], "EOF::"))
}

func TestDecls(t *testing.T) {
	res, err := runApp("decls", fixture)
	require.NoError(t, err)
	assert.Empty(t, res.Stderr)
	lines := strings.Split(res.Stdout, "\n")
	assert.Contains(t, lines, "#pragma pack(4)")
	assert.Contains(t, lines, "int (*funcPtrFunc(int a, int b))(int c, int d);")
	assert.Contains(t, lines, "typedef long (*funcPtr)(int, int);")
	assert.Contains(t, lines, "extern int addition(int a, int b);")
	assert.Contains(t, lines, "static int bar[10];")
	assert.Contains(t, lines, "void execFunc(int (*callback)(int, int), int a, int b) { ... }")
}

func TestLayout(t *testing.T) {
	res, err := runApp("layout", fixture)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "struct bar: size 128, align 4, pack 4\n")
	assert.Contains(t, res.Stdout, "\t112\tff: char *(*[2])(char *, int *), size 16, align 4\n")
	assert.Contains(t, res.Stdout, "enum eColor: size 1, align 1, pack 4, underlying unsigned char\n")
	assert.Contains(t, res.Stdout, "\t1\tb: 8 bits at bit 8 of the unit at 0\n")

	res, err = runApp("--target", "i386", "layout", fixture)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "struct bar: size 64, align 4, pack 4\n")
}

func TestUnknownTarget(t *testing.T) {
	_, err := runApp("--target", "pdp11", "layout", fixture)
	assert.ErrorContains(t, err, "unknown target")
}

func TestOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "layout.txt")
	res, err := runApp("-o", out, "layout", fixture)
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "struct position: size 4, align 2, pack 4\n")
}

func TestDump(t *testing.T) {
	res, err := runApp("dump", fixture)
	require.NoError(t, err)

	var doc struct {
		Target   string `json:"target"`
		Typedefs []struct {
			Name string                 `json:"name"`
			Decl string                 `json:"decl"`
			Type map[string]interface{} `json:"type"`
		} `json:"typedefs"`
		Aggregates []struct {
			Kind   string `json:"kind"`
			Tag    string `json:"tag"`
			Size   int64  `json:"size"`
			Fields []struct {
				Name   string `json:"name"`
				Offset int64  `json:"offset"`
			} `json:"fields"`
		} `json:"aggregates"`
		Declarations []struct {
			Name       string `json:"name"`
			Storage    string `json:"storage"`
			Definition bool   `json:"definition"`
			Init       string `json:"init"`
		} `json:"declarations"`
		Pragmas []struct {
			Text string `json:"text"`
		} `json:"pragmas"`
	}
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(res.Stdout), &doc))

	assert.Equal(t, "x86_64", doc.Target)
	require.Len(t, doc.Typedefs, 6)
	assert.Equal(t, "uint32", doc.Typedefs[0].Name)
	assert.Equal(t, "unsigned int uint32", doc.Typedefs[0].Decl)
	assert.Equal(t, "primitive", doc.Typedefs[0].Type["kind"])

	require.Len(t, doc.Aggregates, 6)
	assert.Equal(t, "bar", doc.Aggregates[0].Tag)
	assert.EqualValues(t, 128, doc.Aggregates[0].Size)
	assert.EqualValues(t, 112, doc.Aggregates[0].Fields[5].Offset)

	assert.Len(t, doc.Declarations, 27)
	assert.Len(t, doc.Pragmas, 2)
	for _, d := range doc.Declarations {
		if d.Name == "foo" {
			assert.Equal(t, "static", d.Storage)
			assert.Equal(t, "LION", d.Init)
		}
		if d.Name == "main" {
			assert.True(t, d.Definition)
		}
	}
}

func TestDB(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fixture.sqlite")
	_, err := runApp("db", "--out", out, fixture)
	require.NoError(t, err)

	db, err := symdb.Open(out)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM typedefs`).Scan(&n))
	assert.Equal(t, 6, n)
}

func TestDBNeedsOut(t *testing.T) {
	_, err := runApp("db", fixture)
	assert.Error(t, err)
}

func TestFirstErrorStops(t *testing.T) {
	path := writeSource(t, "int a;\nFoo b;\nint c;\n")
	res, err := runApp("decls", path)
	require.Error(t, err)
	assert.True(t, parse.IsKind(err, parse.UnknownTypeName))
	assert.Empty(t, res.Stdout)
}

func TestKeepGoing(t *testing.T) {
	path := writeSource(t, "int a;\nFoo b;\nint c;\nint d[-1];\nstruct s { int x; } v;\n")
	res, err := runApp("--keep-going", "decls", path)
	assert.EqualError(t, err, "2 error(s) skipped")
	assert.Equal(t, "int a;\nint c;\nstruct s { int x; };\nstruct s v;\n", res.Stdout)
	assert.Contains(t, res.Stderr, "unknown type name")
	assert.Contains(t, res.Stderr, "Foo b;\n^\n")
}

func TestKeepGoingLayout(t *testing.T) {
	path := writeSource(t, "struct a { struct missing m; };\nstruct b { char c; int i; };\n")
	res, err := runApp("--keep-going", "layout", path)
	assert.EqualError(t, err, "1 error(s) skipped")
	assert.Contains(t, res.Stdout, "struct b: size 8, align 4\n")
	assert.Contains(t, res.Stderr, "incomplete type")
}

func TestVerboseLogs(t *testing.T) {
	res, err := runApp("--verbose", "decls", fixture)
	require.NoError(t, err)
	assert.Contains(t, res.Stderr, "level=debug")
}

func TestReportError(t *testing.T) {
	path := writeSource(t, "int a;\n\tFoo b;\n")
	_, err := runApp("decls", path)
	require.Error(t, err)

	var buf bytes.Buffer
	reportError(&buf, err)
	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "unknown type name")
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "\tFoo b;", lines[2])
	assert.Equal(t, "\t^", lines[3])
}

func TestReportErrorAfterTabs(t *testing.T) {
	path := writeSource(t, "int a;\n\tint\t\tx[-1];\n")
	_, err := runApp("decls", path)
	require.Error(t, err)
	var perr cpp.Positioned
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Position().Line)
	assert.Equal(t, 18, perr.Position().Col)

	var buf bytes.Buffer
	reportError(&buf, err)
	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "\tint\t\tx[-1];", lines[2])
	assert.Equal(t, "\t   \t\t  ^", lines[3])
}
