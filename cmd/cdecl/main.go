package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/xyproto/env/v2"

	"github.com/andrewchambers/cdecl/cpp"
	"github.com/andrewchambers/cdecl/emit"
	"github.com/andrewchambers/cdecl/internal/symdb"
	"github.com/andrewchambers/cdecl/layout"
	"github.com/andrewchambers/cdecl/parse"
)

const version = "0.1"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cdecl"
	app.Usage = "Resolve the declarations of preprocessed C source"
	app.Version = version
	app.Description = `cdecl reads C that has already been run through the preprocessor and
reports what every declaration means. Function bodies are skipped.

Environment variables:
  CCDEBUG=true      attach stack traces to errors
  CDECL_MAX_DEPTH   nesting limit for declarators and expressions
  CDECL_TARGET      default target machine`
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "target",
			Value: env.Str("CDECL_TARGET", "x86_64"),
			Usage: "Target machine for layouts (" + strings.Join(layout.TargetNames(), ", ") + ")",
		},
		&cli.BoolFlag{
			Name:  "keep-going",
			Usage: "Report a bad declaration and continue with the next one",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log parser events to stderr",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   "-",
			Usage:   "Write output to `FILE`, '-' for stdout",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "tokens",
			Usage:     "Print the tokens of a file (for debugging)",
			ArgsUsage: "FILE.c",
			Action:    runTokens,
		},
		{
			Name:      "decls",
			Usage:     "Print every declaration in canonical form",
			ArgsUsage: "FILE.c",
			Action:    runDecls,
		},
		{
			Name:      "layout",
			Usage:     "Print the size, alignment and field offsets of every aggregate",
			ArgsUsage: "FILE.c",
			Action:    runLayout,
		},
		{
			Name:      "dump",
			Usage:     "Print the declarations as JSON",
			ArgsUsage: "FILE.c",
			Action:    runDump,
		},
		{
			Name:      "db",
			Usage:     "Store the declarations in an SQLite database",
			ArgsUsage: "FILE.c",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Usage:    "Database `FILE` to create or extend",
					Required: true,
				},
			},
			Action: runDB,
		},
	}
	return app
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		reportError(app.ErrWriter, err)
		os.Exit(1)
	}
}

// driver holds what every command needs.
type driver struct {
	c         *cli.Context
	log       *logrus.Logger
	target    *layout.Target
	keepGoing bool
	// Number of errors reported and skipped with --keep-going.
	failed int
}

func newDriver(c *cli.Context) (*driver, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("bad number of args, please specify a single source file")
	}
	target, err := layout.TargetByName(c.String("target"))
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.Out = c.App.ErrWriter
	log.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	log.Level = logrus.WarnLevel
	if c.Bool("verbose") {
		log.Level = logrus.DebugLevel
	}
	return &driver{
		c:         c,
		log:       log,
		target:    target,
		keepGoing: c.Bool("keep-going"),
	}, nil
}

func (d *driver) path() string {
	return d.c.Args().First()
}

// withOutput runs f with the writer selected by --output.
func (d *driver) withOutput(f func(io.Writer) error) error {
	outputPath := d.c.String("output")
	if outputPath == "-" {
		return f(d.c.App.Writer)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrap(err, "failed to open output file")
	}
	err = f(out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// skipped reports err and decides whether the command may carry on.
func (d *driver) skipped(err error) bool {
	if !d.keepGoing {
		return false
	}
	d.failed += 1
	reportError(d.c.App.ErrWriter, err)
	return true
}

func (d *driver) finish() error {
	if d.failed != 0 {
		return fmt.Errorf("%d error(s) skipped", d.failed)
	}
	return nil
}

func (d *driver) open() (*os.File, error) {
	f, err := os.Open(d.path())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open source file %s", d.path())
	}
	return f, nil
}

// parseFile parses the input. With --keep-going a declaration that fails
// is reported and skipped, otherwise the first error is returned.
func (d *driver) parseFile() (*parse.TranslationUnit, error) {
	f, err := d.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := parse.NewSession()
	s.Log = d.log
	ts := cpp.NewFilter(cpp.Lex(d.path(), f))
	if !d.keepGoing {
		return s.ParseTranslationUnit(ts)
	}
	tu := &parse.TranslationUnit{Session: s}
	for {
		ed, err := s.Next(ts)
		if err == io.EOF {
			return tu, nil
		}
		if err != nil {
			d.skipped(err)
			if err := s.Resync(ts); err != nil {
				return nil, err
			}
			continue
		}
		tu.Decls = append(tu.Decls, ed)
		if ed.Pragma != nil {
			tu.Pragmas = append(tu.Pragmas, ed.Pragma)
		}
	}
}

func (d *driver) engine(tu *parse.TranslationUnit) *layout.Engine {
	eng := layout.NewEngine(d.target, tu.Session.Tags)
	eng.Log = d.log
	return eng
}

func runTokens(c *cli.Context) error {
	d, err := newDriver(c)
	if err != nil {
		return err
	}
	f, err := d.open()
	if err != nil {
		return err
	}
	defer f.Close()
	lexer := cpp.Lex(d.path(), f)
	return d.withOutput(func(out io.Writer) error {
		for {
			tok, err := lexer.Next()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:%s:%d:%d\n", tok.Kind, tok.Val, tok.Pos.Line, tok.Pos.Col)
			if tok.Kind == cpp.EOF {
				return nil
			}
		}
	})
}

func runDecls(c *cli.Context) error {
	d, err := newDriver(c)
	if err != nil {
		return err
	}
	tu, err := d.parseFile()
	if err != nil {
		return err
	}
	err = d.withOutput(func(out io.Writer) error {
		return emit.Emit(tu, out)
	})
	if err != nil {
		return err
	}
	return d.finish()
}

func runLayout(c *cli.Context) error {
	d, err := newDriver(c)
	if err != nil {
		return err
	}
	tu, err := d.parseFile()
	if err != nil {
		return err
	}
	eng := d.engine(tu)
	err = d.withOutput(func(out io.Writer) error {
		for _, def := range tu.Aggregates() {
			l, err := eng.LayoutDef(def)
			if err != nil {
				if d.skipped(err) {
					continue
				}
				return err
			}
			writeLayout(out, l)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return d.finish()
}

func writeLayout(out io.Writer, l *layout.AggregateLayout) {
	def := l.Def
	fmt.Fprintf(out, "%s %s: size %d, align %d", def.Kind, def.Tag, l.Size, l.Align)
	if def.Pack != 0 {
		fmt.Fprintf(out, ", pack %d", def.Pack)
	}
	if l.Underlying != nil {
		fmt.Fprintf(out, ", underlying %s", l.Underlying.Name())
	}
	fmt.Fprintln(out)
	for _, en := range def.Enumerators {
		fmt.Fprintf(out, "\t%s = %d\n", en.Name, en.Value)
	}
	for i, fl := range l.Fields {
		f := def.Fields[i]
		name := fl.Name
		if name == "" {
			name = "(unnamed)"
		}
		if f.IsBitfield {
			fmt.Fprintf(out, "\t%d\t%s: %d bits at bit %d of the unit at %d\n",
				fl.Offset, name, fl.BitWidth, fl.BitOffset, fl.UnitOffset)
			continue
		}
		fmt.Fprintf(out, "\t%d\t%s: %s, size %d, align %d\n", fl.Offset, name, emit.Render("", f.Type), fl.Size, fl.Align)
	}
}

func runDump(c *cli.Context) error {
	d, err := newDriver(c)
	if err != nil {
		return err
	}
	tu, err := d.parseFile()
	if err != nil {
		return err
	}
	doc, err := d.describeUnit(tu)
	if err != nil {
		return err
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	err = d.withOutput(func(out io.Writer) error {
		_, err := fmt.Fprintf(out, "%s\n", b)
		return err
	})
	if err != nil {
		return err
	}
	return d.finish()
}

type jsonObject = map[string]interface{}

func (d *driver) describeUnit(tu *parse.TranslationUnit) (jsonObject, error) {
	eng := d.engine(tu)
	typedefs := []interface{}{}
	decls := []interface{}{}
	aggregates := []interface{}{}
	pragmas := []interface{}{}

	for _, pr := range tu.Pragmas {
		pragmas = append(pragmas, jsonObject{"text": pr.Text, "line": pr.Pos.Line})
	}
	for _, def := range tu.Aggregates() {
		agg := jsonObject{"kind": def.Kind.String(), "tag": def.Tag, "anonymous": def.Anonymous}
		l, err := eng.LayoutDef(def)
		if err != nil && !d.skipped(err) {
			return nil, err
		}
		if l != nil {
			agg["size"] = l.Size
			agg["align"] = l.Align
			if l.Underlying != nil {
				agg["underlying"] = l.Underlying.Name()
			}
		}
		if def.Kind == parse.EnumTag {
			enumerators := []interface{}{}
			for _, en := range def.Enumerators {
				enumerators = append(enumerators, jsonObject{"name": en.Name, "value": en.Value})
			}
			agg["enumerators"] = enumerators
		} else {
			fields := []interface{}{}
			for i, f := range def.Fields {
				field := jsonObject{"name": f.Name, "type": emit.Describe(f.Type)}
				if f.IsBitfield {
					field["bits"] = f.BitWidth
				}
				if l != nil {
					field["offset"] = l.Fields[i].Offset
					if f.IsBitfield {
						field["bit_offset"] = l.Fields[i].BitOffset
					}
				}
				fields = append(fields, field)
			}
			agg["fields"] = fields
		}
		aggregates = append(aggregates, agg)
	}
	for _, ed := range tu.Decls {
		for _, decl := range ed.Decls {
			obj := jsonObject{
				"name": decl.Name,
				"decl": emit.Render(decl.Name, decl.Type),
				"type": emit.Describe(decl.Type),
				"line": decl.Pos.Line,
			}
			if decl.IsTypedef {
				typedefs = append(typedefs, obj)
				continue
			}
			if decl.SClass != parse.SC_NONE {
				obj["storage"] = decl.SClass.String()
			}
			if decl.IsFunctionDefinition {
				obj["definition"] = true
			}
			if decl.Init != "" {
				obj["init"] = decl.Init
			}
			decls = append(decls, obj)
		}
	}
	return jsonObject{
		"file":         d.path(),
		"target":       d.target.Name,
		"pragmas":      pragmas,
		"typedefs":     typedefs,
		"aggregates":   aggregates,
		"declarations": decls,
	}, nil
}

func runDB(c *cli.Context) error {
	d, err := newDriver(c)
	if err != nil {
		return err
	}
	tu, err := d.parseFile()
	if err != nil {
		return err
	}
	db, err := symdb.Open(c.String("out"))
	if err != nil {
		return err
	}
	db.Log = d.log
	err = db.Store(context.Background(), tu, d.engine(tu))
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return d.finish()
}
