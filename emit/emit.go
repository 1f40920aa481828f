package emit

import (
	"fmt"
	"io"

	"github.com/andrewchambers/cdecl/parse"
)

type emitter struct {
	o   io.Writer
	err error
}

// Emit writes one canonical line per top level item of unit. Aggregate
// definitions come before the declarations that introduced them.
func Emit(unit *parse.TranslationUnit, o io.Writer) error {

	e := &emitter{
		o: o,
	}

	for _, ed := range unit.Decls {
		if ed.Pragma != nil {
			e.emit("#pragma %s\n", ed.Pragma.Text)
			continue
		}
		for _, def := range ed.Aggregates {
			e.emit("%s;\n", RenderAggregate(def))
		}
		for _, d := range ed.Decls {
			e.emitDeclaration(d)
		}
	}

	return e.err
}

func (e *emitter) emit(s string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.o, s, args...)
}

func (e *emitter) emitDeclaration(d *parse.Declaration) {
	if d.SClass != parse.SC_NONE {
		e.emit("%s ", d.SClass)
	}
	if d.Inline {
		e.emit("inline ")
	}
	e.emit("%s", Render(d.Name, d.Type))
	switch {
	case d.IsFunctionDefinition:
		e.emit(" { ... }\n")
	case d.Init != "":
		e.emit(" = %s;\n", d.Init)
	default:
		e.emit(";\n")
	}
}
