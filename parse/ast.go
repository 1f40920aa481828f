package parse

import "github.com/andrewchambers/cdecl/cpp"

// Storage class
type SClass int

const (
	SC_NONE SClass = iota
	SC_AUTO
	SC_REGISTER
	SC_STATIC
	SC_EXTERN
	SC_TYPEDEF
)

func (sc SClass) String() string {
	switch sc {
	case SC_AUTO:
		return "auto"
	case SC_REGISTER:
		return "register"
	case SC_STATIC:
		return "static"
	case SC_EXTERN:
		return "extern"
	case SC_TYPEDEF:
		return "typedef"
	}
	return ""
}

// ExternalDecl is one top level item of a translation unit. Exactly one of
// Pragma or Decls/Aggregates is populated; a bare "struct s {...};" has
// Aggregates but no Decls.
type ExternalDecl struct {
	Pos    cpp.FilePos
	SClass SClass
	// Aggregates defined inside the declaration specifiers or declarators,
	// innermost first.
	Aggregates []*AggregateDef
	Decls      []*Declaration
	Pragma     *Pragma
}

type Declaration struct {
	Pos                  cpp.FilePos
	Name                 string
	Type                 CType
	SClass               SClass
	Inline               bool
	IsTypedef            bool
	IsFunctionDefinition bool
	// Source text of the initializer, if any.
	Init string
}

type Field struct {
	Name       string
	Type       CType
	BitWidth   int
	IsBitfield bool
	Pos        cpp.FilePos
}

type Enumerator struct {
	Name  string
	Value int64
	Pos   cpp.FilePos
}

type AggregateDef struct {
	Pos  cpp.FilePos
	Kind TagKind
	Tag  string
	// Anonymous definitions get a synthetic tag of the form __anonN.
	Anonymous   bool
	Fields      []Field
	Enumerators []Enumerator
	// Pack in effect when the definition was parsed, 0 if none.
	Pack int
}

// Type is the Named reference to this definition.
func (def *AggregateDef) Type() *Named {
	return &Named{Kind: def.Kind, Tag: def.Tag}
}

func (def *AggregateDef) sameBody(o *AggregateDef) bool {
	if def.Kind != o.Kind || def.Pack != o.Pack {
		return false
	}
	if len(def.Fields) != len(o.Fields) || len(def.Enumerators) != len(o.Enumerators) {
		return false
	}
	for i, f := range def.Fields {
		g := o.Fields[i]
		if f.Name != g.Name || f.IsBitfield != g.IsBitfield || f.BitWidth != g.BitWidth || !Equal(f.Type, g.Type) {
			return false
		}
	}
	for i, e := range def.Enumerators {
		if e.Name != o.Enumerators[i].Name || e.Value != o.Enumerators[i].Value {
			return false
		}
	}
	return true
}

type PackAction int

const (
	PackSet PackAction = iota
	PackReset
	PackPush
	PackPop
)

type PackDirective struct {
	Action PackAction
	// Alignment argument, 0 if absent.
	Value int
}

type Pragma struct {
	Pos cpp.FilePos
	// Tokens after "#pragma" joined by spaces. Pack pragmas are kept in
	// their normalised form, e.g. "pack(push,4)".
	Text string
	// Set for #pragma pack.
	Pack *PackDirective
}

type TranslationUnit struct {
	Decls   []*ExternalDecl
	Session *Session
	Pragmas []*Pragma
}

// Typedefs returns the typedef declarations of the unit in source order.
func (tu *TranslationUnit) Typedefs() []*Declaration {
	var ret []*Declaration
	for _, ed := range tu.Decls {
		for _, d := range ed.Decls {
			if d.IsTypedef {
				ret = append(ret, d)
			}
		}
	}
	return ret
}

// Aggregates returns every struct, union and enum definition in source order.
func (tu *TranslationUnit) Aggregates() []*AggregateDef {
	var ret []*AggregateDef
	for _, ed := range tu.Decls {
		ret = append(ret, ed.Aggregates...)
	}
	return ret
}
