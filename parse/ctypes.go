package parse

import (
	"fmt"
	"strings"

	"github.com/andrewchambers/cdecl/cpp"
)

// CType is a node of a type tree. A tree is acyclic, aggregates are only
// ever referenced through Named, never embedded.
type CType interface {
	String() string
	isCType()
}

type PrimitiveKind int

const (
	Void PrimitiveKind = iota
	Bool
	Char
	SChar
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LLong
	ULLong
	Float
	Double
	LDouble
)

var primitiveNames = [...]string{
	Void:    "void",
	Bool:    "_Bool",
	Char:    "char",
	SChar:   "signed char",
	UChar:   "unsigned char",
	Short:   "short",
	UShort:  "unsigned short",
	Int:     "int",
	UInt:    "unsigned int",
	Long:    "long",
	ULong:   "unsigned long",
	LLong:   "long long",
	ULLong:  "unsigned long long",
	Float:   "float",
	Double:  "double",
	LDouble: "long double",
}

func (k PrimitiveKind) String() string { return primitiveNames[k] }

type Primitive struct {
	Kind PrimitiveKind
}

func (p *Primitive) String() string { return p.Kind.String() }

// Name is the canonical spelling of the type.
func (p *Primitive) Name() string { return p.Kind.String() }

func (p *Primitive) IsInteger() bool {
	return p.Kind >= Bool && p.Kind <= ULLong
}

func (p *Primitive) IsUnsigned() bool {
	switch p.Kind {
	case Bool, UChar, UShort, UInt, ULong, ULLong:
		return true
	}
	return false
}

type Ptr struct {
	PointsTo CType
}

func (p *Ptr) String() string { return "pointer to " + p.PointsTo.String() }

type Array struct {
	MemberType CType
	Dim        int64
	// Set for arrays declared without a size, e.g. int x[].
	Incomplete bool
}

func (a *Array) String() string {
	if a.Incomplete {
		return "array of " + a.MemberType.String()
	}
	return fmt.Sprintf("array %d of %s", a.Dim, a.MemberType)
}

type Param struct {
	Name string
	Type CType
	Pos  cpp.FilePos
}

type FunctionType struct {
	RetType  CType
	Params   []Param
	IsVarArg bool
}

func (f *FunctionType) String() string {
	var params []string
	for _, p := range f.Params {
		params = append(params, p.Type.String())
	}
	if f.IsVarArg {
		params = append(params, "...")
	}
	return fmt.Sprintf("function (%s) returning %s", strings.Join(params, ", "), f.RetType)
}

type TagKind int

const (
	StructTag TagKind = iota
	UnionTag
	EnumTag
)

func (k TagKind) String() string {
	switch k {
	case StructTag:
		return "struct"
	case UnionTag:
		return "union"
	case EnumTag:
		return "enum"
	}
	return "unknown"
}

// Named references a struct, union or enum by tag. The definition lives
// in the session's tag table, so a struct can point to itself.
type Named struct {
	Kind TagKind
	Tag  string
}

func (n *Named) String() string { return n.Kind.String() + " " + n.Tag }

func (*Primitive) isCType()    {}
func (*Ptr) isCType()          {}
func (*Array) isCType()        {}
func (*FunctionType) isCType() {}
func (*Named) isCType()        {}

// All the primitive C types.

var CVoid = &Primitive{Void}
var CBool = &Primitive{Bool}

// Signed
var CChar = &Primitive{Char}
var CSChar = &Primitive{SChar}
var CShort = &Primitive{Short}
var CInt = &Primitive{Int}
var CLong = &Primitive{Long}
var CLLong = &Primitive{LLong}

// Unsigned
var CUChar = &Primitive{UChar}
var CUShort = &Primitive{UShort}
var CUInt = &Primitive{UInt}
var CULong = &Primitive{ULong}
var CULLong = &Primitive{ULLong}

// Floats
var CFloat = &Primitive{Float}
var CDouble = &Primitive{Double}
var CLDouble = &Primitive{LDouble}

var primitives = [...]*Primitive{
	Void: CVoid, Bool: CBool, Char: CChar, SChar: CSChar, UChar: CUChar,
	Short: CShort, UShort: CUShort, Int: CInt, UInt: CUInt, Long: CLong,
	ULong: CULong, LLong: CLLong, ULLong: CULLong, Float: CFloat,
	Double: CDouble, LDouble: CLDouble,
}

// PrimitiveOf returns the shared instance for k.
func PrimitiveOf(k PrimitiveKind) *Primitive { return primitives[k] }

func IsPtrType(t CType) bool {
	_, ok := t.(*Ptr)
	return ok
}

func IsIntType(t CType) bool {
	prim, ok := t.(*Primitive)
	if !ok {
		return false
	}
	return prim.IsInteger()
}

func IsVoid(t CType) bool {
	prim, ok := t.(*Primitive)
	return ok && prim.Kind == Void
}

func IsFunctionType(t CType) bool {
	_, ok := t.(*FunctionType)
	return ok
}

// Equal reports whether a and b denote the same type. Parameter names are
// not part of a function's type and are ignored.
func Equal(a, b CType) bool {
	switch a := a.(type) {
	case *Primitive:
		b, ok := b.(*Primitive)
		return ok && a.Kind == b.Kind
	case *Ptr:
		b, ok := b.(*Ptr)
		return ok && Equal(a.PointsTo, b.PointsTo)
	case *Array:
		b, ok := b.(*Array)
		if !ok || a.Incomplete != b.Incomplete {
			return false
		}
		if !a.Incomplete && a.Dim != b.Dim {
			return false
		}
		return Equal(a.MemberType, b.MemberType)
	case *FunctionType:
		b, ok := b.(*FunctionType)
		if !ok || a.IsVarArg != b.IsVarArg || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i].Type, b.Params[i].Type) {
				return false
			}
		}
		return Equal(a.RetType, b.RetType)
	case *Named:
		b, ok := b.(*Named)
		return ok && a.Kind == b.Kind && a.Tag == b.Tag
	}
	return false
}
