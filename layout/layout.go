package layout

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/andrewchambers/cdecl/cpp"
	"github.com/andrewchambers/cdecl/parse"
)

// TagResolver finds aggregate definitions by tag. *parse.TagTable
// implements it.
type TagResolver interface {
	Lookup(kind parse.TagKind, tag string) (*parse.AggregateDef, bool)
}

type FieldLayout struct {
	Name string
	// Byte offset of the field. For a bitfield, the byte holding its
	// first bit.
	Offset int64
	// Start of the storage unit a bitfield lives in.
	UnitOffset int64
	// Bit index inside the storage unit.
	BitOffset int
	BitWidth  int
	// Size and alignment of the field's type, alignment after any pack cap.
	Size  int64
	Align int
}

type AggregateLayout struct {
	Def    *parse.AggregateDef
	Size   int64
	Align  int
	Fields []FieldLayout
	// Set for enums.
	Underlying *parse.Primitive
}

type cacheKey struct {
	def  *parse.AggregateDef
	pack int
}

// Engine computes layouts for one target. Results are memoised, so an
// engine should not outlive the tag table it reads from.
type Engine struct {
	Target *Target
	Tags   TagResolver
	Log    logrus.FieldLogger

	cache      map[cacheKey]*AggregateLayout
	inProgress map[*parse.AggregateDef]bool
}

func NewEngine(target *Target, tags TagResolver) *Engine {
	log := logrus.New()
	log.Out = io.Discard
	return &Engine{
		Target:     target,
		Tags:       tags,
		Log:        log,
		cache:      make(map[cacheKey]*AggregateLayout),
		inProgress: make(map[*parse.AggregateDef]bool),
	}
}

// LayoutDef lays out def with the pack that was active where it was
// defined.
func (e *Engine) LayoutDef(def *parse.AggregateDef) (*AggregateLayout, error) {
	return e.Layout(def, def.Pack)
}

// Layout lays out def with every field alignment capped at activePack,
// 0 meaning no cap.
func (e *Engine) Layout(def *parse.AggregateDef, activePack int) (*AggregateLayout, error) {
	k := cacheKey{def, activePack}
	if l, ok := e.cache[k]; ok {
		return l, nil
	}
	if e.inProgress[def] {
		return nil, newError(IncompleteType, def.Pos, "%s %s contains itself", def.Kind, def.Tag)
	}
	e.inProgress[def] = true
	defer delete(e.inProgress, def)

	var l *AggregateLayout
	var err error
	switch def.Kind {
	case parse.StructTag:
		l, err = e.layoutStruct(def, activePack)
	case parse.UnionTag:
		l, err = e.layoutUnion(def, activePack)
	case parse.EnumTag:
		l, err = e.layoutEnum(def)
	}
	if err != nil {
		return nil, err
	}
	e.cache[k] = l
	e.Log.WithFields(logrus.Fields{
		"tag":   def.Kind.String() + " " + def.Tag,
		"size":  l.Size,
		"align": l.Align,
		"pack":  activePack,
	}).Debug("laid out")
	return l, nil
}

func (e *Engine) SizeOf(t parse.CType) (int64, error) {
	switch t := t.(type) {
	case *parse.Primitive:
		if t.Kind == parse.Void {
			return 0, newError(IncompleteType, cpp.FilePos{}, "void has no size")
		}
		return e.Target.PrimSize(t.Kind), nil
	case *parse.Ptr:
		return e.Target.PtrSize, nil
	case *parse.Array:
		if t.Incomplete {
			return 0, newError(IncompleteType, cpp.FilePos{}, "%s has no size", t)
		}
		sz, err := e.SizeOf(t.MemberType)
		if err != nil {
			return 0, err
		}
		n := t.Dim
		if n != 0 && sz > e.Target.MaxOffset/n {
			return 0, newError(Overflow, cpp.FilePos{}, "size of %s is too large for %s", t, e.Target.Name)
		}
		return sz * n, nil
	case *parse.FunctionType:
		return 0, newError(IncompleteType, cpp.FilePos{}, "function type has no size")
	case *parse.Named:
		l, err := e.layoutNamed(t)
		if err != nil {
			return 0, err
		}
		return l.Size, nil
	}
	panic(t)
}

func (e *Engine) AlignOf(t parse.CType) (int, error) {
	switch t := t.(type) {
	case *parse.Primitive:
		if t.Kind == parse.Void {
			return 0, newError(IncompleteType, cpp.FilePos{}, "void has no alignment")
		}
		return e.Target.PrimAlign(t.Kind), nil
	case *parse.Ptr:
		return e.Target.PtrAlign, nil
	case *parse.Array:
		return e.AlignOf(t.MemberType)
	case *parse.FunctionType:
		return 0, newError(IncompleteType, cpp.FilePos{}, "function type has no alignment")
	case *parse.Named:
		l, err := e.layoutNamed(t)
		if err != nil {
			return 0, err
		}
		return l.Align, nil
	}
	panic(t)
}

func (e *Engine) layoutNamed(n *parse.Named) (*AggregateLayout, error) {
	def, ok := e.Tags.Lookup(n.Kind, n.Tag)
	if !ok {
		return nil, newError(IncompleteType, cpp.FilePos{}, "%s is incomplete", n)
	}
	return e.LayoutDef(def)
}

func alignTo(off int64, align int) int64 {
	a := int64(align)
	return (off + a - 1) / a * a
}

func capAlign(align, pack int) int {
	if pack > 0 && align > pack {
		return pack
	}
	return align
}

func isFlexibleArray(t parse.CType) bool {
	arr, ok := t.(*parse.Array)
	return ok && arr.Incomplete
}

// bitfieldType checks that a bitfield's type is an integer or an enum and
// returns its size in bytes.
func (e *Engine) bitfieldType(def *parse.AggregateDef, idx int) (int64, int, error) {
	f := def.Fields[idx]
	switch t := f.Type.(type) {
	case *parse.Primitive:
		if !t.IsInteger() {
			return 0, 0, newError(InvalidBitfield, f.Pos, "bitfield %s has non integer type %s", f.Name, t)
		}
	case *parse.Named:
		if t.Kind != parse.EnumTag {
			return 0, 0, newError(InvalidBitfield, f.Pos, "bitfield %s has non integer type %s", f.Name, t)
		}
	default:
		return 0, 0, newError(InvalidBitfield, f.Pos, "bitfield %s has non integer type %s", f.Name, t)
	}
	size, err := e.SizeOf(f.Type)
	if err != nil {
		return 0, 0, atPos(err, f.Pos)
	}
	align, err := e.AlignOf(f.Type)
	if err != nil {
		return 0, 0, atPos(err, f.Pos)
	}
	if int64(f.BitWidth) > size*8 {
		return 0, 0, newError(InvalidBitfield, f.Pos, "width of the %s field %s exceeds its type (%d > %d bits)",
			humanize.Ordinal(idx+1), f.Name, f.BitWidth, size*8)
	}
	return size, align, nil
}

// Bitfields are allocated in storage units of their declared type.
// Consecutive bitfields whose types have the same size share the open
// unit while they fit, a bitfield never straddles two units, and a zero
// width closes the unit.
func (e *Engine) layoutStruct(def *parse.AggregateDef, pack int) (*AggregateLayout, error) {
	l := &AggregateLayout{Def: def, Align: 1}
	var offset int64

	unitOpen := false
	var unitStart, unitSize int64
	var unitUsed int

	for i, f := range def.Fields {
		fl := FieldLayout{Name: f.Name}
		if f.IsBitfield {
			size, align, err := e.bitfieldType(def, i)
			if err != nil {
				return nil, err
			}
			align = capAlign(align, pack)
			fl.Size, fl.Align, fl.BitWidth = size, align, f.BitWidth
			if f.BitWidth == 0 {
				unitOpen = false
				fl.Offset = offset
				fl.UnitOffset = offset
				l.Fields = append(l.Fields, fl)
				continue
			}
			if !unitOpen || unitSize != size || int64(unitUsed+f.BitWidth) > size*8 {
				unitOpen = true
				unitStart = alignTo(offset, align)
				unitSize = size
				unitUsed = 0
				offset = unitStart + size
			}
			fl.UnitOffset = unitStart
			fl.BitOffset = unitUsed
			fl.Offset = unitStart + int64(unitUsed/8)
			unitUsed += f.BitWidth
			if align > l.Align {
				l.Align = align
			}
		} else {
			unitOpen = false
			var size int64
			var err error
			if isFlexibleArray(f.Type) && i == len(def.Fields)-1 && i != 0 {
				size = 0
			} else {
				size, err = e.SizeOf(f.Type)
				if err != nil {
					return nil, atPos(err, f.Pos)
				}
			}
			align, err := e.AlignOf(f.Type)
			if err != nil {
				return nil, atPos(err, f.Pos)
			}
			align = capAlign(align, pack)
			offset = alignTo(offset, align)
			fl.Offset, fl.UnitOffset, fl.Size, fl.Align = offset, offset, size, align
			if size > e.Target.MaxOffset-offset {
				return nil, newError(Overflow, f.Pos, "%s %s is too large for %s", def.Kind, def.Tag, e.Target.Name)
			}
			offset += size
			if align > l.Align {
				l.Align = align
			}
		}
		l.Fields = append(l.Fields, fl)
	}
	l.Size = alignTo(offset, l.Align)
	if l.Size > e.Target.MaxOffset || l.Size < offset {
		return nil, newError(Overflow, def.Pos, "%s %s is too large for %s", def.Kind, def.Tag, e.Target.Name)
	}
	return l, nil
}

func (e *Engine) layoutUnion(def *parse.AggregateDef, pack int) (*AggregateLayout, error) {
	l := &AggregateLayout{Def: def, Align: 1}
	for i, f := range def.Fields {
		var size int64
		var align int
		var err error
		if f.IsBitfield {
			size, align, err = e.bitfieldType(def, i)
			if err != nil {
				return nil, err
			}
		} else {
			size, err = e.SizeOf(f.Type)
			if err != nil {
				return nil, atPos(err, f.Pos)
			}
			align, err = e.AlignOf(f.Type)
			if err != nil {
				return nil, atPos(err, f.Pos)
			}
		}
		align = capAlign(align, pack)
		l.Fields = append(l.Fields, FieldLayout{
			Name:     f.Name,
			Size:     size,
			Align:    align,
			BitWidth: f.BitWidth,
		})
		if size > l.Size {
			l.Size = size
		}
		if align > l.Align && !(f.IsBitfield && f.BitWidth == 0) {
			l.Align = align
		}
	}
	size := alignTo(l.Size, l.Align)
	if size > e.Target.MaxOffset || size < l.Size {
		return nil, newError(Overflow, def.Pos, "%s %s is too large for %s", def.Kind, def.Tag, e.Target.Name)
	}
	l.Size = size
	return l, nil
}

var unsignedCandidates = []*parse.Primitive{parse.CUChar, parse.CUShort, parse.CUInt, parse.CULLong}
var signedCandidates = []*parse.Primitive{parse.CSChar, parse.CShort, parse.CInt, parse.CLLong}

// UnderlyingType returns the smallest integer type able to hold every
// enumerator value, preferring unsigned types when none is negative.
func UnderlyingType(t *Target, def *parse.AggregateDef) *parse.Primitive {
	var lo, hi int64
	for i, en := range def.Enumerators {
		if i == 0 || en.Value < lo {
			lo = en.Value
		}
		if i == 0 || en.Value > hi {
			hi = en.Value
		}
	}
	candidates := signedCandidates
	if lo >= 0 {
		candidates = unsignedCandidates
	}
	for _, c := range candidates {
		bits := uint(t.PrimSize(c.Kind) * 8)
		if bits >= 64 {
			return c
		}
		if c.IsUnsigned() {
			if uint64(hi) < uint64(1)<<bits {
				return c
			}
			continue
		}
		lim := int64(1) << (bits - 1)
		if lo >= -lim && hi < lim {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func (e *Engine) layoutEnum(def *parse.AggregateDef) (*AggregateLayout, error) {
	u := UnderlyingType(e.Target, def)
	return &AggregateLayout{
		Def:        def,
		Size:       e.Target.PrimSize(u.Kind),
		Align:      e.Target.PrimAlign(u.Kind),
		Underlying: u,
	}, nil
}
