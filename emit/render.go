package emit

import (
	"fmt"
	"strings"

	"github.com/andrewchambers/cdecl/parse"
)

// Render spells out a declaration of name with type t. An empty name
// gives an abstract declarator. Parentheses are only added where a
// pointer wraps an array or function.
func Render(name string, t parse.CType) string {
	decl := name
	wrappedPtr := false
	for {
		switch ty := t.(type) {
		case *parse.Ptr:
			decl = "*" + decl
			wrappedPtr = true
			t = ty.PointsTo
			continue
		case *parse.Array:
			if wrappedPtr {
				decl = "(" + decl + ")"
			}
			if ty.Incomplete {
				decl += "[]"
			} else {
				decl += fmt.Sprintf("[%d]", ty.Dim)
			}
			wrappedPtr = false
			t = ty.MemberType
			continue
		case *parse.FunctionType:
			if wrappedPtr {
				decl = "(" + decl + ")"
			}
			decl += "(" + renderParams(ty) + ")"
			wrappedPtr = false
			t = ty.RetType
			continue
		}
		break
	}
	base := baseName(t)
	if decl == "" {
		return base
	}
	return base + " " + decl
}

func baseName(t parse.CType) string {
	switch t := t.(type) {
	case *parse.Primitive:
		return t.Name()
	case *parse.Named:
		return t.Kind.String() + " " + t.Tag
	}
	panic(t)
}

func renderParams(f *parse.FunctionType) string {
	if len(f.Params) == 0 && !f.IsVarArg {
		return "void"
	}
	params := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		params = append(params, Render(p.Name, p.Type))
	}
	if f.IsVarArg {
		params = append(params, "...")
	}
	return strings.Join(params, ", ")
}

// RenderAggregate renders a struct, union or enum definition on one line,
// without the terminating ';'.
func RenderAggregate(def *parse.AggregateDef) string {
	var sb strings.Builder
	sb.WriteString(def.Kind.String())
	sb.WriteString(" ")
	sb.WriteString(def.Tag)
	sb.WriteString(" {")
	if def.Kind == parse.EnumTag {
		for i, en := range def.Enumerators {
			if i != 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s = %d", en.Name, en.Value)
		}
		sb.WriteString(" }")
		return sb.String()
	}
	for _, f := range def.Fields {
		sb.WriteString(" ")
		sb.WriteString(Render(f.Name, f.Type))
		if f.IsBitfield {
			fmt.Fprintf(&sb, " : %d", f.BitWidth)
		}
		sb.WriteString(";")
	}
	sb.WriteString(" }")
	return sb.String()
}

// Describe turns t into nested maps suitable for JSON encoding.
func Describe(t parse.CType) map[string]interface{} {
	switch t := t.(type) {
	case *parse.Primitive:
		return map[string]interface{}{"kind": "primitive", "name": t.Name()}
	case *parse.Ptr:
		return map[string]interface{}{"kind": "pointer", "to": Describe(t.PointsTo)}
	case *parse.Array:
		ret := map[string]interface{}{"kind": "array", "of": Describe(t.MemberType)}
		if !t.Incomplete {
			ret["length"] = t.Dim
		}
		return ret
	case *parse.FunctionType:
		params := make([]interface{}, 0, len(t.Params))
		for _, p := range t.Params {
			param := map[string]interface{}{"type": Describe(p.Type)}
			if p.Name != "" {
				param["name"] = p.Name
			}
			params = append(params, param)
		}
		return map[string]interface{}{
			"kind":     "function",
			"returns":  Describe(t.RetType),
			"params":   params,
			"variadic": t.IsVarArg,
		}
	case *parse.Named:
		return map[string]interface{}{"kind": t.Kind.String(), "tag": t.Tag}
	}
	panic(t)
}
