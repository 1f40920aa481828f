package parse

import "fmt"

// TypedefEnv maps identifiers to the types they were bound to by typedef.
// Bindings are write once.
type TypedefEnv struct {
	parent *TypedefEnv
	kv     map[string]CType
}

func NewTypedefEnv(parent *TypedefEnv) *TypedefEnv {
	return &TypedefEnv{parent: parent, kv: make(map[string]CType)}
}

func (env *TypedefEnv) Lookup(name string) (CType, bool) {
	ty, ok := env.kv[name]
	if ok {
		return ty, true
	}
	if env.parent != nil {
		return env.parent.Lookup(name)
	}
	return nil, false
}

func (env *TypedefEnv) IsTypeName(name string) bool {
	_, ok := env.Lookup(name)
	return ok
}

// Bind introduces name in this scope. Rebinding to an identical type is
// tolerated.
func (env *TypedefEnv) Bind(name string, ty CType) error {
	old, ok := env.kv[name]
	if ok {
		if Equal(old, ty) {
			return nil
		}
		return fmt.Errorf("conflicting types for typedef %s, was %s now %s", name, old, ty)
	}
	env.kv[name] = ty
	return nil
}

// Names returns the names bound directly in this scope, in no particular
// order.
func (env *TypedefEnv) Names() []string {
	ret := make([]string, 0, len(env.kv))
	for k := range env.kv {
		ret = append(ret, k)
	}
	return ret
}

type tagKey struct {
	kind TagKind
	tag  string
}

// TagTable holds every struct, union and enum definition of a session.
// Named types are resolved through it.
type TagTable struct {
	defs  map[tagKey]*AggregateDef
	order []*AggregateDef
}

func NewTagTable() *TagTable {
	return &TagTable{defs: make(map[tagKey]*AggregateDef)}
}

func (tt *TagTable) Lookup(kind TagKind, tag string) (*AggregateDef, bool) {
	def, ok := tt.defs[tagKey{kind, tag}]
	return def, ok
}

// Define records def. A second definition of the same tag must have an
// identical body.
func (tt *TagTable) Define(def *AggregateDef) error {
	k := tagKey{def.Kind, def.Tag}
	old, ok := tt.defs[k]
	if ok {
		if old.sameBody(def) {
			return nil
		}
		return fmt.Errorf("redefinition of %s %s", def.Kind, def.Tag)
	}
	tt.defs[k] = def
	tt.order = append(tt.order, def)
	return nil
}

// All returns the definitions in the order they were made.
func (tt *TagTable) All() []*AggregateDef {
	return tt.order
}

// enumConsts holds enumerator values, visible to constant expressions.
type enumConsts map[string]int64

func (ec enumConsts) define(name string, v int64) error {
	_, ok := ec[name]
	if ok {
		return fmt.Errorf("redefinition of enumerator %s", name)
	}
	ec[name] = v
	return nil
}
