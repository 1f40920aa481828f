package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/andrewchambers/cdecl/parse"
)

// Target describes the sizes and alignments of a machine.
type Target struct {
	Name      string
	PtrSize   int64
	PtrAlign  int
	primSize  [parse.LDouble + 1]int64
	primAlign [parse.LDouble + 1]int
	// Largest offset or object size the target can address.
	MaxOffset int64
}

var X86_64 = &Target{
	Name:     "x86_64",
	PtrSize:  8,
	PtrAlign: 8,
	primSize: [...]int64{
		parse.Void:    0,
		parse.Bool:    1,
		parse.Char:    1,
		parse.SChar:   1,
		parse.UChar:   1,
		parse.Short:   2,
		parse.UShort:  2,
		parse.Int:     4,
		parse.UInt:    4,
		parse.Long:    8,
		parse.ULong:   8,
		parse.LLong:   8,
		parse.ULLong:  8,
		parse.Float:   4,
		parse.Double:  8,
		parse.LDouble: 16,
	},
	primAlign: [...]int{
		parse.Void:    0,
		parse.Bool:    1,
		parse.Char:    1,
		parse.SChar:   1,
		parse.UChar:   1,
		parse.Short:   2,
		parse.UShort:  2,
		parse.Int:     4,
		parse.UInt:    4,
		parse.Long:    8,
		parse.ULong:   8,
		parse.LLong:   8,
		parse.ULLong:  8,
		parse.Float:   4,
		parse.Double:  8,
		parse.LDouble: 16,
	},
	MaxOffset: math.MaxInt64,
}

// I386 is the System V ILP32 ABI, where 8 byte scalars are only 4 aligned.
var I386 = &Target{
	Name:     "i386",
	PtrSize:  4,
	PtrAlign: 4,
	primSize: [...]int64{
		parse.Void:    0,
		parse.Bool:    1,
		parse.Char:    1,
		parse.SChar:   1,
		parse.UChar:   1,
		parse.Short:   2,
		parse.UShort:  2,
		parse.Int:     4,
		parse.UInt:    4,
		parse.Long:    4,
		parse.ULong:   4,
		parse.LLong:   8,
		parse.ULLong:  8,
		parse.Float:   4,
		parse.Double:  8,
		parse.LDouble: 12,
	},
	primAlign: [...]int{
		parse.Void:    0,
		parse.Bool:    1,
		parse.Char:    1,
		parse.SChar:   1,
		parse.UChar:   1,
		parse.Short:   2,
		parse.UShort:  2,
		parse.Int:     4,
		parse.UInt:    4,
		parse.Long:    4,
		parse.ULong:   4,
		parse.LLong:   4,
		parse.ULLong:  4,
		parse.Float:   4,
		parse.Double:  4,
		parse.LDouble: 4,
	},
	MaxOffset: math.MaxInt32,
}

var targets = map[string]*Target{
	X86_64.Name: X86_64,
	"amd64":     X86_64,
	I386.Name:   I386,
	"386":       I386,
}

func TargetByName(name string) (*Target, error) {
	t, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("unknown target %q, known targets are %v", name, TargetNames())
	}
	return t, nil
}

func TargetNames() []string {
	var names []string
	for k := range targets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (t *Target) PrimSize(k parse.PrimitiveKind) int64 { return t.primSize[k] }

func (t *Target) PrimAlign(k parse.PrimitiveKind) int { return t.primAlign[k] }
