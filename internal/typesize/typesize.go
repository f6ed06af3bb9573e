// Package typesize derives ProgramRegistryInfo: the memory size of every
// declared type, computed from an independently built registry.
package typesize

import (
	"fmt"

	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// Info carries the registry of a program together with its type sizes.
type Info struct {
	Registry *registry.Registry
	sizes    map[uint64]int
}

// New builds a fresh registry for program and records the size in cells of
// each declared type. Fails with the *registry.Error of an invalid program.
func New(program *sierra.Program) (*Info, error) {
	reg, err := registry.New(program)
	if err != nil {
		return nil, err
	}
	info := &Info{Registry: reg, sizes: make(map[uint64]int, len(program.TypeDeclarations))}
	for _, decl := range program.TypeDeclarations {
		ty, _ := reg.ConcreteType(decl.ID)
		info.sizes[decl.ID.ID] = ty.Info.Size
	}
	return info, nil
}

// Size returns the size in cells of a declared type.
func (i *Info) Size(id sierra.TypeID) (int, error) {
	size, ok := i.sizes[id.ID]
	if !ok {
		return 0, fmt.Errorf("type %s is not declared", id)
	}
	return size, nil
}

// TotalSize sums the sizes of a list of types.
func (i *Info) TotalSize(ids []sierra.TypeID) (int, error) {
	total := 0
	for _, id := range ids {
		size, err := i.Size(id)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}
