package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sierra-toolchain/internal/casm"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/sierra"
	"github.com/roach88/sierra-toolchain/internal/typesize"
)

// loadFixture decodes a program from the shared testdata directory.
func loadFixture(t *testing.T, name string) *sierra.Program {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", "programs", name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	versioned, err := sierra.ParseVersionedProgram(path, data)
	require.NoError(t, err)
	artifact, err := versioned.IntoV1()
	require.NoError(t, err)
	return &artifact.Program
}

// compile runs the pipeline stages the compiler depends on.
func compile(t *testing.T, p *sierra.Program, cfg Config) (*casm.Program, error) {
	t.Helper()
	info, err := typesize.New(p)
	require.NoError(t, err)
	md, err := metadata.Compute(info.Registry)
	require.NoError(t, err)
	return Compile(info, md, cfg)
}

// programBuilder assembles small programs statement by statement.
type programBuilder struct {
	p *sierra.Program
}

func newProgram() *programBuilder {
	return &programBuilder{p: &sierra.Program{}}
}

func (b *programBuilder) typ(id uint64, name, generic string, args ...sierra.GenericArg) sierra.TypeID {
	tid := sierra.TypeID{ID: id, DebugName: name}
	b.p.TypeDeclarations = append(b.p.TypeDeclarations, sierra.TypeDeclaration{
		ID:     tid,
		LongID: sierra.ConcreteLongID{GenericID: generic, GenericArgs: args},
	})
	return tid
}

func (b *programBuilder) libfunc(id uint64, name, generic string, args ...sierra.GenericArg) sierra.LibfuncID {
	lid := sierra.LibfuncID{ID: id, DebugName: name}
	b.p.LibfuncDeclarations = append(b.p.LibfuncDeclarations, sierra.LibfuncDeclaration{
		ID:     lid,
		LongID: sierra.ConcreteLongID{GenericID: generic, GenericArgs: args},
	})
	return lid
}

func (b *programBuilder) stmt(s ...sierra.Statement) *programBuilder {
	b.p.Statements = append(b.p.Statements, s...)
	return b
}

func (b *programBuilder) fn(id uint64, name string, entry int, params []sierra.TypeID, rets ...sierra.TypeID) sierra.FunctionID {
	fid := sierra.FunctionID{ID: id, DebugName: name}
	f := sierra.Function{
		ID:         fid,
		Signature:  sierra.FunctionSignature{ParamTypes: params, RetTypes: rets},
		EntryPoint: sierra.StatementIdx(entry),
	}
	for i, ty := range params {
		f.Params = append(f.Params, sierra.Param{ID: sierra.VarID{ID: uint64(i)}, Type: ty})
	}
	b.p.Funcs = append(b.p.Funcs, f)
	return fid
}

func vars(ids ...uint64) []sierra.VarID {
	out := make([]sierra.VarID, len(ids))
	for i, id := range ids {
		out[i] = sierra.VarID{ID: id}
	}
	return out
}

func next(results ...uint64) sierra.BranchInfo {
	return sierra.BranchInfo{Target: sierra.Fallthrough, Results: vars(results...)}
}

func to(idx int, results ...uint64) sierra.BranchInfo {
	return sierra.BranchInfo{Target: sierra.JumpTo(sierra.StatementIdx(idx)), Results: vars(results...)}
}

func ret(ids ...uint64) sierra.Statement { return sierra.Return(vars(ids...)...) }

// isZeroProgram returns 1 for zero and its argument otherwise.
func isZeroProgram() *sierra.Program {
	b := newProgram()
	felt := b.typ(0, "felt252", "felt252")
	b.typ(1, "NonZero<felt252>", "NonZero", sierra.TypeArg(felt))
	isZero := b.libfunc(0, "felt252_is_zero", "felt252_is_zero")
	align := b.libfunc(1, "branch_align", "branch_align")
	one := b.libfunc(2, "felt252_const<1>", "felt252_const", sierra.ValueArg(1))
	store := b.libfunc(3, "store_temp<felt252>", "store_temp", sierra.TypeArg(felt))
	unwrap := b.libfunc(4, "unwrap_non_zero<felt252>", "unwrap_non_zero", sierra.TypeArg(felt))
	b.stmt(
		sierra.Invoke(isZero, vars(0), next(), to(5, 1)),
		sierra.Invoke(align, nil, next()),
		sierra.Invoke(one, nil, next(2)),
		sierra.Invoke(store, vars(2), next(2)),
		ret(2),
		sierra.Invoke(align, nil, next()),
		sierra.Invoke(unwrap, vars(1), next(3)),
		sierra.Invoke(store, vars(3), next(3)),
		ret(3),
	)
	b.fn(0, "is_zero_or_self", 0, []sierra.TypeID{felt}, felt)
	return b.p
}

// callProgram doubles 21 through a user function call.
func callProgram() *sierra.Program {
	b := newProgram()
	felt := b.typ(0, "felt252", "felt252")
	c21 := b.libfunc(0, "felt252_const<21>", "felt252_const", sierra.ValueArg(21))
	store := b.libfunc(1, "store_temp<felt252>", "store_temp", sierra.TypeArg(felt))
	call := b.libfunc(2, "function_call<user@double>", "function_call", sierra.UserFuncArg(sierra.FunctionID{ID: 1, DebugName: "double"}))
	dup := b.libfunc(3, "dup<felt252>", "dup", sierra.TypeArg(felt))
	add := b.libfunc(4, "felt252_add", "felt252_add")
	b.stmt(
		sierra.Invoke(c21, nil, next(0)),
		sierra.Invoke(store, vars(0), next(0)),
		sierra.Invoke(call, vars(0), next(1)),
		ret(1),
		sierra.Invoke(dup, vars(0), next(0, 1)),
		sierra.Invoke(add, vars(0, 1), next(2)),
		sierra.Invoke(store, vars(2), next(2)),
		ret(2),
	)
	b.fn(0, "main", 0, nil, felt)
	b.fn(1, "double", 4, []sierra.TypeID{felt}, felt)
	return b.p
}

// gasLoopProgram recurses until withdraw_gas runs out of gas.
func gasLoopProgram() *sierra.Program {
	b := newProgram()
	rc := b.typ(0, "RangeCheck", "RangeCheck")
	gas := b.typ(1, "GasBuiltin", "GasBuiltin")
	withdraw := b.libfunc(0, "withdraw_gas", "withdraw_gas")
	align := b.libfunc(1, "branch_align", "branch_align")
	storeRC := b.libfunc(2, "store_temp<RangeCheck>", "store_temp", sierra.TypeArg(rc))
	storeGas := b.libfunc(3, "store_temp<GasBuiltin>", "store_temp", sierra.TypeArg(gas))
	call := b.libfunc(4, "function_call<user@loop>", "function_call", sierra.UserFuncArg(sierra.FunctionID{ID: 0, DebugName: "loop"}))
	b.stmt(
		sierra.Invoke(withdraw, vars(0, 1), next(2, 3), to(6, 4, 5)),
		sierra.Invoke(align, nil, next()),
		sierra.Invoke(storeRC, vars(2), next(2)),
		sierra.Invoke(storeGas, vars(3), next(3)),
		sierra.Invoke(call, vars(2, 3), next(6, 7)),
		ret(6, 7),
		sierra.Invoke(align, nil, next()),
		sierra.Invoke(storeRC, vars(4), next(4)),
		sierra.Invoke(storeGas, vars(5), next(5)),
		ret(4, 5),
	)
	b.fn(0, "loop", 0, []sierra.TypeID{rc, gas}, rc, gas)
	return b.p
}

// arithmeticProgram exercises sub and mul with immediates and struct
// round trips.
func arithmeticProgram() *sierra.Program {
	b := newProgram()
	felt := b.typ(0, "felt252", "felt252")
	pair := b.typ(1, "Pair", "Struct", sierra.UserTypeArg(sierra.UserTypeID{ID: 0, DebugName: "Pair"}), sierra.TypeArg(felt), sierra.TypeArg(felt))
	five := b.libfunc(0, "felt252_const<5>", "felt252_const", sierra.ValueArg(5))
	sub := b.libfunc(1, "felt252_sub", "felt252_sub")
	mul := b.libfunc(2, "felt252_mul", "felt252_mul")
	construct := b.libfunc(3, "struct_construct<Pair>", "struct_construct", sierra.TypeArg(pair))
	deconstruct := b.libfunc(4, "struct_deconstruct<Pair>", "struct_deconstruct", sierra.TypeArg(pair))
	store := b.libfunc(5, "store_temp<felt252>", "store_temp", sierra.TypeArg(felt))
	storePair := b.libfunc(6, "store_temp<Pair>", "store_temp", sierra.TypeArg(pair))
	b.stmt(
		sierra.Invoke(construct, vars(0, 1), next(2)),
		sierra.Invoke(deconstruct, vars(2), next(0, 1)),
		sierra.Invoke(five, nil, next(3)),
		sierra.Invoke(five, nil, next(7)),
		sierra.Invoke(sub, vars(0, 3), next(4)),
		sierra.Invoke(mul, vars(7, 1), next(5)),
		sierra.Invoke(store, vars(4), next(4)),
		sierra.Invoke(store, vars(5), next(5)),
		sierra.Invoke(construct, vars(4, 5), next(6)),
		sierra.Invoke(storePair, vars(6), next(6)),
		ret(6),
	)
	b.fn(0, "arith", 0, []sierra.TypeID{felt, felt}, pair)
	return b.p
}
