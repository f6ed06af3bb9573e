package extensions

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// testContext declares types one at a time, the way the registry does.
type testContext struct {
	types map[uint64]*ConcreteType
	keys  map[string]sierra.TypeID
	funcs map[uint64]*sierra.Function
}

func newTestContext() *testContext {
	return &testContext{
		types: make(map[uint64]*ConcreteType),
		keys:  make(map[string]sierra.TypeID),
		funcs: make(map[uint64]*sierra.Function),
	}
}

func (c *testContext) ConcreteType(id sierra.TypeID) (*ConcreteType, bool) {
	ty, ok := c.types[id.ID]
	return ty, ok
}

func (c *testContext) LookupType(long sierra.ConcreteLongID) (sierra.TypeID, bool) {
	id, ok := c.keys[LongIDKey(long)]
	return id, ok
}

func (c *testContext) Function(id sierra.FunctionID) (*sierra.Function, bool) {
	fn, ok := c.funcs[id.ID]
	return fn, ok
}

func (c *testContext) declare(t *testing.T, id uint64, long sierra.ConcreteLongID) sierra.TypeID {
	t.Helper()
	ty, err := SpecializeType(c, long)
	require.NoError(t, err)
	tid := sierra.TypeID{ID: id}
	c.types[id] = ty
	c.keys[LongIDKey(long)] = tid
	return tid
}

func long(generic string, args ...sierra.GenericArg) sierra.ConcreteLongID {
	return sierra.ConcreteLongID{GenericID: generic, GenericArgs: args}
}

func TestSpecializeType_Builtins(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	rc := ctx.declare(t, 1, long("RangeCheck"))

	feltTy, _ := ctx.ConcreteType(felt)
	assert.Equal(t, TypeFelt252, feltTy.Kind)
	assert.True(t, feltTy.Info.Droppable)
	assert.True(t, feltTy.Info.Duplicatable)
	assert.Equal(t, 1, feltTy.Info.Size)

	rcTy, _ := ctx.ConcreteType(rc)
	assert.True(t, rcTy.Info.Storable)
	assert.False(t, rcTy.Info.Droppable)
	assert.False(t, rcTy.Info.Duplicatable)
}

func TestSpecializeType_Uints(t *testing.T) {
	ctx := newTestContext()
	for i, bits := range UintWidths {
		id := ctx.declare(t, uint64(i), long(fmt.Sprintf("u%d", bits)))
		ty, _ := ctx.ConcreteType(id)
		assert.Equal(t, TypeUint, ty.Kind)
		assert.Equal(t, bits, ty.Bits)
	}
}

func TestSpecializeType_Struct(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	rc := ctx.declare(t, 1, long("RangeCheck"))
	pair := ctx.declare(t, 2, long("Struct",
		sierra.UserTypeArg(sierra.UserTypeID{ID: 9, DebugName: "Pair"}),
		sierra.TypeArg(felt), sierra.TypeArg(rc)))

	ty, _ := ctx.ConcreteType(pair)
	assert.Equal(t, TypeStruct, ty.Kind)
	assert.Equal(t, 2, ty.Info.Size)
	assert.False(t, ty.Info.Droppable, "a member that cannot be dropped makes the struct linear")
	assert.Equal(t, []sierra.TypeID{felt, rc}, ty.Members)

	empty := ctx.declare(t, 3, long("Struct", sierra.UserTypeArg(sierra.UserTypeID{ID: 10})))
	emptyTy, _ := ctx.ConcreteType(empty)
	assert.True(t, emptyTy.Info.ZeroSized)
}

func TestSpecializeType_Errors(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))

	tests := []struct {
		name string
		long sierra.ConcreteLongID
		msg  string
	}{
		{"unknown generic", long("Array", sierra.TypeArg(felt)), "unsupported generic type"},
		{"felt with args", long("felt252", sierra.ValueArg(1)), "expected no generic arguments"},
		{"undeclared inner", long("Box", sierra.TypeArg(sierra.TypeID{ID: 42})), "not declared before use"},
		{"value where type expected", long("NonZero", sierra.ValueArg(3)), "expected a type"},
		{"struct without user type", long("Struct", sierra.TypeArg(felt)), "first argument must be a user type"},
		{"u8 const overflow", long("Const", sierra.TypeArg(ctx.declare(t, 1, long("u8"))), sierra.ValueArg(256)), "out of range for u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SpecializeType(ctx, tt.long)
			require.Error(t, err)
			var specErr *SpecializationError
			require.ErrorAs(t, err, &specErr)
			assert.Equal(t, tt.long.GenericID, specErr.GenericID)
			assert.Contains(t, specErr.Message, tt.msg)
		})
	}
}

func TestSpecializeType_ConstFeltRange(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))

	prime, _ := new(big.Int).SetString("3618502788666131213697322783095070105623107215331596699973092056135872020481", 10)
	_, err := SpecializeType(ctx, long("Const", sierra.TypeArg(felt), sierra.GenericArg{Kind: sierra.ArgValue, Value: prime}))
	require.Error(t, err)

	ty, err := SpecializeType(ctx, long("Const", sierra.TypeArg(felt), sierra.ValueArg(-7)))
	require.NoError(t, err)
	assert.Equal(t, TypeConst, ty.Kind)
	assert.False(t, ty.Info.Storable)
	assert.Equal(t, int64(-7), ty.Value.Int64())
}

func TestSpecializeLibfunc_Signatures(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	nz := ctx.declare(t, 1, long("NonZero", sierra.TypeArg(felt)))

	add, err := SpecializeLibfunc(ctx, long("felt252_add"))
	require.NoError(t, err)
	assert.Equal(t, LibFelt252BinaryOp, add.Kind)
	assert.Equal(t, OpAdd, add.Op)
	assert.Equal(t, []sierra.TypeID{felt, felt}, add.Signature.Params)
	require.Len(t, add.Signature.Branches, 1)
	assert.Equal(t, 0, add.Signature.FallthroughBranch)

	isZero, err := SpecializeLibfunc(ctx, long("felt252_is_zero"))
	require.NoError(t, err)
	require.Len(t, isZero.Signature.Branches, 2)
	assert.Empty(t, isZero.Signature.Branches[0].Outputs)
	assert.Equal(t, []sierra.TypeID{nz}, isZero.Signature.Branches[1].Outputs)

	store, err := SpecializeLibfunc(ctx, long("store_temp", sierra.TypeArg(felt)))
	require.NoError(t, err)
	assert.Equal(t, KnownAp(1), store.Signature.Branches[0].ApChange)

	jump, err := SpecializeLibfunc(ctx, long("jump"))
	require.NoError(t, err)
	assert.Equal(t, NoFallthrough, jump.Signature.FallthroughBranch)

	dup, err := SpecializeLibfunc(ctx, long("dup", sierra.TypeArg(felt)))
	require.NoError(t, err)
	assert.Equal(t, []sierra.TypeID{felt, felt}, dup.Signature.Branches[0].Outputs)
}

func TestSpecializeLibfunc_FunctionCall(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	fn := &sierra.Function{
		ID:        sierra.FunctionID{ID: 3, DebugName: "double"},
		Signature: sierra.FunctionSignature{ParamTypes: []sierra.TypeID{felt}, RetTypes: []sierra.TypeID{felt}},
	}
	ctx.funcs[3] = fn

	call, err := SpecializeLibfunc(ctx, long("function_call", sierra.UserFuncArg(fn.ID)))
	require.NoError(t, err)
	assert.Same(t, fn, call.Callee)
	assert.Equal(t, ApFunctionCall, call.Signature.Branches[0].ApChange.Kind)
	assert.Equal(t, fn.ID, call.Signature.Branches[0].ApChange.Callee)

	_, err = SpecializeLibfunc(ctx, long("function_call", sierra.UserFuncArg(sierra.FunctionID{ID: 4})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not declared")
}

func TestSpecializeLibfunc_Errors(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	rc := ctx.declare(t, 1, long("RangeCheck"))
	u8 := ctx.declare(t, 2, long("u8"))
	c := ctx.declare(t, 3, long("Const", sierra.TypeArg(felt), sierra.ValueArg(5)))

	tests := []struct {
		name string
		long sierra.ConcreteLongID
		msg  string
	}{
		{"unknown libfunc", long("array_new"), "unsupported generic libfunc"},
		{"drop linear type", long("drop", sierra.TypeArg(rc)), "not droppable"},
		{"dup linear type", long("dup", sierra.TypeArg(rc)), "not duplicatable"},
		{"store_temp of const", long("store_temp", sierra.TypeArg(c)), "not storable"},
		{"u8 const overflow", long("u8_const", sierra.ValueArg(300)), "out of range for u8"},
		{"unwrap without NonZero", long("unwrap_non_zero", sierra.TypeArg(u8)), "is not declared"},
		{"withdraw_gas without builtins", long("withdraw_gas"), "is not declared"},
		{"const_as_box without Box", long("const_as_box", sierra.TypeArg(c), sierra.ValueArg(0)), "is not declared"},
		{"const_as_immediate of non-const", long("const_as_immediate", sierra.TypeArg(felt)), "is not a Const type"},
		{"struct_construct of non-struct", long("struct_construct", sierra.TypeArg(felt)), "is not a struct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SpecializeLibfunc(ctx, tt.long)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSpecializeLibfunc_ConstAsBox(t *testing.T) {
	ctx := newTestContext()
	felt := ctx.declare(t, 0, long("felt252"))
	c := ctx.declare(t, 1, long("Const", sierra.TypeArg(felt), sierra.ValueArg(7)))
	box := ctx.declare(t, 2, long("Box", sierra.TypeArg(felt)))

	lib, err := SpecializeLibfunc(ctx, long("const_as_box", sierra.TypeArg(c), sierra.ValueArg(3)))
	require.NoError(t, err)
	assert.Equal(t, LibConstAsBox, lib.Kind)
	assert.Equal(t, 3, lib.Segment)
	assert.Equal(t, int64(7), lib.Value.Int64())
	assert.Equal(t, []sierra.TypeID{box}, lib.Signature.Branches[0].Outputs)

	_, err = SpecializeLibfunc(ctx, long("const_as_box", sierra.TypeArg(c), sierra.ValueArg(MaxConstSegment)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment index")
}

func TestLongIDKey(t *testing.T) {
	a := long("NonZero", sierra.TypeArg(sierra.TypeID{ID: 1, DebugName: "felt252"}))
	b := long("NonZero", sierra.TypeArg(sierra.TypeID{ID: 1}))
	assert.Equal(t, LongIDKey(a), LongIDKey(b), "debug names do not affect the key")
	assert.Equal(t, "NonZero<t1>", LongIDKey(a))
	assert.Equal(t, "Const<t0,v-3>", LongIDKey(long("Const", sierra.TypeArg(sierra.TypeID{}), sierra.ValueArg(-3))))
}
