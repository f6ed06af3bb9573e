package extensions

import (
	"fmt"
	"math/big"

	"github.com/roach88/sierra-toolchain/internal/felt"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// ApChangeKind classifies how a branch moves the allocation pointer.
type ApChangeKind int

const (
	// ApKnown moves ap by a fixed number of cells.
	ApKnown ApChangeKind = iota
	// ApFunctionCall moves ap by the callee's ap change plus the call frame.
	ApFunctionCall
	// ApEnableTracking restarts ap tracking from a fresh base.
	ApEnableTracking
	// ApDisableTracking stops requiring equal ap at join points.
	ApDisableTracking
)

// ApChange is the static allocation pointer effect of one branch.
type ApChange struct {
	Kind   ApChangeKind
	Value  int               // ApKnown
	Callee sierra.FunctionID // ApFunctionCall
}

// KnownAp is a fixed ap change of n cells.
func KnownAp(n int) ApChange { return ApChange{Kind: ApKnown, Value: n} }

// BranchSignature describes the outputs of one libfunc branch.
type BranchSignature struct {
	Outputs  []sierra.TypeID
	ApChange ApChange
}

// NoFallthrough marks a signature without a fallthrough branch.
const NoFallthrough = -1

// Signature is the type signature of a concrete libfunc.
type Signature struct {
	Params            []sierra.TypeID
	Branches          []BranchSignature
	FallthroughBranch int // index of the branch continuing to the next statement, or NoFallthrough
}

// LibfuncKind identifies the generic libfunc a concrete libfunc came from.
type LibfuncKind int

const (
	LibFelt252Const LibfuncKind = iota
	LibFelt252BinaryOp
	LibFelt252IsZero
	LibUintConst
	LibUintToFelt252
	LibStoreTemp
	LibRename
	LibDrop
	LibDup
	LibJump
	LibBranchAlign
	LibDisableApTracking
	LibEnableApTracking
	LibFunctionCall
	LibWithdrawGas
	LibStructConstruct
	LibStructDeconstruct
	LibUnbox
	LibUnwrapNonZero
	LibConstAsImmediate
	LibConstAsBox
)

// BinaryOp is the arithmetic operation of a felt252 binary libfunc.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
)

// MaxConstSegment bounds the segment index accepted by const_as_box.
const MaxConstSegment = 1 << 16

// ConcreteLibfunc is a specialized libfunc declaration.
type ConcreteLibfunc struct {
	Kind      LibfuncKind
	Signature Signature
	Type      sierra.TypeID    // primary type argument, when the generic takes one
	Op        BinaryOp         // LibFelt252BinaryOp
	Value     *big.Int         // constant value
	Callee    *sierra.Function // LibFunctionCall
	Segment   int              // LibConstAsBox
}

// LibfuncContext gives libfunc specialization access to declared types and
// user functions.
type LibfuncContext interface {
	TypeContext
	// LookupType finds the declared concrete type with the given long id.
	LookupType(long sierra.ConcreteLongID) (sierra.TypeID, bool)
	// Function returns a user function by id.
	Function(id sierra.FunctionID) (*sierra.Function, bool)
}

type libfuncSpecializer func(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error)

var coreLibfuncs = map[string]libfuncSpecializer{
	"felt252_const":       specializeFelt252Const,
	"felt252_add":         specializeFelt252BinaryOp(OpAdd),
	"felt252_sub":         specializeFelt252BinaryOp(OpSub),
	"felt252_mul":         specializeFelt252BinaryOp(OpMul),
	"felt252_is_zero":     specializeFelt252IsZero,
	"store_temp":          specializeStoreTemp,
	"rename":              specializeRename,
	"drop":                specializeDrop,
	"dup":                 specializeDup,
	"jump":                specializeJump,
	"branch_align":        specializeNoop(LibBranchAlign, KnownAp(0)),
	"disable_ap_tracking": specializeNoop(LibDisableApTracking, ApChange{Kind: ApDisableTracking}),
	"enable_ap_tracking":  specializeNoop(LibEnableApTracking, ApChange{Kind: ApEnableTracking}),
	"function_call":       specializeFunctionCall,
	"withdraw_gas":        specializeWithdrawGas,
	"struct_construct":    specializeStructConstruct,
	"struct_deconstruct":  specializeStructDeconstruct,
	"unbox":               specializeUnbox,
	"unwrap_non_zero":     specializeUnwrapNonZero,
	"const_as_immediate":  specializeConstAsImmediate,
	"const_as_box":        specializeConstAsBox,
}

func init() {
	for _, bits := range UintWidths {
		coreLibfuncs[fmt.Sprintf("u%d_const", bits)] = specializeUintConst(bits)
		coreLibfuncs[fmt.Sprintf("u%d_to_felt252", bits)] = specializeUintToFelt252(bits)
	}
}

// SpecializeLibfunc resolves a libfunc declaration's long id against the
// catalog.
func SpecializeLibfunc(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	specialize, ok := coreLibfuncs[long.GenericID]
	if !ok {
		return nil, specErr(long.GenericID, "unsupported generic libfunc")
	}
	return specialize(ctx, long)
}

// single builds a signature with one fallthrough branch.
func single(params []sierra.TypeID, outputs []sierra.TypeID, ap ApChange) Signature {
	return Signature{
		Params:            params,
		Branches:          []BranchSignature{{Outputs: outputs, ApChange: ap}},
		FallthroughBranch: 0,
	}
}

func types(ids ...sierra.TypeID) []sierra.TypeID { return ids }

// requireType looks up a concrete type the libfunc's signature depends on.
func requireType(ctx LibfuncContext, generic string, long sierra.ConcreteLongID) (sierra.TypeID, error) {
	id, ok := ctx.LookupType(long)
	if !ok {
		return sierra.TypeID{}, specErr(generic, "required type %s is not declared", long)
	}
	return id, nil
}

func feltType(ctx LibfuncContext, generic string) (sierra.TypeID, error) {
	return requireType(ctx, generic, sierra.ConcreteLongID{GenericID: "felt252"})
}

func wrapped(wrapper string, inner sierra.TypeID) sierra.ConcreteLongID {
	return sierra.ConcreteLongID{GenericID: wrapper, GenericArgs: []sierra.GenericArg{sierra.TypeArg(inner)}}
}

// libfuncTypeArg resolves the only generic argument as a declared type.
func libfuncTypeArg(ctx LibfuncContext, long sierra.ConcreteLongID) (sierra.TypeID, *ConcreteType, error) {
	return singleTypeArg(ctx, long)
}

func valueArg(long sierra.ConcreteLongID) (*big.Int, error) {
	if len(long.GenericArgs) != 1 || long.GenericArgs[0].Kind != sierra.ArgValue {
		return nil, specErr(long.GenericID, "expected a single value argument")
	}
	return long.GenericArgs[0].Value, nil
}

func specializeFelt252Const(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	v, err := valueArg(long)
	if err != nil {
		return nil, err
	}
	if !felt.InRange(v) {
		return nil, specErr(long.GenericID, "value %s is out of range for felt252", v)
	}
	f, err := feltType(ctx, long.GenericID)
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibFelt252Const,
		Value:     v,
		Type:      f,
		Signature: single(nil, types(f), KnownAp(0)),
	}, nil
}

func specializeFelt252BinaryOp(op BinaryOp) libfuncSpecializer {
	return func(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
		if err := noArgs(long); err != nil {
			return nil, err
		}
		f, err := feltType(ctx, long.GenericID)
		if err != nil {
			return nil, err
		}
		return &ConcreteLibfunc{
			Kind:      LibFelt252BinaryOp,
			Op:        op,
			Type:      f,
			Signature: single(types(f, f), types(f), KnownAp(0)),
		}, nil
	}
}

// felt252_is_zero falls through when the value is zero and jumps otherwise.
func specializeFelt252IsZero(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if err := noArgs(long); err != nil {
		return nil, err
	}
	f, err := feltType(ctx, long.GenericID)
	if err != nil {
		return nil, err
	}
	nonZero, err := requireType(ctx, long.GenericID, wrapped("NonZero", f))
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind: LibFelt252IsZero,
		Type: f,
		Signature: Signature{
			Params: types(f),
			Branches: []BranchSignature{
				{ApChange: KnownAp(0)},
				{Outputs: types(nonZero), ApChange: KnownAp(0)},
			},
			FallthroughBranch: 0,
		},
	}, nil
}

func uintType(ctx LibfuncContext, generic string, bits int) (sierra.TypeID, error) {
	return requireType(ctx, generic, sierra.ConcreteLongID{GenericID: fmt.Sprintf("u%d", bits)})
}

func specializeUintConst(bits int) libfuncSpecializer {
	return func(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
		v, err := valueArg(long)
		if err != nil {
			return nil, err
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		if v.Sign() < 0 || v.Cmp(limit) >= 0 {
			return nil, specErr(long.GenericID, "value %s is out of range for u%d", v, bits)
		}
		u, err := uintType(ctx, long.GenericID, bits)
		if err != nil {
			return nil, err
		}
		return &ConcreteLibfunc{
			Kind:      LibUintConst,
			Value:     v,
			Type:      u,
			Signature: single(nil, types(u), KnownAp(0)),
		}, nil
	}
}

func specializeUintToFelt252(bits int) libfuncSpecializer {
	return func(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
		if err := noArgs(long); err != nil {
			return nil, err
		}
		u, err := uintType(ctx, long.GenericID, bits)
		if err != nil {
			return nil, err
		}
		f, err := feltType(ctx, long.GenericID)
		if err != nil {
			return nil, err
		}
		return &ConcreteLibfunc{
			Kind:      LibUintToFelt252,
			Type:      u,
			Signature: single(types(u), types(f), KnownAp(0)),
		}, nil
	}
}

func specializeStoreTemp(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, ty, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	if !ty.Info.Storable {
		return nil, specErr(long.GenericID, "type %s is not storable", id)
	}
	return &ConcreteLibfunc{
		Kind:      LibStoreTemp,
		Type:      id,
		Signature: single(types(id), types(id), KnownAp(ty.Info.Size)),
	}, nil
}

func specializeRename(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, _, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibRename,
		Type:      id,
		Signature: single(types(id), types(id), KnownAp(0)),
	}, nil
}

func specializeDrop(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, ty, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	if !ty.Info.Droppable {
		return nil, specErr(long.GenericID, "type %s is not droppable", id)
	}
	return &ConcreteLibfunc{
		Kind:      LibDrop,
		Type:      id,
		Signature: single(types(id), nil, KnownAp(0)),
	}, nil
}

func specializeDup(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, ty, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	if !ty.Info.Duplicatable {
		return nil, specErr(long.GenericID, "type %s is not duplicatable", id)
	}
	return &ConcreteLibfunc{
		Kind:      LibDup,
		Type:      id,
		Signature: single(types(id), types(id, id), KnownAp(0)),
	}, nil
}

func specializeJump(_ LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if err := noArgs(long); err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind: LibJump,
		Signature: Signature{
			Branches:          []BranchSignature{{ApChange: KnownAp(0)}},
			FallthroughBranch: NoFallthrough,
		},
	}, nil
}

func specializeNoop(kind LibfuncKind, ap ApChange) libfuncSpecializer {
	return func(_ LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
		if err := noArgs(long); err != nil {
			return nil, err
		}
		return &ConcreteLibfunc{Kind: kind, Signature: single(nil, nil, ap)}, nil
	}
}

func specializeFunctionCall(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if len(long.GenericArgs) != 1 || long.GenericArgs[0].Kind != sierra.ArgUserFunc {
		return nil, specErr(long.GenericID, "expected a single user function argument")
	}
	id := long.GenericArgs[0].UserFunc
	fn, ok := ctx.Function(id)
	if !ok {
		return nil, specErr(long.GenericID, "function %s is not declared", id)
	}
	return &ConcreteLibfunc{
		Kind:   LibFunctionCall,
		Callee: fn,
		Signature: single(
			fn.Signature.ParamTypes,
			fn.Signature.RetTypes,
			ApChange{Kind: ApFunctionCall, Callee: fn.ID},
		),
	}, nil
}

// withdraw_gas falls through on success and jumps when out of gas. Both
// branches hand back the builtins.
func specializeWithdrawGas(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if err := noArgs(long); err != nil {
		return nil, err
	}
	rangeCheck, err := requireType(ctx, long.GenericID, sierra.ConcreteLongID{GenericID: "RangeCheck"})
	if err != nil {
		return nil, err
	}
	gas, err := requireType(ctx, long.GenericID, sierra.ConcreteLongID{GenericID: "GasBuiltin"})
	if err != nil {
		return nil, err
	}
	builtins := types(rangeCheck, gas)
	return &ConcreteLibfunc{
		Kind: LibWithdrawGas,
		Signature: Signature{
			Params: builtins,
			Branches: []BranchSignature{
				{Outputs: builtins, ApChange: KnownAp(1)},
				{Outputs: builtins, ApChange: KnownAp(1)},
			},
			FallthroughBranch: 0,
		},
	}, nil
}

func structArg(ctx LibfuncContext, long sierra.ConcreteLongID) (sierra.TypeID, *ConcreteType, error) {
	id, ty, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return sierra.TypeID{}, nil, err
	}
	if ty.Kind != TypeStruct {
		return sierra.TypeID{}, nil, specErr(long.GenericID, "type %s is not a struct", id)
	}
	return id, ty, nil
}

func specializeStructConstruct(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, ty, err := structArg(ctx, long)
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibStructConstruct,
		Type:      id,
		Signature: single(ty.Members, types(id), KnownAp(0)),
	}, nil
}

func specializeStructDeconstruct(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, ty, err := structArg(ctx, long)
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibStructDeconstruct,
		Type:      id,
		Signature: single(types(id), ty.Members, KnownAp(0)),
	}, nil
}

func specializeUnbox(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, _, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	box, err := requireType(ctx, long.GenericID, wrapped("Box", id))
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibUnbox,
		Type:      id,
		Signature: single(types(box), types(id), KnownAp(0)),
	}, nil
}

func specializeUnwrapNonZero(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	id, _, err := libfuncTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	nonZero, err := requireType(ctx, long.GenericID, wrapped("NonZero", id))
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibUnwrapNonZero,
		Type:      id,
		Signature: single(types(nonZero), types(id), KnownAp(0)),
	}, nil
}

// constArg resolves argument i as a declared Const type.
func constArg(ctx LibfuncContext, long sierra.ConcreteLongID, i int) (*ConcreteType, error) {
	id, ty, err := typeArgAt(ctx, long, i)
	if err != nil {
		return nil, err
	}
	if ty.Kind != TypeConst {
		return nil, specErr(long.GenericID, "type %s is not a Const type", id)
	}
	return ty, nil
}

func specializeConstAsImmediate(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if len(long.GenericArgs) != 1 {
		return nil, specErr(long.GenericID, "expected 1 generic argument, got %d", len(long.GenericArgs))
	}
	c, err := constArg(ctx, long, 0)
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibConstAsImmediate,
		Type:      c.Inner,
		Value:     c.Value,
		Signature: single(nil, types(c.Inner), KnownAp(0)),
	}, nil
}

func specializeConstAsBox(ctx LibfuncContext, long sierra.ConcreteLongID) (*ConcreteLibfunc, error) {
	if len(long.GenericArgs) != 2 {
		return nil, specErr(long.GenericID, "expected 2 generic arguments, got %d", len(long.GenericArgs))
	}
	c, err := constArg(ctx, long, 0)
	if err != nil {
		return nil, err
	}
	segArg := long.GenericArgs[1]
	if segArg.Kind != sierra.ArgValue {
		return nil, specErr(long.GenericID, "argument 1: expected a segment index value")
	}
	if segArg.Value.Sign() < 0 || segArg.Value.Cmp(big.NewInt(MaxConstSegment)) >= 0 {
		return nil, specErr(long.GenericID, "segment index %s is out of range", segArg.Value)
	}
	box, err := requireType(ctx, long.GenericID, wrapped("Box", c.Inner))
	if err != nil {
		return nil, err
	}
	return &ConcreteLibfunc{
		Kind:      LibConstAsBox,
		Type:      c.Inner,
		Value:     c.Value,
		Segment:   int(segArg.Value.Int64()),
		Signature: single(nil, types(box), KnownAp(1)),
	}, nil
}
