package extensions

import (
	"fmt"
	"math/big"

	"github.com/roach88/sierra-toolchain/internal/felt"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// TypeInfo holds the properties every concrete type carries.
type TypeInfo struct {
	LongID       sierra.ConcreteLongID
	Storable     bool
	Droppable    bool
	Duplicatable bool
	ZeroSized    bool
	Size         int // size in memory cells
}

// TypeKind identifies the generic type a concrete type was specialized from.
type TypeKind int

const (
	TypeFelt252 TypeKind = iota
	TypeUint
	TypeRangeCheck
	TypeGasBuiltin
	TypeNonZero
	TypeBox
	TypeStruct
	TypeConst
	TypeUninitialized
)

// ConcreteType is a specialized type declaration.
type ConcreteType struct {
	Kind     TypeKind
	Info     TypeInfo
	Bits     int               // TypeUint
	Inner    sierra.TypeID     // TypeNonZero, TypeBox, TypeConst, TypeUninitialized
	UserType sierra.UserTypeID // TypeStruct
	Members  []sierra.TypeID   // TypeStruct
	Value    *big.Int          // TypeConst
}

// TypeContext gives specialization access to previously declared types.
type TypeContext interface {
	// ConcreteType returns a type declared before the one being specialized.
	ConcreteType(id sierra.TypeID) (*ConcreteType, bool)
}

type typeSpecializer func(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error)

// UintWidths lists the bit widths of the unsigned integer types in the catalog.
var UintWidths = []int{8, 16, 32, 64, 128}

var coreTypes = map[string]typeSpecializer{
	"felt252":       specializeFelt252,
	"RangeCheck":    specializeBuiltin(TypeRangeCheck),
	"GasBuiltin":    specializeBuiltin(TypeGasBuiltin),
	"NonZero":       specializeNonZero,
	"Box":           specializeBox,
	"Struct":        specializeStruct,
	"Const":         specializeConst,
	"Uninitialized": specializeUninitialized,
}

func init() {
	for _, bits := range UintWidths {
		coreTypes[fmt.Sprintf("u%d", bits)] = specializeUint(bits)
	}
}

// SpecializeType resolves a type declaration's long id against the catalog.
func SpecializeType(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	specialize, ok := coreTypes[long.GenericID]
	if !ok {
		return nil, specErr(long.GenericID, "unsupported generic type")
	}
	return specialize(ctx, long)
}

func noArgs(long sierra.ConcreteLongID) error {
	if len(long.GenericArgs) != 0 {
		return specErr(long.GenericID, "expected no generic arguments, got %d", len(long.GenericArgs))
	}
	return nil
}

func plainInfo(long sierra.ConcreteLongID) TypeInfo {
	return TypeInfo{LongID: long, Storable: true, Droppable: true, Duplicatable: true, Size: 1}
}

func specializeFelt252(_ TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	if err := noArgs(long); err != nil {
		return nil, err
	}
	return &ConcreteType{Kind: TypeFelt252, Info: plainInfo(long)}, nil
}

func specializeUint(bits int) typeSpecializer {
	return func(_ TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
		if err := noArgs(long); err != nil {
			return nil, err
		}
		return &ConcreteType{Kind: TypeUint, Bits: bits, Info: plainInfo(long)}, nil
	}
}

// Builtins are linear: they can be neither dropped nor duplicated.
func specializeBuiltin(kind TypeKind) typeSpecializer {
	return func(_ TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
		if err := noArgs(long); err != nil {
			return nil, err
		}
		return &ConcreteType{Kind: kind, Info: TypeInfo{LongID: long, Storable: true, Size: 1}}, nil
	}
}

// singleTypeArg resolves the only argument of a wrapper type.
func singleTypeArg(ctx TypeContext, long sierra.ConcreteLongID) (sierra.TypeID, *ConcreteType, error) {
	if len(long.GenericArgs) != 1 {
		return sierra.TypeID{}, nil, specErr(long.GenericID, "expected 1 generic argument, got %d", len(long.GenericArgs))
	}
	return typeArgAt(ctx, long, 0)
}

func typeArgAt(ctx TypeContext, long sierra.ConcreteLongID, i int) (sierra.TypeID, *ConcreteType, error) {
	arg := long.GenericArgs[i]
	if arg.Kind != sierra.ArgType {
		return sierra.TypeID{}, nil, specErr(long.GenericID, "argument %d: expected a type, got %s", i, arg.Kind)
	}
	inner, ok := ctx.ConcreteType(arg.Type)
	if !ok {
		return sierra.TypeID{}, nil, specErr(long.GenericID, "argument %d: type %s is not declared before use", i, arg.Type)
	}
	return arg.Type, inner, nil
}

func specializeNonZero(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	id, inner, err := singleTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	if !inner.Info.Storable {
		return nil, specErr(long.GenericID, "wrapped type %s is not storable", id)
	}
	info := inner.Info
	info.LongID = long
	return &ConcreteType{Kind: TypeNonZero, Inner: id, Info: info}, nil
}

func specializeBox(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	id, inner, err := singleTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	if !inner.Info.Storable {
		return nil, specErr(long.GenericID, "boxed type %s is not storable", id)
	}
	info := TypeInfo{
		LongID:       long,
		Storable:     true,
		Droppable:    inner.Info.Droppable,
		Duplicatable: inner.Info.Duplicatable,
		Size:         1,
	}
	return &ConcreteType{Kind: TypeBox, Inner: id, Info: info}, nil
}

func specializeStruct(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	if len(long.GenericArgs) == 0 || long.GenericArgs[0].Kind != sierra.ArgUserType {
		return nil, specErr(long.GenericID, "first argument must be a user type")
	}
	info := TypeInfo{LongID: long, Storable: true, Droppable: true, Duplicatable: true}
	members := make([]sierra.TypeID, 0, len(long.GenericArgs)-1)
	for i := 1; i < len(long.GenericArgs); i++ {
		id, member, err := typeArgAt(ctx, long, i)
		if err != nil {
			return nil, err
		}
		if !member.Info.Storable {
			return nil, specErr(long.GenericID, "member %s is not storable", id)
		}
		info.Droppable = info.Droppable && member.Info.Droppable
		info.Duplicatable = info.Duplicatable && member.Info.Duplicatable
		info.Size += member.Info.Size
		members = append(members, id)
	}
	info.ZeroSized = info.Size == 0
	return &ConcreteType{
		Kind:     TypeStruct,
		UserType: long.GenericArgs[0].UserType,
		Members:  members,
		Info:     info,
	}, nil
}

// Const types are compile-time values; they never live in a variable.
func specializeConst(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	if len(long.GenericArgs) != 2 {
		return nil, specErr(long.GenericID, "expected 2 generic arguments, got %d", len(long.GenericArgs))
	}
	id, inner, err := typeArgAt(ctx, long, 0)
	if err != nil {
		return nil, err
	}
	valueArg := long.GenericArgs[1]
	if valueArg.Kind != sierra.ArgValue {
		return nil, specErr(long.GenericID, "argument 1: expected a value, got %s", valueArg.Kind)
	}
	if err := checkValueFits(long.GenericID, inner, valueArg.Value); err != nil {
		return nil, err
	}
	return &ConcreteType{
		Kind:  TypeConst,
		Inner: id,
		Value: valueArg.Value,
		Info:  TypeInfo{LongID: long, ZeroSized: true},
	}, nil
}

func specializeUninitialized(ctx TypeContext, long sierra.ConcreteLongID) (*ConcreteType, error) {
	id, inner, err := singleTypeArg(ctx, long)
	if err != nil {
		return nil, err
	}
	return &ConcreteType{
		Kind:  TypeUninitialized,
		Inner: id,
		Info:  TypeInfo{LongID: long, Droppable: true, Size: inner.Info.Size},
	}, nil
}

// checkValueFits verifies v is a valid constant of the given scalar type.
func checkValueFits(generic string, ty *ConcreteType, v *big.Int) error {
	switch ty.Kind {
	case TypeFelt252:
		if !felt.InRange(v) {
			return specErr(generic, "value %s is out of range for felt252", v)
		}
	case TypeUint:
		limit := new(big.Int).Lsh(big.NewInt(1), uint(ty.Bits))
		if v.Sign() < 0 || v.Cmp(limit) >= 0 {
			return specErr(generic, "value %s is out of range for u%d", v, ty.Bits)
		}
	default:
		return specErr(generic, "constants of %s are not supported", ty.Info.LongID.GenericID)
	}
	return nil
}
