package sierra

import (
	"math/big"
)

// GenericArgKind discriminates the variants of GenericArg.
type GenericArgKind int

const (
	ArgType GenericArgKind = iota
	ArgUserType
	ArgValue
	ArgLibfunc
	ArgUserFunc
)

// String returns the serialized tag of the kind.
func (k GenericArgKind) String() string {
	switch k {
	case ArgType:
		return "Type"
	case ArgUserType:
		return "UserType"
	case ArgValue:
		return "Value"
	case ArgLibfunc:
		return "Libfunc"
	case ArgUserFunc:
		return "UserFunc"
	default:
		return "Unknown"
	}
}

// GenericArg is one argument of a generic type or libfunc.
// Exactly one payload field is meaningful, selected by Kind.
type GenericArg struct {
	Kind     GenericArgKind
	Type     TypeID
	UserType UserTypeID
	Value    *big.Int
	Libfunc  LibfuncID
	UserFunc FunctionID
}

// TypeArg builds a Type generic argument.
func TypeArg(id TypeID) GenericArg { return GenericArg{Kind: ArgType, Type: id} }

// ValueArg builds a Value generic argument.
func ValueArg(v int64) GenericArg { return GenericArg{Kind: ArgValue, Value: big.NewInt(v)} }

// UserTypeArg builds a UserType generic argument.
func UserTypeArg(id UserTypeID) GenericArg { return GenericArg{Kind: ArgUserType, UserType: id} }

// UserFuncArg builds a UserFunc generic argument.
func UserFuncArg(id FunctionID) GenericArg { return GenericArg{Kind: ArgUserFunc, UserFunc: id} }

// ConcreteLongID is a generic id together with its generic arguments.
type ConcreteLongID struct {
	GenericID   string       `json:"generic_id"`
	GenericArgs []GenericArg `json:"generic_args"`
}

// TypeDeclaration declares a concrete type.
type TypeDeclaration struct {
	ID     TypeID         `json:"id"`
	LongID ConcreteLongID `json:"long_id"`
}

// LibfuncDeclaration declares a concrete libfunc.
type LibfuncDeclaration struct {
	ID     LibfuncID      `json:"id"`
	LongID ConcreteLongID `json:"long_id"`
}

// BranchTarget is where control continues after a branch.
type BranchTarget struct {
	Fallthrough bool
	Statement   StatementIdx
}

// Fallthrough is the target that continues with the next statement.
var Fallthrough = BranchTarget{Fallthrough: true}

// JumpTo builds a target pointing to a statement.
func JumpTo(idx StatementIdx) BranchTarget { return BranchTarget{Statement: idx} }

// Resolve returns the statement index control reaches from statement at.
func (t BranchTarget) Resolve(at StatementIdx) StatementIdx {
	if t.Fallthrough {
		return at.Next()
	}
	return t.Statement
}

// BranchInfo is one branch of an invocation.
type BranchInfo struct {
	Target  BranchTarget `json:"target"`
	Results []VarID      `json:"results"`
}

// Invocation calls a libfunc.
type Invocation struct {
	LibfuncID LibfuncID    `json:"libfunc_id"`
	Args      []VarID      `json:"args"`
	Branches  []BranchInfo `json:"branches"`
}

// StatementKind discriminates Statement variants.
type StatementKind int

const (
	StatementInvocation StatementKind = iota
	StatementReturn
)

// Statement is either a libfunc invocation or a return.
type Statement struct {
	Kind       StatementKind
	Invocation Invocation
	Return     []VarID
}

// Invoke builds an invocation statement.
func Invoke(libfunc LibfuncID, args []VarID, branches ...BranchInfo) Statement {
	return Statement{
		Kind:       StatementInvocation,
		Invocation: Invocation{LibfuncID: libfunc, Args: args, Branches: branches},
	}
}

// Return builds a return statement.
func Return(vars ...VarID) Statement {
	return Statement{Kind: StatementReturn, Return: vars}
}

// FunctionSignature is the type signature of a user function.
type FunctionSignature struct {
	ParamTypes []TypeID `json:"param_types"`
	RetTypes   []TypeID `json:"ret_types"`
}

// Param is a typed function parameter.
type Param struct {
	ID   VarID  `json:"id"`
	Type TypeID `json:"ty"`
}

// Function is a user function declaration.
type Function struct {
	ID         FunctionID        `json:"id"`
	Signature  FunctionSignature `json:"signature"`
	Params     []Param           `json:"params"`
	EntryPoint StatementIdx      `json:"entry_point"`
}

// Program is a decoded Sierra program.
// A Program is immutable once loaded.
type Program struct {
	TypeDeclarations    []TypeDeclaration    `json:"type_declarations"`
	LibfuncDeclarations []LibfuncDeclaration `json:"libfunc_declarations"`
	Statements          []Statement          `json:"statements"`
	Funcs               []Function           `json:"funcs"`
}

