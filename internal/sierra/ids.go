package sierra

import (
	"fmt"
)

// Identifier is the common shape of every Sierra id.
// Equality is defined by ID alone.
type Identifier struct {
	ID        uint64 `json:"id"`
	DebugName string `json:"debug_name,omitempty"`
}

// String renders the debug name when present, "[id]" otherwise.
func (i Identifier) String() string {
	if i.DebugName != "" {
		return i.DebugName
	}
	return fmt.Sprintf("[%d]", i.ID)
}

// TypeID identifies a concrete type declaration.
type TypeID Identifier

func (id TypeID) String() string { return Identifier(id).String() }

// LibfuncID identifies a concrete libfunc declaration.
type LibfuncID Identifier

func (id LibfuncID) String() string { return Identifier(id).String() }

// FunctionID identifies a user function.
type FunctionID Identifier

func (id FunctionID) String() string { return Identifier(id).String() }

// UserTypeID identifies a user type (the first argument of Struct and Enum).
type UserTypeID Identifier

func (id UserTypeID) String() string { return Identifier(id).String() }

// VarID identifies a variable inside a function body.
type VarID struct {
	ID uint64 `json:"id"`
}

func (id VarID) String() string { return fmt.Sprintf("[%d]", id.ID) }

// StatementIdx is the index of a statement in Program.Statements.
type StatementIdx int

// Next returns the statement index directly following this one.
func (s StatementIdx) Next() StatementIdx { return s + 1 }

func (s StatementIdx) String() string { return fmt.Sprintf("#%d", int(s)) }
