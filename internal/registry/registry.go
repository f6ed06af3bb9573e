// Package registry validates a Sierra program by building its
// ProgramRegistry: every type and libfunc declaration specialized, every
// function signature and statement checked against those specializations.
//
// A Registry only exists for a valid program. Construction stops at the
// first violation and reports it as an *Error.
package registry

import (
	"fmt"

	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// Registry error codes (E110-E129)
const (
	ErrDuplicateID           = "E110" // id declared twice
	ErrUndeclaredType        = "E111" // type referenced but not declared
	ErrParamMismatch         = "E112" // params disagree with signature param_types
	ErrEntryPointOutOfRange  = "E113" // function entry point past the statements
	ErrTypeSpecialization    = "E114" // type declaration cannot be specialized
	ErrLibfuncSpecialization = "E115" // libfunc declaration cannot be specialized
	ErrUndeclaredLibfunc     = "E116" // statement invokes an undeclared libfunc
	ErrArgCount              = "E117" // wrong number of invocation args
	ErrBranchCount           = "E118" // wrong number of invocation branches
	ErrResultCount           = "E119" // wrong number of branch results
	ErrFallthroughMisuse     = "E120" // Fallthrough on a non-fallthrough branch or vice versa
	ErrTargetOutOfRange      = "E121" // branch target past the statements
	ErrDuplicateParam        = "E122" // function binds the same var id twice
)

// Error reports the first violation found while building a registry.
type Error struct {
	Code    string `json:"code"`
	Subject string `json:"subject"` // e.g. "statement #3", "libfunc [7]"
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Subject, e.Message)
}

func newError(code, subject, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Registry holds the specialized declarations of a validated program.
// Lookups are by numeric id; debug names never affect identity.
type Registry struct {
	program  *sierra.Program
	types    map[uint64]*extensions.ConcreteType
	typeKeys map[string]sierra.TypeID
	libfuncs map[uint64]*extensions.ConcreteLibfunc
	funcs    map[uint64]*sierra.Function
}

// New validates program and returns its registry.
func New(program *sierra.Program) (*Registry, error) {
	r := &Registry{
		program:  program,
		types:    make(map[uint64]*extensions.ConcreteType, len(program.TypeDeclarations)),
		typeKeys: make(map[string]sierra.TypeID, len(program.TypeDeclarations)),
		libfuncs: make(map[uint64]*extensions.ConcreteLibfunc, len(program.LibfuncDeclarations)),
		funcs:    make(map[uint64]*sierra.Function, len(program.Funcs)),
	}

	steps := []func() error{
		r.checkDuplicates,
		r.checkFunctions,
		r.specializeTypes,
		r.specializeLibfuncs,
		r.checkStatements,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Program returns the program the registry was built from.
func (r *Registry) Program() *sierra.Program { return r.program }

// ConcreteType returns the specialized type declared with id.
func (r *Registry) ConcreteType(id sierra.TypeID) (*extensions.ConcreteType, bool) {
	ty, ok := r.types[id.ID]
	return ty, ok
}

// LookupType finds the declared type with the given long id.
func (r *Registry) LookupType(long sierra.ConcreteLongID) (sierra.TypeID, bool) {
	id, ok := r.typeKeys[extensions.LongIDKey(long)]
	return id, ok
}

// Libfunc returns the specialized libfunc declared with id.
func (r *Registry) Libfunc(id sierra.LibfuncID) (*extensions.ConcreteLibfunc, bool) {
	lib, ok := r.libfuncs[id.ID]
	return lib, ok
}

// Function returns the user function declared with id.
func (r *Registry) Function(id sierra.FunctionID) (*sierra.Function, bool) {
	fn, ok := r.funcs[id.ID]
	return fn, ok
}

func (r *Registry) checkDuplicates() error {
	seenTypes := make(map[uint64]bool)
	for _, decl := range r.program.TypeDeclarations {
		if seenTypes[decl.ID.ID] {
			return newError(ErrDuplicateID, "type "+decl.ID.String(), "type id %d is declared more than once", decl.ID.ID)
		}
		seenTypes[decl.ID.ID] = true
	}
	seenLibfuncs := make(map[uint64]bool)
	for _, decl := range r.program.LibfuncDeclarations {
		if seenLibfuncs[decl.ID.ID] {
			return newError(ErrDuplicateID, "libfunc "+decl.ID.String(), "libfunc id %d is declared more than once", decl.ID.ID)
		}
		seenLibfuncs[decl.ID.ID] = true
	}
	for i := range r.program.Funcs {
		fn := &r.program.Funcs[i]
		if _, dup := r.funcs[fn.ID.ID]; dup {
			return newError(ErrDuplicateID, "function "+fn.ID.String(), "function id %d is declared more than once", fn.ID.ID)
		}
		r.funcs[fn.ID.ID] = fn
	}
	return nil
}

func (r *Registry) checkFunctions() error {
	declared := make(map[uint64]bool, len(r.program.TypeDeclarations))
	for _, decl := range r.program.TypeDeclarations {
		declared[decl.ID.ID] = true
	}

	for _, fn := range r.program.Funcs {
		subject := "function " + fn.ID.String()
		for _, ty := range fn.Signature.ParamTypes {
			if !declared[ty.ID] {
				return newError(ErrUndeclaredType, subject, "param type %s is not declared", ty)
			}
		}
		for _, ty := range fn.Signature.RetTypes {
			if !declared[ty.ID] {
				return newError(ErrUndeclaredType, subject, "return type %s is not declared", ty)
			}
		}
		if len(fn.Params) != len(fn.Signature.ParamTypes) {
			return newError(ErrParamMismatch, subject, "%d params for %d param types", len(fn.Params), len(fn.Signature.ParamTypes))
		}
		bound := make(map[uint64]bool, len(fn.Params))
		for i, p := range fn.Params {
			if p.Type.ID != fn.Signature.ParamTypes[i].ID {
				return newError(ErrParamMismatch, subject, "param %s has type %s, signature expects %s", p.ID, p.Type, fn.Signature.ParamTypes[i])
			}
			if bound[p.ID.ID] {
				return newError(ErrDuplicateParam, subject, "param %s is declared more than once", p.ID)
			}
			bound[p.ID.ID] = true
		}
		// An entry point equal to the statement count is an empty body.
		if fn.EntryPoint < 0 || int(fn.EntryPoint) > len(r.program.Statements) {
			return newError(ErrEntryPointOutOfRange, subject, "entry point %s is out of range (%d statements)", fn.EntryPoint, len(r.program.Statements))
		}
	}
	return nil
}

func (r *Registry) specializeTypes() error {
	for _, decl := range r.program.TypeDeclarations {
		ty, err := extensions.SpecializeType(r, decl.LongID)
		if err != nil {
			return newError(ErrTypeSpecialization, "type "+decl.ID.String(), "%v", err)
		}
		r.types[decl.ID.ID] = ty
		key := extensions.LongIDKey(decl.LongID)
		if _, exists := r.typeKeys[key]; !exists {
			r.typeKeys[key] = decl.ID
		}
	}
	return nil
}

func (r *Registry) specializeLibfuncs() error {
	for _, decl := range r.program.LibfuncDeclarations {
		lib, err := extensions.SpecializeLibfunc(r, decl.LongID)
		if err != nil {
			return newError(ErrLibfuncSpecialization, "libfunc "+decl.ID.String(), "%v", err)
		}
		r.libfuncs[decl.ID.ID] = lib
	}
	return nil
}

func (r *Registry) checkStatements() error {
	n := len(r.program.Statements)
	for i, stmt := range r.program.Statements {
		if stmt.Kind != sierra.StatementInvocation {
			continue
		}
		idx := sierra.StatementIdx(i)
		subject := "statement " + idx.String()
		inv := stmt.Invocation

		lib, ok := r.Libfunc(inv.LibfuncID)
		if !ok {
			return newError(ErrUndeclaredLibfunc, subject, "libfunc %s is not declared", inv.LibfuncID)
		}
		sig := lib.Signature
		if len(inv.Args) != len(sig.Params) {
			return newError(ErrArgCount, subject, "%s takes %d args, got %d", inv.LibfuncID, len(sig.Params), len(inv.Args))
		}
		if len(inv.Branches) != len(sig.Branches) {
			return newError(ErrBranchCount, subject, "%s has %d branches, got %d", inv.LibfuncID, len(sig.Branches), len(inv.Branches))
		}
		for b, branch := range inv.Branches {
			if len(branch.Results) != len(sig.Branches[b].Outputs) {
				return newError(ErrResultCount, subject, "branch %d of %s has %d results, got %d",
					b, inv.LibfuncID, len(sig.Branches[b].Outputs), len(branch.Results))
			}
			if branch.Target.Fallthrough != (b == sig.FallthroughBranch) {
				if branch.Target.Fallthrough {
					return newError(ErrFallthroughMisuse, subject, "branch %d of %s cannot fall through", b, inv.LibfuncID)
				}
				return newError(ErrFallthroughMisuse, subject, "branch %d of %s must fall through", b, inv.LibfuncID)
			}
			if !branch.Target.Fallthrough && (branch.Target.Statement < 0 || int(branch.Target.Statement) >= n) {
				return newError(ErrTargetOutOfRange, subject, "branch %d targets %s, out of range (%d statements)",
					b, branch.Target.Statement, n)
			}
		}
	}
	return nil
}
