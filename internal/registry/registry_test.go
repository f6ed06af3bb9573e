package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

var (
	felt252  = sierra.TypeID{ID: 0, DebugName: "felt252"}
	addLib   = sierra.LibfuncID{ID: 0, DebugName: "felt252_add"}
	storeLib = sierra.LibfuncID{ID: 1, DebugName: "store_temp<felt252>"}
)

func v(id uint64) sierra.VarID { return sierra.VarID{ID: id} }

func vars(ids ...uint64) []sierra.VarID {
	out := make([]sierra.VarID, len(ids))
	for i, id := range ids {
		out[i] = v(id)
	}
	return out
}

func fallthroughTo(results ...uint64) sierra.BranchInfo {
	return sierra.BranchInfo{Target: sierra.Fallthrough, Results: vars(results...)}
}

// addProgram is felt252 addition of two params.
func addProgram() *sierra.Program {
	return &sierra.Program{
		TypeDeclarations: []sierra.TypeDeclaration{
			{ID: felt252, LongID: sierra.ConcreteLongID{GenericID: "felt252"}},
		},
		LibfuncDeclarations: []sierra.LibfuncDeclaration{
			{ID: addLib, LongID: sierra.ConcreteLongID{GenericID: "felt252_add"}},
			{ID: storeLib, LongID: sierra.ConcreteLongID{GenericID: "store_temp", GenericArgs: []sierra.GenericArg{sierra.TypeArg(felt252)}}},
		},
		Statements: []sierra.Statement{
			sierra.Invoke(addLib, vars(0, 1), fallthroughTo(2)),
			sierra.Invoke(storeLib, vars(2), fallthroughTo(2)),
			sierra.Return(v(2)),
		},
		Funcs: []sierra.Function{{
			ID: sierra.FunctionID{ID: 0, DebugName: "add"},
			Signature: sierra.FunctionSignature{
				ParamTypes: []sierra.TypeID{felt252, felt252},
				RetTypes:   []sierra.TypeID{felt252},
			},
			Params: []sierra.Param{{ID: v(0), Type: felt252}, {ID: v(1), Type: felt252}},
		}},
	}
}

func TestNew_Valid(t *testing.T) {
	r, err := New(addProgram())
	require.NoError(t, err)

	ty, ok := r.ConcreteType(sierra.TypeID{ID: 0})
	require.True(t, ok, "lookup ignores debug names")
	assert.Equal(t, extensions.TypeFelt252, ty.Kind)

	lib, ok := r.Libfunc(storeLib)
	require.True(t, ok)
	assert.Equal(t, extensions.LibStoreTemp, lib.Kind)

	fn, ok := r.Function(sierra.FunctionID{ID: 0})
	require.True(t, ok)
	assert.Equal(t, "add", fn.ID.DebugName)

	id, ok := r.LookupType(sierra.ConcreteLongID{GenericID: "felt252"})
	require.True(t, ok)
	assert.Equal(t, felt252, id)
}

func TestNew_EmptyBody(t *testing.T) {
	p := &sierra.Program{
		Funcs: []sierra.Function{{ID: sierra.FunctionID{ID: 0, DebugName: "main"}}},
	}
	_, err := New(p)
	require.NoError(t, err, "entry point equal to the statement count is an empty body")
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *sierra.Program)
		code    string
		subject string
	}{
		{
			name: "duplicate type id",
			mutate: func(p *sierra.Program) {
				p.TypeDeclarations = append(p.TypeDeclarations, p.TypeDeclarations[0])
			},
			code:    ErrDuplicateID,
			subject: "type felt252",
		},
		{
			name: "duplicate libfunc id",
			mutate: func(p *sierra.Program) {
				p.LibfuncDeclarations[1].ID = sierra.LibfuncID{ID: 0}
			},
			code:    ErrDuplicateID,
			subject: "libfunc [0]",
		},
		{
			name: "undeclared param type",
			mutate: func(p *sierra.Program) {
				p.Funcs[0].Signature.ParamTypes[1] = sierra.TypeID{ID: 9}
			},
			code:    ErrUndeclaredType,
			subject: "function add",
		},
		{
			name: "param count mismatch",
			mutate: func(p *sierra.Program) {
				p.Funcs[0].Params = p.Funcs[0].Params[:1]
			},
			code: ErrParamMismatch,
		},
		{
			name: "duplicate param id",
			mutate: func(p *sierra.Program) {
				p.Funcs[0].Params[1].ID = v(0)
			},
			code:    ErrDuplicateParam,
			subject: "function add",
		},
		{
			name: "entry point out of range",
			mutate: func(p *sierra.Program) {
				p.Funcs[0].EntryPoint = 4
			},
			code: ErrEntryPointOutOfRange,
		},
		{
			name: "unsupported generic type",
			mutate: func(p *sierra.Program) {
				p.TypeDeclarations = append(p.TypeDeclarations, sierra.TypeDeclaration{
					ID: sierra.TypeID{ID: 1}, LongID: sierra.ConcreteLongID{GenericID: "Array"},
				})
			},
			code:    ErrTypeSpecialization,
			subject: "type [1]",
		},
		{
			name: "type used before declaration",
			mutate: func(p *sierra.Program) {
				box := sierra.TypeDeclaration{
					ID:     sierra.TypeID{ID: 1},
					LongID: sierra.ConcreteLongID{GenericID: "Box", GenericArgs: []sierra.GenericArg{sierra.TypeArg(felt252)}},
				}
				p.TypeDeclarations = []sierra.TypeDeclaration{box, p.TypeDeclarations[0]}
			},
			code: ErrTypeSpecialization,
		},
		{
			name: "unsupported generic libfunc",
			mutate: func(p *sierra.Program) {
				p.LibfuncDeclarations[0].LongID.GenericID = "felt252_div"
			},
			code:    ErrLibfuncSpecialization,
			subject: "libfunc felt252_add",
		},
		{
			name: "undeclared libfunc",
			mutate: func(p *sierra.Program) {
				p.Statements[0].Invocation.LibfuncID = sierra.LibfuncID{ID: 5}
			},
			code:    ErrUndeclaredLibfunc,
			subject: "statement #0",
		},
		{
			name: "arg count",
			mutate: func(p *sierra.Program) {
				p.Statements[0].Invocation.Args = vars(0)
			},
			code: ErrArgCount,
		},
		{
			name: "result count",
			mutate: func(p *sierra.Program) {
				p.Statements[1].Invocation.Branches[0].Results = nil
			},
			code:    ErrResultCount,
			subject: "statement #1",
		},
		{
			name: "branch count",
			mutate: func(p *sierra.Program) {
				inv := &p.Statements[0].Invocation
				inv.Branches = append(inv.Branches, fallthroughTo(3))
			},
			code: ErrBranchCount,
		},
		{
			name: "fallthrough branch jumps",
			mutate: func(p *sierra.Program) {
				p.Statements[0].Invocation.Branches[0].Target = sierra.JumpTo(1)
			},
			code: ErrFallthroughMisuse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := addProgram()
			tt.mutate(p)
			_, err := New(p)
			require.Error(t, err)

			var regErr *Error
			require.ErrorAs(t, err, &regErr)
			assert.Equal(t, tt.code, regErr.Code, regErr.Error())
			if tt.subject != "" {
				assert.Equal(t, tt.subject, regErr.Subject)
			}
		})
	}
}

func TestNew_JumpTargetOutOfRange(t *testing.T) {
	p := addProgram()
	p.LibfuncDeclarations = append(p.LibfuncDeclarations, sierra.LibfuncDeclaration{
		ID: sierra.LibfuncID{ID: 2}, LongID: sierra.ConcreteLongID{GenericID: "jump"},
	})
	p.Statements = append([]sierra.Statement{
		sierra.Invoke(sierra.LibfuncID{ID: 2}, nil, sierra.BranchInfo{Target: sierra.JumpTo(10)}),
	}, p.Statements...)

	_, err := New(p)
	require.Error(t, err)
	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, ErrTargetOutOfRange, regErr.Code)
	assert.Contains(t, regErr.Message, "out of range (4 statements)")
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrArgCount, Subject: "statement #3", Message: "felt252_add takes 2 args, got 1"}
	assert.Equal(t, "[E117] statement #3: felt252_add takes 2 args, got 1", err.Error())
}
