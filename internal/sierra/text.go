package sierra

import (
	"fmt"
	"strings"
)

// String renders the generic argument in Sierra text form.
func (a GenericArg) String() string {
	switch a.Kind {
	case ArgType:
		return a.Type.String()
	case ArgUserType:
		return "ut@" + a.UserType.String()
	case ArgValue:
		if a.Value == nil {
			return "<nil>"
		}
		return a.Value.String()
	case ArgLibfunc:
		return "lib@" + a.Libfunc.String()
	case ArgUserFunc:
		return "user@" + a.UserFunc.String()
	default:
		return "?"
	}
}

// String renders "generic<arg, ...>", or just the generic id without args.
func (l ConcreteLongID) String() string {
	if len(l.GenericArgs) == 0 {
		return l.GenericID
	}
	args := make([]string, len(l.GenericArgs))
	for i, arg := range l.GenericArgs {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s<%s>", l.GenericID, strings.Join(args, ", "))
}

func joinVars(vars []VarID) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func joinTypes(types []TypeID) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// String renders the statement in Sierra text form.
//
//	felt252_add([0], [1]) -> ([2]);
//	felt252_is_zero([0]) { fallthrough() 5([1]) };
//	return([2]);
func (s Statement) String() string {
	if s.Kind == StatementReturn {
		return fmt.Sprintf("return(%s);", joinVars(s.Return))
	}
	inv := s.Invocation
	head := fmt.Sprintf("%s(%s)", inv.LibfuncID, joinVars(inv.Args))
	if len(inv.Branches) == 1 && inv.Branches[0].Target.Fallthrough {
		return fmt.Sprintf("%s -> (%s);", head, joinVars(inv.Branches[0].Results))
	}
	branches := make([]string, len(inv.Branches))
	for i, b := range inv.Branches {
		target := "fallthrough"
		if !b.Target.Fallthrough {
			target = fmt.Sprintf("%d", int(b.Target.Statement))
		}
		branches[i] = fmt.Sprintf("%s(%s)", target, joinVars(b.Results))
	}
	return fmt.Sprintf("%s { %s };", head, strings.Join(branches, " "))
}

// String renders the function declaration line.
func (f Function) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s: %s", p.ID, p.Type)
	}
	return fmt.Sprintf("%s@%d(%s) -> (%s);", f.ID, int(f.EntryPoint),
		strings.Join(params, ", "), joinTypes(f.Signature.RetTypes))
}

// String renders the whole program in Sierra text form: type declarations,
// libfunc declarations, statements and functions, separated by blank lines.
func (p *Program) String() string {
	var sb strings.Builder
	for _, decl := range p.TypeDeclarations {
		fmt.Fprintf(&sb, "type %s = %s;\n", decl.ID, decl.LongID)
	}
	sb.WriteString("\n")
	for _, decl := range p.LibfuncDeclarations {
		fmt.Fprintf(&sb, "libfunc %s = %s;\n", decl.ID, decl.LongID)
	}
	sb.WriteString("\n")
	for _, stmt := range p.Statements {
		sb.WriteString(stmt.String())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, fn := range p.Funcs {
		sb.WriteString(fn.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
