package extensions

import (
	"fmt"
	"strings"

	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// LongIDKey renders a long id by numeric ids only, so two declarations with
// the same generic id and arguments share a key regardless of debug names.
func LongIDKey(long sierra.ConcreteLongID) string {
	var sb strings.Builder
	sb.WriteString(long.GenericID)
	sb.WriteString("<")
	for i, arg := range long.GenericArgs {
		if i > 0 {
			sb.WriteString(",")
		}
		switch arg.Kind {
		case sierra.ArgType:
			fmt.Fprintf(&sb, "t%d", arg.Type.ID)
		case sierra.ArgUserType:
			fmt.Fprintf(&sb, "ut%d", arg.UserType.ID)
		case sierra.ArgValue:
			fmt.Fprintf(&sb, "v%s", arg.Value)
		case sierra.ArgLibfunc:
			fmt.Fprintf(&sb, "l%d", arg.Libfunc.ID)
		case sierra.ArgUserFunc:
			fmt.Fprintf(&sb, "f%d", arg.UserFunc.ID)
		}
	}
	sb.WriteString(">")
	return sb.String()
}
