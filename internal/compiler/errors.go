package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// ErrInstructionLimitExceeded is returned when the compiled bytecode is
// larger than Config.MaxBytecodeSize.
var ErrInstructionLimitExceeded = errors.New("instruction limit exceeded")

// CompileError reports a statement that cannot be lowered to CASM.
type CompileError struct {
	Statement sierra.StatementIdx
	Message   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("statement %s: %s", e.Statement, e.Message)
}

func compileErr(idx sierra.StatementIdx, format string, args ...any) *CompileError {
	return &CompileError{Statement: idx, Message: fmt.Sprintf(format, args...)}
}

// GasCheckError reports a function that can loop without withdrawing gas.
type GasCheckError struct {
	Function sierra.FunctionID
	Cycle    []sierra.StatementIdx // statements of the offending cycle, ascending
}

func (e *GasCheckError) Error() string {
	return fmt.Sprintf("function %s can loop without withdrawing gas (statements %v)", e.Function, e.Cycle)
}
