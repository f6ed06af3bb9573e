package compiler

import (
	"math"
)

// NoBytecodeLimit disables the bytecode size check.
const NoBytecodeLimit = math.MaxInt

// Config controls compilation.
type Config struct {
	// GasUsageCheck rejects functions that can loop without withdraw_gas.
	GasUsageCheck bool
	// MaxBytecodeSize bounds code plus constants, in words.
	MaxBytecodeSize int
}

// DefaultConfig is the configuration the command line uses.
func DefaultConfig() Config {
	return Config{MaxBytecodeSize: NoBytecodeLimit}
}
