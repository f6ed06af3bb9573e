package toolchain

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/roach88/sierra-toolchain/internal/compiler"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindIO Kind = iota
	KindFormat
	KindUnsupportedVersion
	KindRegistry
	KindMetadata
	KindCompile
	KindGasCheck
	KindInstructionLimit
)

var kindNames = map[Kind]string{
	KindIO:                 "IoError",
	KindFormat:             "FormatError",
	KindUnsupportedVersion: "UnsupportedVersionError",
	KindRegistry:           "RegistryError",
	KindMetadata:           "MetadataError",
	KindCompile:            "CompileError",
	KindGasCheck:           "GasCheckError",
	KindInstructionLimit:   "InstructionLimitExceeded",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownError"
}

// Error codes for pipeline failures.
// E0xx: input, E1xx: registry, E2xx: metadata, E3xx: compilation.
const (
	ErrCodeFormat             = "E004" // envelope does not decode
	ErrCodeIO                 = "E005" // path unreadable or unwritable
	ErrCodeUnsupportedVersion = "E008" // envelope of another version
	ErrCodeRegistry           = "E101" // registry construction failed
	ErrCodeMetadata           = "E201" // ap-change metadata failed
	ErrCodeCompile            = "E301" // lowering failed
	ErrCodeGasCheck           = "E302" // gas usage check failed
	ErrCodeInstructionLimit   = "E303" // bytecode too large
)

// Code returns the error code reported for the kind.
func (k Kind) Code() string {
	switch k {
	case KindIO:
		return ErrCodeIO
	case KindFormat:
		return ErrCodeFormat
	case KindUnsupportedVersion:
		return ErrCodeUnsupportedVersion
	case KindRegistry:
		return ErrCodeRegistry
	case KindMetadata:
		return ErrCodeMetadata
	case KindGasCheck:
		return ErrCodeGasCheck
	case KindInstructionLimit:
		return ErrCodeInstructionLimit
	default:
		return ErrCodeCompile
	}
}

// Error is a pipeline failure: the underlying cause plus the context added
// by each stage it propagated through, outermost first.
type Error struct {
	Kind    Kind
	Path    string // file involved, if any
	Context []string
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Context)+1)
	parts = append(parts, e.Context...)
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap adds context to err. An *Error keeps its kind and gains the context
// in front of its chain; any other error is classified by its type.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		out := *te
		out.Context = append([]string{context}, te.Context...)
		return &out
	}
	return &Error{Kind: classify(err), Context: []string{context}, Err: err}
}

// wrapPath is Wrap for a failure involving a file.
func wrapPath(err error, path, context string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, context).(*Error)
	if wrapped.Path == "" {
		wrapped.Path = path
	}
	return wrapped
}

// KindOf returns the kind of a pipeline error. Errors that did not come from
// the pipeline are KindCompile.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	var (
		pathErr    *fs.PathError
		formatErr  *sierra.FormatError
		versionErr *sierra.UnsupportedVersionError
		regErr     *registry.Error
		mdErr      *metadata.Error
		gasErr     *compiler.GasCheckError
	)
	switch {
	case errors.As(err, &pathErr):
		return KindIO
	case errors.As(err, &formatErr):
		return KindFormat
	case errors.As(err, &versionErr):
		return KindUnsupportedVersion
	case errors.As(err, &regErr):
		return KindRegistry
	case errors.As(err, &mdErr):
		return KindMetadata
	case errors.As(err, &gasErr):
		return KindGasCheck
	case errors.Is(err, compiler.ErrInstructionLimitExceeded):
		return KindInstructionLimit
	default:
		return KindCompile
	}
}
