package sierra

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// FormatError reports serialized data that does not match the envelope schema.
type FormatError struct {
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *FormatError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// UnsupportedVersionError reports a well-formed envelope of a version other
// than SupportedVersion.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported VersionedProgram version %q (supported: %q)", e.Version, SupportedVersion)
}

// ProgramArtifact is the payload of a version 1 envelope.
// Program fields are flattened into the envelope object.
type ProgramArtifact struct {
	Program
	DebugInfo json.RawMessage `json:"debug_info,omitempty"`
}

// VersionedProgram is a decoded envelope. Only a version 1 envelope carries
// a program; any other version is retained by name only.
type VersionedProgram struct {
	Version string
	v1      *ProgramArtifact
}

// NewVersionedProgram wraps a program in a version 1 envelope.
func NewVersionedProgram(p Program) *VersionedProgram {
	return &VersionedProgram{Version: SupportedVersion, v1: &ProgramArtifact{Program: p}}
}

// IntoV1 returns the version 1 artifact.
// Returns *UnsupportedVersionError for any other version.
func (v *VersionedProgram) IntoV1() (*ProgramArtifact, error) {
	if v.Version != SupportedVersion || v.v1 == nil {
		return nil, &UnsupportedVersionError{Version: v.Version}
	}
	return v.v1, nil
}

// ParseVersionedProgram decodes a VersionedProgram from JSON.
//
// Decoding proceeds in a fixed order so the error kind is deterministic:
//  1. syntax: the bytes must be JSON
//  2. envelope: the value must carry a version tag
//  3. version: any version other than SupportedVersion is returned as is,
//     and fails later in IntoV1
//  4. program: a version 1 value must match the program schema
//
// Steps 1, 2 and 4 fail with *FormatError.
func ParseVersionedProgram(filename string, data []byte) (*VersionedProgram, error) {
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return nil, formatCUEError(err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling envelope schema: %w", err)
	}

	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if err := conform(schema, "#Envelope", value); err != nil {
		return nil, err
	}

	version, err := readVersion(value)
	if err != nil {
		return nil, err
	}
	if version != SupportedVersion {
		return &VersionedProgram{Version: version}, nil
	}

	if err := conform(schema, "#ProgramV1", value); err != nil {
		return nil, err
	}

	artifact := &ProgramArtifact{}
	if err := json.Unmarshal(data, artifact); err != nil {
		return nil, &FormatError{Message: fmt.Sprintf("decoding program: %v", err)}
	}
	return &VersionedProgram{Version: version, v1: artifact}, nil
}

// conform unifies value with the named schema definition and requires a
// concrete result.
func conform(schema cue.Value, definition string, value cue.Value) error {
	def := schema.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema definition %s: %w", definition, err)
	}
	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// readVersion renders the version tag as a string; 1 and "1" are the same tag.
func readVersion(value cue.Value) (string, error) {
	v := value.LookupPath(cue.ParsePath("version"))
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", &FormatError{Message: fmt.Sprintf("version: %v", err)}
		}
		return fmt.Sprintf("%d", n), nil
	default:
		return "", &FormatError{Message: fmt.Sprintf("version: expected int or string, got %v", v.Kind())}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &FormatError{Message: err.Error()}
	}

	// Report first error with position info
	first := errs[0]
	formatErr := &FormatError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		formatErr.Pos = positions[0]
	}
	return formatErr
}
