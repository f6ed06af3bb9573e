// Package toolchain composes the pipeline stages behind the validate and
// compile commands: load, registry, registry info, metadata, compile and
// write. Every stage fails fast and wraps its error with the context of the
// operation it was attempting.
package toolchain

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/roach88/sierra-toolchain/internal/casm"
	"github.com/roach88/sierra-toolchain/internal/compiler"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
	"github.com/roach88/sierra-toolchain/internal/typesize"
)

// LoadProgram reads a VersionedProgram JSON file and returns its version 1
// program.
func LoadProgram(path string) (*sierra.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapPath(err, path, "failed reading Sierra JSON: "+path)
	}
	versioned, err := sierra.ParseVersionedProgram(path, data)
	if err != nil {
		return nil, wrapPath(err, path, "failed parsing VersionedProgram JSON")
	}
	artifact, err := versioned.IntoV1()
	if err != nil {
		return nil, wrapPath(err, path, "unsupported Sierra program version for pinned toolchain")
	}
	program := &artifact.Program
	log.WithFields(log.Fields{
		"path":       path,
		"types":      len(program.TypeDeclarations),
		"libfuncs":   len(program.LibfuncDeclarations),
		"statements": len(program.Statements),
		"functions":  len(program.Funcs),
	}).Debug("loaded Sierra program")
	if log.IsLevelEnabled(log.TraceLevel) {
		log.Trace(program.String())
	}
	return program, nil
}

// BuildRegistry validates the program by constructing its registry.
func BuildRegistry(program *sierra.Program) (*registry.Registry, error) {
	reg, err := registry.New(program)
	if err != nil {
		return nil, Wrap(err, "ProgramRegistry validation failed")
	}
	log.Debug("program registry built")
	return reg, nil
}

// DeriveRegistryInfo computes the type sizes the later stages need.
func DeriveRegistryInfo(program *sierra.Program) (*typesize.Info, error) {
	info, err := typesize.New(program)
	if err != nil {
		return nil, Wrap(err, "failed creating ProgramRegistryInfo")
	}
	return info, nil
}

// ComputeMetadata derives ap-change metadata. Gas costs are not computed.
func ComputeMetadata(info *typesize.Info) (*metadata.Metadata, error) {
	md, err := metadata.Compute(info.Registry)
	if err != nil {
		return nil, Wrap(err, "failed computing metadata (ap-change only)")
	}
	for _, fn := range info.Registry.Program().Funcs {
		log.WithField("function", fn.ID.String()).Debugf("ap change %s", md.FunctionApChange(fn.ID))
	}
	return md, nil
}

// Compile lowers the program to CASM with no bytecode size limit.
func Compile(info *typesize.Info, md *metadata.Metadata, gasCheck bool) (*casm.Program, error) {
	cfg := compiler.DefaultConfig()
	cfg.GasUsageCheck = gasCheck
	out, err := compiler.Compile(info, md, cfg)
	if err != nil {
		return nil, Wrap(err, "Sierra->CASM compilation failed")
	}
	log.WithFields(log.Fields{
		"instructions":   len(out.Instructions),
		"const_segments": len(out.ConstsInfo.Segments),
		"bytecode_size":  out.BytecodeSize(),
		"gas_check":      gasCheck,
	}).Debug("compiled to CASM")
	return out, nil
}

// WriteCasm writes the CASM text of out, followed by a newline, creating the
// parent directory of path as needed.
func WriteCasm(path string, out *casm.Program) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrapPath(err, dir, "failed creating CASM output directory: "+dir)
		}
	}
	if err := os.WriteFile(path, []byte(out.String()+"\n"), 0o644); err != nil {
		return wrapPath(err, path, "failed writing CASM output: "+path)
	}
	log.WithField("path", path).Debug("wrote CASM")
	return nil
}

// ValidateSummary reports the counts of a validated program.
// Fields are declared in key order so JSON output is sorted.
type ValidateSummary struct {
	Functions           int  `json:"functions" yaml:"functions"`
	LibfuncDeclarations int  `json:"libfunc_declarations" yaml:"libfunc_declarations"`
	Statements          int  `json:"statements" yaml:"statements"`
	TypeDeclarations    int  `json:"type_declarations" yaml:"type_declarations"`
	Validated           bool `json:"validated" yaml:"validated"`
}

// Validate loads the program at path and validates it.
func Validate(path string) (*ValidateSummary, error) {
	program, err := LoadProgram(path)
	if err != nil {
		return nil, err
	}
	if _, err := BuildRegistry(program); err != nil {
		return nil, err
	}
	return &ValidateSummary{
		Validated:           true,
		TypeDeclarations:    len(program.TypeDeclarations),
		LibfuncDeclarations: len(program.LibfuncDeclarations),
		Statements:          len(program.Statements),
		Functions:           len(program.Funcs),
	}, nil
}

// CompileSummary reports the shape of a compiled program.
// Fields are declared in key order so JSON output is sorted.
type CompileSummary struct {
	Compiled      bool   `json:"compiled" yaml:"compiled"`
	ConstSegments int    `json:"const_segments" yaml:"const_segments"`
	GasCheck      bool   `json:"gas_check" yaml:"gas_check"`
	Instructions  int    `json:"instructions" yaml:"instructions"`
	OutCasm       string `json:"out_casm" yaml:"out_casm"`
}

// CompileFile runs the full pipeline from the program at input to the CASM
// file at outCasm. Nothing is written unless compilation succeeds.
func CompileFile(input, outCasm string, gasCheck bool) (*CompileSummary, error) {
	program, err := LoadProgram(input)
	if err != nil {
		return nil, err
	}
	info, err := DeriveRegistryInfo(program)
	if err != nil {
		return nil, err
	}
	md, err := ComputeMetadata(info)
	if err != nil {
		return nil, err
	}
	out, err := Compile(info, md, gasCheck)
	if err != nil {
		return nil, err
	}
	if err := WriteCasm(outCasm, out); err != nil {
		return nil, err
	}
	return &CompileSummary{
		Compiled:      true,
		OutCasm:       outCasm,
		Instructions:  len(out.Instructions),
		ConstSegments: len(out.ConstsInfo.Segments),
		GasCheck:      gasCheck,
	}, nil
}
