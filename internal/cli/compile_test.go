package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "build", "casm", "add.casm")

	stdout, stderr, err := execute(t, "compile", "--input", fixture("add.json"), "--out-casm", out)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	want, err := json.Marshal(map[string]any{
		"compiled":       true,
		"const_segments": 0,
		"gas_check":      false,
		"instructions":   2,
		"out_casm":       out,
	})
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", stdout, "keys are sorted")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[ap + 0] = [fp + -4] + [fp + -3], ap++;\nret;\n\n", string(data))
}

func TestCompileConsts(t *testing.T) {
	out := filepath.Join(t.TempDir(), "consts.casm")

	stdout, _, err := execute(t, "compile", "--input", fixture("consts.json"), "--out-casm", out)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, float64(3), got["instructions"])
	assert.Equal(t, float64(1), got["const_segments"])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dw 7;\n")
}

func TestCompileMinimal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "minimal.casm")

	stdout, _, err := execute(t, "compile", "--input", fixture("minimal.json"), "--out-casm", out)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, float64(0), got["instructions"])
	assert.Equal(t, float64(0), got["const_segments"])
}

func TestCompileGasCheckToggle(t *testing.T) {
	dir := t.TempDir()
	checked := filepath.Join(dir, "checked.casm")
	unchecked := filepath.Join(dir, "unchecked.casm")

	stdout, stderr, err := execute(t, "compile", "--input", fixture("recursion.json"), "--out-casm", checked, "--gas-check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `"code":"E302"`)
	assert.Contains(t, stderr, "Sierra->CASM compilation failed")
	assert.NoFileExists(t, checked)

	stdout, _, err = execute(t, "compile", "--input", fixture("recursion.json"), "--out-casm", unchecked)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"gas_check":false`)
	assert.FileExists(t, unchecked)
}

func TestCompileGasCheckReported(t *testing.T) {
	out := filepath.Join(t.TempDir(), "add.casm")

	stdout, _, err := execute(t, "compile", "--input", fixture("add.json"), "--out-casm", out, "--gas-check")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"gas_check":true`)
}

func TestCompileFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		code    string
	}{
		{"unsupported version", "unsupported_version.json", "E008"},
		{"undeclared libfunc", "undeclared_libfunc.json", "E101"},
		{"duplicate param", "duplicate_param.json", "E101"},
		{"schema mismatch", "schema_mismatch.json", "E004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out", "program.casm")

			_, stderr, err := execute(t, "compile", "--input", fixture(tt.fixture), "--out-casm", out)
			require.Error(t, err)
			assert.Contains(t, stderr, `"code":"`+tt.code+`"`)
			assert.NoFileExists(t, out)
			assert.NoDirExists(t, filepath.Dir(out))
		})
	}
}

func TestCompileText(t *testing.T) {
	out := filepath.Join(t.TempDir(), "add.casm")

	stdout, _, err := execute(t, "--format", "text", "compile", "--input", fixture("add.json"), "--out-casm", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Compiled")
	assert.Contains(t, stdout, out)
	assert.Contains(t, stdout, "instructions:")
}

func TestCompileUnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, stderr, err := execute(t, "--format", "text", "compile", "--input", fixture("add.json"), "--out-casm", filepath.Join(blocker, "add.casm"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "Error [E005]: failed creating CASM output directory: "+blocker)
}
