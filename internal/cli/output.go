package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sierra-toolchain/internal/toolchain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Pipeline failure (invalid program, compilation error, unwritable output, etc.)
	ExitCommandError = 2 // Command error (unknown command, missing or invalid flags)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitCommandError (2) if the error is not an
// ExitError: those come from cobra itself (unknown command, bad flags).
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// IsReported reports whether err was already written to stderr by a command.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// OutputFormatter renders command results in the configured format.
// Results go to Writer; errors and diagnostics go to ErrWriter.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for errors (defaults to Writer)
	Verbose   bool
	Color     bool // colorize text output
}

// newFormatter builds the formatter for a command invocation. Color is on
// only for text output to a terminal.
func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
		Color:     opts.Format == "text" && isTerminal(out),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// CLIResponse is the JSON error document written to stderr.
type CLIResponse struct {
	Status string    `json:"status"`          // "error"
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string   `json:"code"`              // "E005", "E101", etc.
	Kind    string   `json:"kind"`              // "IoError", "RegistryError", etc.
	Message string   `json:"message"`           // full context chain
	Path    string   `json:"path,omitempty"`    // file involved, if any
	Context []string `json:"context,omitempty"` // outermost first
}

// textRenderer writes the text rendering of a result.
type textRenderer func(p *textPrinter)

// Success outputs a result in the configured format. JSON is one compact
// object per line with keys in declaration order.
func (f *OutputFormatter) Success(data any, text textRenderer) error {
	switch f.Format {
	case "json":
		return encodeJSON(f.Writer, data)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(f.printer())
		return nil
	}
}

// Fail reports a pipeline error on ErrWriter and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	cliErr := describe(err)
	w := f.GetErrWriter()
	if f.Format == "json" {
		_ = encodeJSON(w, CLIResponse{Status: "error", Error: cliErr})
	} else {
		fmt.Fprintf(w, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if f.Verbose {
			fmt.Fprintf(w, "Kind: %s\n", cliErr.Kind)
		}
	}
	return WrapExitError(ExitFailure, cliErr.Code, err)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func describe(err error) *CLIError {
	kind := toolchain.KindOf(err)
	out := &CLIError{Code: kind.Code(), Kind: kind.String(), Message: err.Error()}
	var te *toolchain.Error
	if errors.As(err, &te) {
		out.Path = te.Path
		out.Context = te.Context
	}
	return out
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (f *OutputFormatter) printer() *textPrinter {
	ok := color.New(color.FgGreen, color.Bold)
	label := color.New(color.Faint)
	if f.Color {
		ok.EnableColor()
		label.EnableColor()
	} else {
		ok.DisableColor()
		label.DisableColor()
	}
	return &textPrinter{
		w:     f.Writer,
		num:   message.NewPrinter(language.English),
		ok:    ok.SprintFunc(),
		label: label.SprintFunc(),
	}
}

// textPrinter writes aligned "label: value" lines under a status line.
type textPrinter struct {
	w     io.Writer
	num   *message.Printer
	ok    func(a ...any) string
	label func(a ...any) string
}

func (p *textPrinter) status(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.ok("✓"), fmt.Sprintf(format, args...))
}

func (p *textPrinter) count(label string, n int) {
	fmt.Fprintf(p.w, "  %s %s\n", p.label(fmt.Sprintf("%-22s", label+":")), p.num.Sprintf("%d", n))
}

func (p *textPrinter) field(label string, v any) {
	fmt.Fprintf(p.w, "  %s %v\n", p.label(fmt.Sprintf("%-22s", label+":")), v)
}
