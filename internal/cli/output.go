package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/prevail/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // journal problems, invalid config file, unreadable data
	ExitCommandError = 2 // missing journal, bad flags or arguments
)

// Error codes reported in JSON error responses.
const (
	CodeUsage           = "USAGE"
	CodeNoJournal       = "NO_JOURNAL"
	CodeJournal         = "JOURNAL_ERROR"
	CodeJournalProblems = "JOURNAL_PROBLEMS"
	CodeSnapshot        = "SNAPSHOT_ERROR"
	CodeSearch          = "SEARCH_ERROR"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeInternal        = "INTERNAL"
)

// ExitError is a failed command: the process exit code plus the error code
// and details reported to JSON consumers.
type ExitError struct {
	Exit    int
	Code    string
	Message string
	Details any
	Err     error
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

// usageError reports a bad invocation.
func usageError(format string, args ...any) *ExitError {
	return &ExitError{Exit: ExitCommandError, Code: CodeUsage, Message: fmt.Sprintf(format, args...)}
}

// failure reports a command that ran against unusable data.
func failure(code, message string, err error) *ExitError {
	return &ExitError{Exit: ExitFailure, Code: code, Message: message, Err: err}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Exit
	}
	return ExitFailure
}

// Describe converts err into the error part of a JSON response.
func Describe(err error) CLIError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return CLIError{Code: exitErr.Code, Message: exitErr.Error(), Details: exitErr.Details}
	}
	return CLIError{Code: CodeInternal, Message: err.Error()}
}

// engineCodes are the error codes a failed command can carry in its journal
// outcome.
var engineCodes = []engine.ErrorCode{
	engine.ErrCodeDuplicateIdentity,
	engine.ErrCodeUniqueViolation,
	engine.ErrCodeNotNullViolation,
	engine.ErrCodeDeleteConflict,
	engine.ErrCodeStoreError,
}

// outcomeCode classifies the message of a failed journal outcome. Engine
// errors are journaled with their code as prefix; anything else failed
// outside the constraint checks and counts as a store error.
func outcomeCode(message string) engine.ErrorCode {
	for _, code := range engineCodes {
		if strings.HasPrefix(message, string(code)+":") {
			return code
		}
	}
	return engine.ErrCodeStoreError
}

// OutputFormatter writes command results as JSON responses or plain text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer parseable
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes a result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail writes the error response for err. Text output goes to ErrWriter as
// "Error: <message>", followed by the details in verbose mode.
func (f *OutputFormatter) Fail(err error) {
	desc := Describe(err)
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: &desc})
		return
	}
	w := f.diagnostics()
	fmt.Fprintln(w, "Error:", desc.Message)
	if f.Verbose && desc.Details != nil {
		fmt.Fprintf(w, "Details: %v\n", desc.Details)
	}
}

// VerboseLog writes a diagnostic line in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.diagnostics(), format+"\n", args...)
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Execute runs the root command, reports a failure in the requested format
// and returns the process exit code.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		report(cmd, err)
	}
	return ExitCode(err)
}

func report(cmd *cobra.Command, err error) {
	format, _ := cmd.PersistentFlags().GetString("format")
	verbose, _ := cmd.PersistentFlags().GetBool("verbose")
	f := &OutputFormatter{Format: format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: verbose}
	f.Fail(err)
}
