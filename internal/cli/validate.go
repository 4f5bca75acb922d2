package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sortline/internal/config"
)

// ValidationIssue is one reported configuration defect.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a line configuration without starting the daemon",
		Long: `Validate a line configuration file.

Checks the YAML against the embedded schema (shape, types, bounds) and
the domain rules (register block overlap, template consistency, offset
triggers). All defects are collected and reported together.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Validating %s", path)
	_, errs := config.LoadFile(path, config.LoadModeCollectAll)
	if len(errs) == 0 {
		return outputValidateSuccess(formatter)
	}

	// An unreadable file is a command error, not a validation failure.
	var loadErr *config.LoadError
	if errors.As(errs[0], &loadErr) && loadErr.Code == config.ErrCodeRead {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		if errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{Code: loadErr.Code, Message: loadErr.Message})
			continue
		}
		issues = append(issues, ValidationIssue{Code: "C000", Message: err.Error()})
	}
	return outputValidationErrors(formatter, issues)
}

func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
