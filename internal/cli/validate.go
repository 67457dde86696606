package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/scenario"
)

// ValidationResult is the outcome of validating one scenario file.
type ValidationResult struct {
	Path   string           `json:"path"`
	Valid  bool             `json:"valid"`
	Name   string           `json:"name,omitempty"`
	Steps  int              `json:"steps,omitempty"`
	Code   string           `json:"code,omitempty"`
	Error  string           `json:"error,omitempty"`
	Issues []scenario.Issue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Check scenario files against the scenario schema and the step chain rules.

Example:
  stagectl validate ./scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	results := make([]ValidationResult, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		result := validateScenario(path)
		if !result.Valid {
			invalid++
		}
		results = append(results, result)
	}

	if invalid > 0 {
		if !formatter.JSON() {
			writeValidation(formatter.Writer, results)
		}
		return formatter.Fail(ExitFailure, ErrCodeGeneric,
			fmt.Sprintf("%d of %d scenarios invalid", invalid, len(results)), results)
	}

	return formatter.Render(results, func(w io.Writer) error {
		writeValidation(w, results)
		return nil
	})
}

func validateScenario(path string) ValidationResult {
	result := ValidationResult{Path: path}

	sc, err := scenario.Load(path)
	if err == nil {
		result.Valid = true
		result.Name = sc.Name
		result.Steps = len(sc.Steps)
		return result
	}

	result.Error = err.Error()
	var schemaErr *scenario.SchemaError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result.Code = ErrCodeNotFound
	case errors.As(err, &schemaErr):
		result.Code = ErrCodeSchema
		result.Issues = schemaErr.Issues
	case errors.Is(err, scenario.ErrInvalidChain):
		result.Code = ErrCodeChain
	default:
		result.Code = ErrCodeLoadFailed
	}
	return result
}

func writeValidation(w io.Writer, results []ValidationResult) {
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s (%s, %d steps)\n", r.Path, r.Name, r.Steps)
			continue
		}
		if len(r.Issues) == 0 {
			fmt.Fprintf(w, "✗ %s [%s]: %s\n", r.Path, r.Code, r.Error)
			continue
		}
		fmt.Fprintf(w, "✗ %s [%s]:\n", r.Path, r.Code)
		for _, issue := range r.Issues {
			if issue.Path == "" {
				fmt.Fprintf(w, "    %s\n", issue.Message)
			} else {
				fmt.Fprintf(w, "    %s: %s\n", issue.Path, issue.Message)
			}
		}
	}
}
