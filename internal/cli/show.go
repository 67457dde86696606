package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/report"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database  string
	OrderBy   string
	Ascending bool
}

// ShowResult is the JSON payload of the show command.
type ShowResult struct {
	Run    store.RunRecord `json:"run"`
	Report report.Report   `json:"report"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run with its steps ranked",
		Long: `Print a recorded run and rank its steps by a stat. Without --order-by the
stat the run was recorded with is used.

Example:
  stagectl show --db ./runs.db 0190a5e2-...
  stagectl show --db ./runs.db --order-by done_batches --ascending 0190a5e2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "stat to rank steps by (default: the run's own)")
	cmd.Flags().BoolVar(&opts.Ascending, "ascending", false, "rank lowest value first")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(contextOf(cmd), id)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	name := opts.OrderBy
	if name == "" {
		name = run.OrderKey
	}
	if name == "" {
		name = stats.TotalProcessingTime.Name()
	}
	key, ok := stats.Lookup(name)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, fmt.Sprintf("unknown stat key %q", name), nil)
	}

	rep := report.FromRun(run, key, opts.Ascending)
	return formatter.Render(ShowResult{Run: run, Report: rep}, func(w io.Writer) error {
		fmt.Fprintf(w, "%-11s %s\n", "Run", run.ID)
		fmt.Fprintf(w, "%-11s %s\n", "Started", run.StartedAt.Format(time.RFC3339))
		return rep.WriteText(w)
	})
}
