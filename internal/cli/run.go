package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/monitor"
	"github.com/roach88/stagerun/internal/report"
	"github.com/roach88/stagerun/internal/scenario"
	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/store"
	"github.com/roach88/stagerun/internal/supervisor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	OrderBy      string
	Ascending    bool
	Interval     time.Duration
	DrainTimeout time.Duration
	NoProgress   bool

	// IDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator monitor.IDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RunID    string        `json:"run_id,omitempty"`
	Scenario string        `json:"scenario"`
	Expected bool          `json:"expected"`
	Report   report.Report `json:"report"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a stage scenario",
		Long: `Build the stage described by a scenario file, run it to completion under a
supervisor and print its steps ranked by a stat.

The command succeeds when the outcome matches the scenario's expect block
(success when there is none). With --db the run is recorded for later
inspection with history and show.

Example:
  stagectl run ./scenarios/nodes.yaml
  stagectl run --db ./runs.db --order-by upstream_idle_time ./scenarios/nodes.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", stats.TotalProcessingTime.Name(), "stat to rank steps by (see keys)")
	cmd.Flags().BoolVar(&opts.Ascending, "ascending", false, "rank lowest value first")
	cmd.Flags().DurationVar(&opts.Interval, "interval", supervisor.DefaultInterval, "supervisor polling interval")
	cmd.Flags().DurationVar(&opts.DrainTimeout, "drain-timeout", supervisor.DefaultDrainTimeout, "how long to wait for steps after a fault")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "do not draw the progress line")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, formatter.GetErrWriter())

	key, ok := stats.Lookup(opts.OrderBy)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, fmt.Sprintf("unknown stat key %q", opts.OrderBy), nil)
	}

	sc, err := scenario.Load(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded scenario %s: %d steps, %d batches", sc.Name, len(sc.Steps), sc.Batches)

	stage, err := scenario.Build(sc, staging.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}
	defer func() {
		if closeErr := stage.Close(); closeErr != nil {
			logger.Error("error closing stage", "error", closeErr)
		}
	}()

	var monitors monitor.Multi
	if !opts.NoProgress && !formatter.JSON() {
		monitors = append(monitors, monitor.NewProgress(formatter.GetErrWriter(), sc.Total(), 0))
	}
	if opts.Verbose {
		monitors = append(monitors, monitor.NewBottleneck(logger, key, opts.Ascending))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *monitor.Recorder
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("failed to open database: %v", err), nil)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		ids := opts.IDGenerator
		if ids == nil {
			ids = monitor.UUIDv7Generator{}
		}
		// The write happens after a cancelled run too, so it must not use ctx.
		recorder = monitor.NewRecorder(context.WithoutCancel(ctx), st, ids,
			monitor.WithOrderKey(key),
			monitor.WithRecorderLogger(logger),
		)
		monitors = append(monitors, recorder)
	}

	sup := supervisor.New(
		supervisor.WithInterval(opts.Interval),
		supervisor.WithDrainTimeout(opts.DrainTimeout),
		supervisor.WithLogger(logger),
	)

	start := time.Now()
	exec, runErr := sup.Supervise(ctx, stage, monitors)
	elapsed := time.Since(start)
	if exec == nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, runErr.Error(), nil)
	}

	var pe *staging.PanicError
	if errors.As(runErr, &pe) {
		formatter.VerboseLog("%s", pe.Detail())
	}

	rep := report.Build(exec, key, opts.Ascending, elapsed)
	checkErr := scenario.Check(sc, runErr)
	result := RunResult{
		Scenario: sc.Name,
		Expected: checkErr == nil,
		Report:   rep,
	}
	if recorder != nil {
		result.RunID = recorder.Last().ID
	}

	text := func(w io.Writer) error {
		if err := rep.WriteText(w); err != nil {
			return err
		}
		if result.RunID != "" {
			fmt.Fprintf(w, "\nRecorded run %s\n", result.RunID)
		}
		if checkErr == nil {
			fmt.Fprintln(w, "✓ Outcome as expected")
		}
		return nil
	}

	if checkErr != nil {
		if !formatter.JSON() {
			if err := text(formatter.Writer); err != nil {
				return err
			}
		}
		code := ErrCodeUnexpected
		if sc.Expect == nil && staging.IsPanicError(runErr) {
			code = ErrCodeStageFault
		}
		return formatter.Fail(ExitFailure, code, checkErr.Error(), result)
	}

	if err := formatter.Render(result, text); err != nil {
		return err
	}

	if recorder != nil && recorder.Err() != nil {
		return WrapExitError(ExitCommandError, "failed to record run", recorder.Err())
	}
	return nil
}

// failLoad maps a scenario load error to an error code and exit status.
func failLoad(formatter *OutputFormatter, err error) error {
	var schemaErr *scenario.SchemaError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	case errors.As(err, &schemaErr):
		return formatter.Fail(ExitFailure, ErrCodeSchema, err.Error(), schemaErr.Issues)
	case errors.Is(err, scenario.ErrInvalidChain):
		return formatter.Fail(ExitFailure, ErrCodeChain, err.Error(), nil)
	default:
		return formatter.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
	}
}
