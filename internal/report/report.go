// Package report ranks the steps of a stage run by a stat and renders the
// ranking as text or JSON.
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/stats"
	"github.com/roach88/stagerun/internal/store"
)

// Report is a ranked view of a stage run.
type Report struct {
	Stage      string   `json:"stage"`
	Part       string   `json:"part,omitempty"`
	Guarantees string   `json:"guarantees"`
	Status     string   `json:"status"`
	Fault      string   `json:"fault,omitempty"`
	Suppressed []string `json:"suppressed,omitempty"`
	OrderKey   string   `json:"order_key"`
	Ascending  bool     `json:"ascending"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	Steps      []Row    `json:"steps"`
}

// Row is one ranked step.
//
// Ratio is the step's value divided by the next row's value; the last row has
// ratio 1. When the next value is zero and this one is not, Unbounded is set
// and Ratio is 0, since JSON has no infinity.
type Row struct {
	Rank      int     `json:"rank"`
	Step      string  `json:"step"`
	Completed bool    `json:"completed"`
	Value     int64   `json:"value"`
	Ratio     float64 `json:"ratio"`
	Unbounded bool    `json:"unbounded,omitempty"`
}

// Build ranks the steps of exec by key.
func Build(exec *staging.Execution, key stats.Key, ascending bool, elapsed time.Duration) Report {
	r := Report{
		Stage:      exec.StageName(),
		Part:       exec.Part(),
		Guarantees: exec.Guarantees().String(),
		Status:     store.StatusOK,
		OrderKey:   key.Name(),
		Ascending:  ascending,
		ElapsedMs:  elapsed.Milliseconds(),
	}
	if err := exec.AssertHealthy(); err != nil {
		r.Status = store.StatusFailed
		r.Fault = err.Error()
		var pe *staging.PanicError
		if errors.As(err, &pe) {
			r.Fault = pe.Cause().Error()
		}
		for _, s := range staging.SuppressedOf(err) {
			r.Suppressed = append(r.Suppressed, s.Error())
		}
	}
	r.Steps = rank(exec, key, ascending)
	return r
}

// FromRun ranks the steps of a stored run by key.
func FromRun(run store.RunRecord, key stats.Key, ascending bool) Report {
	steps := make([]staging.Step, len(run.Steps))
	for i, s := range run.Steps {
		steps[i] = newRecordedStep(s)
	}
	exec := staging.NewExecution(run.Stage, run.Part, staging.DefaultConfiguration(), steps, 0)

	return Report{
		Stage:      run.Stage,
		Part:       run.Part,
		Guarantees: run.Guarantees,
		Status:     run.Status,
		Fault:      run.Fault,
		Suppressed: run.Suppressed,
		OrderKey:   key.Name(),
		Ascending:  ascending,
		ElapsedMs:  run.Elapsed.Milliseconds(),
		Steps:      rank(exec, key, ascending),
	}
}

func rank(exec *staging.Execution, key stats.Key, ascending bool) []Row {
	ordered := exec.StepsOrderedBy(key, ascending)
	rows := make([]Row, len(ordered))
	for i, r := range ordered {
		rows[i] = Row{
			Rank:      i + 1,
			Step:      staging.StepName(r.Step),
			Completed: r.Step.IsCompleted(),
			Value:     r.Value,
			Ratio:     r.Ratio,
		}
		if r.Unbounded() {
			rows[i].Ratio = 0
			rows[i].Unbounded = true
		}
	}
	return rows
}

// Top returns the first row, the bottleneck, and false if there are no steps.
func (r Report) Top() (Row, bool) {
	if len(r.Steps) == 0 {
		return Row{}, false
	}
	return r.Steps[0], true
}

// WriteText renders the report as a header block followed by a table.
// Numbers are grouped by thousands.
func (r Report) WriteText(w io.Writer) error {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	field := func(label, value string) {
		fmt.Fprintf(&b, "%-11s %s\n", label, value)
	}
	field("Stage", r.Stage+r.Part)
	field("Guarantees", r.Guarantees)
	field("Status", r.Status)
	if r.Fault != "" {
		field("Fault", r.Fault)
	}
	for _, s := range r.Suppressed {
		field("Suppressed", s)
	}
	field("Elapsed", p.Sprintf("%d ms", r.ElapsedMs))
	order := "descending"
	if r.Ascending {
		order = "ascending"
	}
	field("Ordered by", fmt.Sprintf("%s (%s)", r.OrderKey, order))

	if len(r.Steps) > 0 {
		b.WriteString("\n")
		table := [][]string{{"RANK", "STEP", strings.ToUpper(r.OrderKey), "RATIO", "DONE"}}
		for _, row := range r.Steps {
			ratio := fmt.Sprintf("%.2f", row.Ratio)
			if row.Unbounded {
				ratio = "inf"
			}
			done := "no"
			if row.Completed {
				done = "yes"
			}
			table = append(table, []string{
				strconv.Itoa(row.Rank),
				row.Step,
				p.Sprintf("%d", row.Value),
				ratio,
				done,
			})
		}
		writeTable(&b, table, []bool{true, false, true, true, false})
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeTable pads cells to column width, right-aligned where right[i] is set.
// The last column is never padded.
func writeTable(b *strings.Builder, table [][]string, right []bool) {
	widths := make([]int, len(table[0]))
	for _, row := range table {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}
	for _, row := range table {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			switch {
			case i == len(row)-1:
				b.WriteString(cell)
			case right[i]:
				fmt.Fprintf(b, "%*s", widths[i], cell)
			default:
				fmt.Fprintf(b, "%-*s", widths[i], cell)
			}
		}
		b.WriteString("\n")
	}
}
