package scenario

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed scenario.cue
var schemaSrc string

// Issue is a single schema violation.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// SchemaError lists every schema violation found in a scenario document.
type SchemaError struct {
	Issues []Issue
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 1 {
		return "schema: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("schema: %d issues: %s", len(e.Issues), strings.Join(parts, "; "))
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

// scenarioSchema compiles the embedded schema once and returns #Scenario.
func scenarioSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSrc, cue.Filename("scenario.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Scenario"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("compile scenario schema: #Scenario not defined")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// validateDocument checks a decoded YAML document against #Scenario.
func validateDocument(doc map[string]any) error {
	ctx, def, err := scenarioSchema()
	if err != nil {
		return err
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return &SchemaError{Issues: issuesOf(err)}
	}
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Issues: issuesOf(err)}
	}
	return nil
}

func issuesOf(err error) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{
			Path:    documentPath(e.Path()),
			Message: fmt.Sprintf(format, args...),
		}
		if seen[issue.String()] {
			continue
		}
		seen[issue.String()] = true
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: err.Error()})
	}
	return issues
}

// documentPath joins a CUE error path as it appears in the scenario file,
// dropping the leading schema definition such as #Scenario.
func documentPath(path []string) string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	return strings.Join(path, ".")
}
