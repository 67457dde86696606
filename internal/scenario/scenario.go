// Package scenario loads stage scenarios from YAML files.
//
// A scenario names a stage, its ordering guarantees and a chain of synthetic
// steps (one producer, any number of processors, one sink), plus an optional
// expected outcome. Files are checked against an embedded CUE schema before
// they are decoded, so typos and out-of-range values are reported with their
// path.
//
//	name: nodes
//	batches: 100
//	guarantees: [recycle_batches]
//	steps:
//	  - {name: read, kind: producer}
//	  - {name: parse, kind: processor, processors: 4, delay: 1ms}
//	  - {name: write, kind: sink}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBatchSize is the number of items per batch when batch_size is omitted.
const DefaultBatchSize = 100

// Step kinds.
const (
	KindProducer  = "producer"
	KindProcessor = "processor"
	KindSink      = "sink"
)

// Guarantee names as written in scenario files.
const (
	GuaranteeOrder   = "order_send_downstream"
	GuaranteeRecycle = "recycle_batches"
)

// Scenario describes one stage run.
type Scenario struct {
	Name        string   `yaml:"name" json:"name"`
	Part        string   `yaml:"part,omitempty" json:"part,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Batches     int64    `yaml:"batches" json:"batches"`
	BatchSize   int      `yaml:"batch_size,omitempty" json:"batch_size"`
	Guarantees  []string `yaml:"guarantees,omitempty" json:"guarantees,omitempty"`
	Steps       []Step   `yaml:"steps" json:"steps"`
	Expect      *Expect  `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Step is one synthetic step of the chain.
type Step struct {
	Name       string   `yaml:"name" json:"name"`
	Kind       string   `yaml:"kind" json:"kind"`
	Delay      Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	FailAt     int64    `yaml:"fail_at,omitempty" json:"fail_at,omitempty"`
	Processors int      `yaml:"processors,omitempty" json:"processors,omitempty"`
	QueueSize  int      `yaml:"queue_size,omitempty" json:"queue_size,omitempty"`
}

// Expect is the outcome a scenario expects. A nil Expect means the run must
// succeed.
type Expect struct {
	Fault         bool   `yaml:"fault,omitempty" json:"fault,omitempty"`
	FaultContains string `yaml:"fault_contains,omitempty" json:"fault_contains,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("2ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalText implements encoding.TextMarshaler, used for JSON output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse parses a scenario document. The document is validated against the
// schema first, then decoded strictly, then checked for chain shape.
func Parse(data []byte) (*Scenario, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid scenario: empty document")
	}
	if err := validateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if sc.BatchSize == 0 {
		sc.BatchSize = DefaultBatchSize
	}

	if err := validateChain(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// ErrInvalidChain is wrapped by errors about step chain shape.
var ErrInvalidChain = errors.New("invalid step chain")

// validateChain checks the step chain shape: a producer first, a sink last,
// processors in between and unique names. Build relies on it, so it does not
// assume the schema has run.
func validateChain(sc *Scenario) error {
	if len(sc.Steps) < 2 {
		return fmt.Errorf("%w: need a producer and a sink, got %d steps", ErrInvalidChain, len(sc.Steps))
	}
	names := make(map[string]bool, len(sc.Steps))
	last := len(sc.Steps) - 1
	for i, step := range sc.Steps {
		if names[step.Name] {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidChain, step.Name)
		}
		names[step.Name] = true

		var want string
		switch i {
		case 0:
			want = KindProducer
		case last:
			want = KindSink
		default:
			want = KindProcessor
		}
		if step.Kind != want {
			return fmt.Errorf("%w: step %d (%s) is a %s, want %s", ErrInvalidChain, i, step.Name, step.Kind, want)
		}
	}
	return nil
}

// Total returns the number of batches the sink should see on success.
func (sc *Scenario) Total() int64 {
	return sc.Batches
}
