package scenario

import (
	"fmt"
	"time"

	"github.com/roach88/stagerun/internal/staging"
	"github.com/roach88/stagerun/internal/steps"
)

// OrderingGuarantees converts the scenario's guarantee names to a bitmask.
func (sc *Scenario) OrderingGuarantees() (staging.OrderingGuarantees, error) {
	var g staging.OrderingGuarantees
	for _, name := range sc.Guarantees {
		switch name {
		case GuaranteeOrder:
			g |= staging.OrderSendDownstream
		case GuaranteeRecycle:
			g |= staging.RecycleBatches
		default:
			return 0, fmt.Errorf("unknown guarantee %q", name)
		}
	}
	return g, nil
}

// Build creates a stage holding the scenario's steps, chained in order.
// The stage is not executed.
func Build(sc *Scenario, opts ...staging.ExecutionOption) (*staging.Stage, error) {
	if err := validateChain(sc); err != nil {
		return nil, err
	}
	guarantees, err := sc.OrderingGuarantees()
	if err != nil {
		return nil, err
	}

	config := staging.DefaultConfiguration()
	if sc.BatchSize > 0 {
		config.BatchSize = sc.BatchSize
	}
	stage := staging.NewStage(sc.Name, sc.Part, config, guarantees, opts...)
	ctrl := stage.Control()

	first := sc.Steps[0]
	producer := steps.NewProducer(first.Name, ctrl, sc.Batches, config.BatchSize, stepOptions(first)...)
	if err := stage.Add(producer); err != nil {
		return nil, err
	}

	var prev *steps.Processor
	for _, def := range sc.Steps[1:] {
		var next *steps.Processor
		if def.Kind == KindSink {
			next = steps.NewSink(def.Name, ctrl, stepOptions(def)...)
		} else {
			next = steps.NewProcessor(def.Name, ctrl, stepOptions(def)...)
		}
		if prev == nil {
			producer.Then(next)
		} else {
			prev.Then(next)
		}
		if err := stage.Add(next); err != nil {
			return nil, err
		}
		prev = next
	}
	return stage, nil
}

func stepOptions(def Step) []steps.Option {
	var opts []steps.Option
	if def.Delay > 0 {
		opts = append(opts, steps.WithDelay(time.Duration(def.Delay)))
	}
	if def.FailAt > 0 {
		opts = append(opts, steps.WithFailAt(def.FailAt))
	}
	if def.Processors > 0 {
		opts = append(opts, steps.WithWorkers(def.Processors))
	}
	if def.QueueSize > 0 {
		opts = append(opts, steps.WithQueueSize(def.QueueSize))
	}
	return opts
}
