// Package stats provides the named numeric metrics that pipeline steps expose
// for diagnostics.
//
// A Key names a metric, a Stat holds its current value and a Provider maps keys
// to stats for one step. Stats are read-only from the outside: the step that
// owns them updates them, everything else only reads.
//
// Values are advisory. Readers may observe a stat while it is being updated and
// must tolerate slightly stale numbers.
package stats

import (
	"sync"
	"sync/atomic"
)

// Key identifies a metric. Keys are comparable values and can be used as map keys.
type Key struct {
	name        string
	shortName   string
	description string
}

// NewKey creates a key. shortName may be empty, in which case name is used.
func NewKey(name, shortName, description string) Key {
	return Key{name: name, shortName: shortName, description: description}
}

// Name returns the full key name, e.g. "done_batches".
func (k Key) Name() string { return k.name }

// ShortName returns the abbreviated name used in compact output.
func (k Key) ShortName() string {
	if k.shortName == "" {
		return k.name
	}
	return k.shortName
}

// Description returns a human-readable description.
func (k Key) Description() string { return k.description }

// String implements fmt.Stringer.
func (k Key) String() string { return k.name }

// Well-known keys exposed by steps.
var (
	ReceivedBatches     = NewKey("received_batches", "in", "Number of batches received from upstream")
	DoneBatches         = NewKey("done_batches", "out", "Number of batches processed and sent downstream")
	TotalProcessingTime = NewKey("total_processing_time", "=", "Total processing time for all done batches (ms)")
	UpstreamIdleTime    = NewKey("upstream_idle_time", "^", "Time spent waiting for batches from upstream (ms)")
	DownstreamIdleTime  = NewKey("downstream_idle_time", "v", "Time spent waiting for downstream to accept batches (ms)")
	AvgProcessingTime   = NewKey("avg_processing_time", "avg", "Average processing time per done batch (ms)")
	Progress            = NewKey("progress", "", "Number of items processed")
)

// Keys returns the well-known keys in their canonical order.
func Keys() []Key {
	return []Key{
		ReceivedBatches,
		DoneBatches,
		TotalProcessingTime,
		UpstreamIdleTime,
		DownstreamIdleTime,
		AvgProcessingTime,
		Progress,
	}
}

// Lookup finds a well-known key by full or short name.
func Lookup(name string) (Key, bool) {
	for _, k := range Keys() {
		if k.name == name || (k.shortName != "" && k.shortName == name) {
			return k, true
		}
	}
	return Key{}, false
}

// DetailLevel ranks how interesting a stat is for human output.
type DetailLevel int

const (
	// DetailBasic stats are always shown.
	DetailBasic DetailLevel = iota
	// DetailImportant stats are shown in normal reports.
	DetailImportant
	// DetailDetailed stats are only shown in verbose reports.
	DetailDetailed
)

// Stat is a single metric value.
type Stat interface {
	AsLong() int64
	DetailLevel() DetailLevel
}

// Provider exposes the stats of one step.
type Provider interface {
	// Stat returns the stat for key, or nil if the provider has no such stat.
	Stat(key Key) Stat
	// Keys returns the keys this provider exposes, in registration order.
	Keys() []Key
}

// Value reads key from p, treating a missing provider or stat as 0.
func Value(p Provider, key Key) int64 {
	if p == nil {
		return 0
	}
	s := p.Stat(key)
	if s == nil {
		return 0
	}
	return s.AsLong()
}

// Counter is an atomic int64 stat.
type Counter struct {
	v     atomic.Int64
	level DetailLevel
}

// NewCounter creates a counter with the given detail level.
func NewCounter(level DetailLevel) *Counter {
	return &Counter{level: level}
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }

// Set replaces the value.
func (c *Counter) Set(v int64) { c.v.Store(v) }

// AsLong implements Stat.
func (c *Counter) AsLong() int64 { return c.v.Load() }

// DetailLevel implements Stat.
func (c *Counter) DetailLevel() DetailLevel { return c.level }

// Func is a stat computed on read.
type Func struct {
	fn    func() int64
	level DetailLevel
}

// NewFunc creates a stat whose value is computed by fn on every read.
func NewFunc(level DetailLevel, fn func() int64) *Func {
	return &Func{fn: fn, level: level}
}

// AsLong implements Stat.
func (f *Func) AsLong() int64 { return f.fn() }

// DetailLevel implements Stat.
func (f *Func) DetailLevel() DetailLevel { return f.level }

// Registry is a Provider backed by a map. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stats map[Key]Stat
	order []Key
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stats: make(map[Key]Stat)}
}

// Register adds or replaces the stat for key and returns it.
func (r *Registry) Register(key Key, s Stat) Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stats[key]; !ok {
		r.order = append(r.order, key)
	}
	r.stats[key] = s
	return s
}

// Counter registers a new counter under key and returns it.
func (r *Registry) Counter(key Key, level DetailLevel) *Counter {
	c := NewCounter(level)
	r.Register(key, c)
	return c
}

// Stat implements Provider.
func (r *Registry) Stat(key Key) Stat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats[key]
}

// Keys implements Provider.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot reads every registered stat once.
func Snapshot(p Provider) map[string]int64 {
	out := make(map[string]int64)
	if p == nil {
		return out
	}
	for _, k := range p.Keys() {
		out[k.Name()] = Value(p, k)
	}
	return out
}
