// Package abtest assigns each experiment in a carrier to variant A or B once
// per storage origin and reads the sticky assignment back.
//
// A Resolver starts Unready and hands out a neutral placeholder until the
// host calls MarkReady, confirming storage access. Entering Ready runs a
// one-time sweep that assigns every configured experiment that has no
// stored record yet. Stored records are never overwritten.
package abtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/nvandessel/ab-test/internal/logging"
	"github.com/nvandessel/ab-test/internal/store"
)

var (
	// ErrNoCarrier is returned when a resolver is built or used without a carrier.
	ErrNoCarrier = errors.New("resolver must be used within a configured experiment carrier")

	// ErrMalformedRecord is returned when a stored record is not a valid variant.
	ErrMalformedRecord = errors.New("malformed assignment record")
)

// State is the resolver lifecycle state.
type State int

const (
	// Unready means storage access has not been confirmed.
	Unready State = iota
	// Ready means storage is accessible and the sweep has run.
	Ready
)

func (s State) String() string {
	switch s {
	case Unready:
		return "unready"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source draws uniform samples in [0, 1).
type Source interface {
	Float64() float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRand sets the random source used by the sweep.
func WithRand(src Source) Option {
	return func(r *Resolver) {
		if src != nil {
			r.rand = src
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAssignmentLog sets the JSONL assignment trace. A nil log disables tracing.
func WithAssignmentLog(al *logging.AssignmentLog) Option {
	return func(r *Resolver) {
		r.trace = al
	}
}

// globalSource adapts the math/rand/v2 top-level generator to Source.
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Resolver resolves experiment assignments against one store.
// It is safe for concurrent use.
type Resolver struct {
	carrier *experiment.Carrier
	store   store.Store
	rand    Source
	logger  *slog.Logger
	trace   *logging.AssignmentLog

	mu    sync.Mutex
	state State
}

// New creates an Unready resolver. A nil carrier is a usage error.
func New(carrier *experiment.Carrier, s store.Store, opts ...Option) (*Resolver, error) {
	if carrier == nil {
		return nil, ErrNoCarrier
	}
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}

	r := &Resolver{
		carrier: carrier,
		store:   s,
		rand:    globalSource{},
		logger:  logging.Discard(),
		state:   Unready,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MarkReady performs the single Unready -> Ready transition and runs the
// assignment sweep. Later calls are no-ops. The transition is final even
// when the sweep fails part-way; the first storage error stops the sweep
// and is returned.
func (r *Resolver) MarkReady(ctx context.Context) error {
	if r == nil || r.carrier == nil {
		return ErrNoCarrier
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Ready {
		return nil
	}
	r.state = Ready

	r.logger.Debug("resolver ready, running assignment sweep",
		"experiments", len(r.carrier.Items()),
		"prefix", r.carrier.Prefix())

	return r.sweep(ctx)
}

// sweep assigns every configured experiment without a stored record.
// Caller must hold r.mu.
func (r *Resolver) sweep(ctx context.Context) error {
	items := r.carrier.Items()
	for _, name := range items.Names() {
		existing, ok, err := r.store.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("sweep %q: %w", name, err)
		}
		// An empty value counts as no record.
		if ok && existing != "" {
			r.logger.Debug("keeping existing assignment", "experiment", name)
			r.trace.Log(logging.AssignmentEvent{Experiment: name, Action: logging.ActionKept})
			continue
		}

		resolved := items[name].Resolve(name, r.carrier.Prefix())
		sample := r.rand.Float64()
		chosen := resolved.Choose(sample)

		data, err := json.Marshal(chosen)
		if err != nil {
			return fmt.Errorf("sweep %q: encode record: %w", name, err)
		}
		if err := r.store.Set(ctx, name, string(data)); err != nil {
			return fmt.Errorf("sweep %q: %w", name, err)
		}

		r.logger.Info("assigned variant", "experiment", name, "variant", chosen.ID)
		r.logger.Log(ctx, logging.LevelTrace, "stored record", "experiment", name, "record", string(data), "sample", sample)
		r.trace.Log(logging.AssignmentEvent{
			Experiment: name,
			Action:     logging.ActionAssigned,
			VariantID:  chosen.ID,
			Sample:     sample,
		})
	}
	return nil
}

// GetItem returns the assignment for name.
//
// Before MarkReady it returns the placeholder {ID: "", Text: ""} without
// touching storage. Once ready it returns the stored record, or nil when
// nothing is stored under name.
func (r *Resolver) GetItem(ctx context.Context, name string) (*experiment.Variant, error) {
	if r == nil || r.carrier == nil {
		return nil, ErrNoCarrier
	}

	if r.State() == Unready {
		return experiment.Placeholder(), nil
	}

	return Stored(ctx, r.store, name)
}

// Stored reads the record for name straight from s, bypassing the resolver
// lifecycle. It returns nil when nothing is stored and ErrMalformedRecord
// when the stored value does not decode.
func Stored(ctx context.Context, s store.Store, name string) (*experiment.Variant, error) {
	raw, ok, err := s.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	return decodeRecord(name, raw)
}

// Assignments returns GetItem for every configured experiment, keyed by name.
// Unassigned experiments map to nil.
func (r *Resolver) Assignments(ctx context.Context) (map[string]*experiment.Variant, error) {
	if r == nil || r.carrier == nil {
		return nil, ErrNoCarrier
	}

	out := make(map[string]*experiment.Variant, len(r.carrier.Items()))
	for _, name := range r.carrier.Items().Names() {
		v, err := r.GetItem(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func decodeRecord(name, raw string) (*experiment.Variant, error) {
	var v experiment.Variant
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w for %q: %v", ErrMalformedRecord, name, err)
	}
	return &v, nil
}
