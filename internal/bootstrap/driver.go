// Package bootstrap runs the one-shot lake bootstrap sequence and then keeps
// the process alive.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/Semprini/data-products/ducklake-init/internal/readiness"
)

const instrumentationName = "ducklake-init"

// ErrAlreadyRun is returned when Run is called a second time. A process
// bootstraps exactly once.
var ErrAlreadyRun = errors.New("bootstrap already ran")

// Renderer is satisfied by *sessionrc.Renderer.
type Renderer interface {
	Render() error
}

// Dependency is satisfied by *clients.PostgresClient and
// *clients.ObjectStoreClient. Ping is a single readiness attempt; Probe is
// the breaker-guarded deep health check.
type Dependency interface {
	Name() string
	Ping(ctx context.Context) error
	Probe(ctx context.Context) ProbeResult
}

// BucketEnsurer is satisfied by *clients.BucketProvisioner.
type BucketEnsurer interface {
	Ensure(ctx context.Context, bucket string) error
}

// LakeAttacher is satisfied by *lake.Bootstrapper.
type LakeAttacher interface {
	Attach(ctx context.Context) error
	Probe(ctx context.Context) ProbeResult
}

// ReadinessOptions controls how long the driver waits for each dependency.
type ReadinessOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// Clock defaults to clock.WallClock.
	Clock clock.Clock
}

// Deps groups the collaborators of a Driver.
type Deps struct {
	Renderer  Renderer
	Postgres  Dependency
	Storage   Dependency
	Buckets   BucketEnsurer
	Bucket    string
	Lake      LakeAttacher
	Readiness ReadinessOptions
}

// Driver moves through the bootstrap states in a fixed order. State and the
// last Result may be read concurrently from the status API.
type Driver struct {
	deps          Deps
	phaseDuration metric.Float64Histogram

	started atomic.Bool

	mu     sync.RWMutex
	state  State
	result *Result
}

// New constructs a Driver in StateInit.
func New(deps Deps) *Driver {
	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"ducklake_init.phase.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of each bootstrap phase"),
	)
	if err != nil {
		slog.Warn("phase duration histogram unavailable", "err", err)
	}
	return &Driver{
		deps:          deps,
		phaseDuration: hist,
		state:         StateInit,
	}
}

type phase struct {
	name  string
	reach State
	run   func(ctx context.Context) error
}

func (d *Driver) phases() []phase {
	return []phase{
		{PhaseRenderConfig, StateConfigRendered, func(context.Context) error { return d.deps.Renderer.Render() }},
		{PhaseWaitPostgres, StateDBReady, func(ctx context.Context) error { return d.wait(ctx, d.deps.Postgres) }},
		{PhaseWaitStorage, StateStorageReady, func(ctx context.Context) error { return d.wait(ctx, d.deps.Storage) }},
		{PhaseEnsureBucket, StateBucketEnsured, func(ctx context.Context) error { return d.deps.Buckets.Ensure(ctx, d.deps.Bucket) }},
		{PhaseAttachLake, StateLakeAttached, d.deps.Lake.Attach},
	}
}

func (d *Driver) wait(ctx context.Context, dep Dependency) error {
	return readiness.Wait(ctx, readiness.Spec{
		Target:   dep.Name(),
		Attempt:  dep.Ping,
		Interval: d.deps.Readiness.Interval,
		Timeout:  d.deps.Readiness.Timeout,
		Clock:    d.deps.Readiness.Clock,
	})
}

// Run executes every phase once, in order. The first failing phase stops the
// run; its error is returned wrapped with the phase name so that errors.As
// still reaches the typed error underneath. The returned Result is never nil
// unless ErrAlreadyRun is returned.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if !d.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "ducklake-init.bootstrap")
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started")
	d.setResult(&Result{Status: StatusInProgress, State: StateInit})

	var phases []PhaseResult
	for _, p := range d.phases() {
		pr, err := d.runPhase(ctx, p)
		phases = append(phases, pr)

		if err != nil {
			res := &Result{Status: StatusError, State: d.State(), Phases: phases}
			d.setResult(res)
			span.SetAttributes(attribute.String("bootstrap.failed_phase", p.name))
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "bootstrap failed", "phase", p.name, "state", res.State, "err", err)
			return copyResult(res), fmt.Errorf("%s: %w", p.name, err)
		}

		d.setState(p.reach)
		d.setResult(&Result{Status: StatusInProgress, State: p.reach, Phases: phases})
	}

	res := &Result{Status: StatusOK, State: d.State(), Phases: phases}
	d.setResult(res)
	span.SetStatus(codes.Ok, "")
	slog.InfoContext(ctx, "bootstrap completed", "state", res.State)
	return copyResult(res), nil
}

func (d *Driver) runPhase(ctx context.Context, p phase) (PhaseResult, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "ducklake-init."+p.name)
	defer span.End()

	slog.InfoContext(ctx, "bootstrap phase started", "phase", p.name)
	start := time.Now()
	err := p.run(ctx)
	elapsed := time.Since(start)

	pr := PhaseResult{Name: p.name, Status: StatusOK, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		pr.Status = StatusError
		pr.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap phase ok", "phase", p.name, "duration_ms", pr.DurationMs)
	}

	if d.phaseDuration != nil {
		d.phaseDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
			attribute.String("phase", p.name),
			attribute.String("status", pr.Status),
		))
	}
	return pr, err
}

// Idle marks the driver idle and blocks until ctx is cancelled.
func (d *Driver) Idle(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	if !d.IsReady() {
		return fmt.Errorf("cannot idle from state %s", d.State())
	}
	d.setState(StateIdle)
	d.mu.Lock()
	if d.result != nil {
		d.result.State = StateIdle
	}
	d.mu.Unlock()
	return Idle(ctx, clk, interval)
}

// State returns the last state reached.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// IsReady reports whether the lake has been attached.
func (d *Driver) IsReady() bool {
	s := d.State()
	return s == StateLakeAttached || s == StateIdle
}

// Result returns a snapshot of the current or last run, or nil before Run.
func (d *Driver) Result() *Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyResult(d.result)
}

// DeepHealth probes the catalog database, the object store and the engine
// session concurrently.
func (d *Driver) DeepHealth(ctx context.Context) map[string]ProbeResult {
	probes := []struct {
		name  string
		probe func(context.Context) ProbeResult
	}{
		{d.deps.Postgres.Name(), d.deps.Postgres.Probe},
		{d.deps.Storage.Name(), d.deps.Storage.Probe},
		{"lake", d.deps.Lake.Probe},
	}

	results := make(map[string]ProbeResult, len(probes))
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range probes {
		g.Go(func() error {
			r := p.probe(ctx)
			mu.Lock()
			results[p.name] = r
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Driver) setResult(r *Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = r
}

func copyResult(r *Result) *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Phases = append([]PhaseResult(nil), r.Phases...)
	return &c
}
