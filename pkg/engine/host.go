package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/internal/ratelimiter"
	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/metrics"
)

// CallContext carries the per-call inputs supplied by the environment.
type CallContext struct {
	Context context.Context

	// Caller is the identity the call acts under
	Caller Identity
}

// Call returns a CallContext for caller.
func Call(ctx context.Context, caller Identity) CallContext {
	return CallContext{Context: ctx, Caller: caller}
}

func (cc CallContext) context() context.Context {
	if cc.Context == nil {
		return context.Background()
	}
	return cc.Context
}

// HostOptions configures a Host. The zero value is a usable configuration:
// system clock, unlimited budget and rate, no notifier, no metrics.
type HostOptions struct {
	// Clock stamps every mutating call. Nil means SystemClock().
	Clock Clock

	// CallBudget caps the cell loads and stores one call may perform.
	// A call that runs out is aborted with no effect. 0 means unlimited.
	CallBudget uint64

	// RateLimit is the sustained number of mutating calls admitted per
	// second. 0 means unlimited.
	RateLimit float64

	// RateBurst is the number of mutating calls admitted back to back.
	RateBurst int

	// Notifier receives an Event for each committed mutation
	Notifier Notifier

	// Metrics records per-operation observations
	Metrics metrics.EngineMetrics
}

// Host is the execution environment every Namespace runs in.
//
// It owns the cell backend and imposes the engine's call model:
//   - Mutating calls are admitted by the rate limiter, then run one at a
//     time under the write lock, each in a single backend Update. Either
//     every cell the call stored is committed, or none is.
//   - Read calls share the read lock and run in a backend View, so they
//     only ever observe committed state.
//   - Every call is metered against CallBudget.
//   - After a mutating call commits, its events are published in order.
//
// Host also keeps the registry of namespaces, an enumeration index stored
// under the null reference.
type Host struct {
	backend  cell.Backend
	clock    Clock
	limiter  *ratelimiter.RateLimiter
	budget   uint64
	notifier Notifier
	metrics  metrics.EngineMetrics

	registry      index
	registrations slots

	mu sync.RWMutex
}

// NewHost creates a Host on backend. The Host takes ownership of the backend
// and closes it in Close.
func NewHost(backend cell.Backend, opts HostOptions) *Host {
	h := &Host{
		backend:       backend,
		clock:         opts.Clock,
		limiter:       ratelimiter.New(opts.RateLimit, opts.RateBurst),
		budget:        opts.CallBudget,
		notifier:      opts.Notifier,
		metrics:       opts.Metrics,
		registry:      index{slots: slots{salt: NullRef}},
		registrations: slots{salt: NullRef},
	}
	if h.clock == nil {
		h.clock = SystemClock()
	}
	if h.notifier == nil {
		h.notifier = noopNotifier{}
	}
	if h.metrics == nil {
		h.metrics = metrics.NewNoopEngineMetrics()
	}

	logger.Info("Engine host started: backend=%s budget=%d rate_limit=%g",
		backend.Name(), opts.CallBudget, opts.RateLimit)
	return h
}

// Backend returns the backend the host runs on.
func (h *Host) Backend() cell.Backend {
	return h.backend
}

// SetRateLimit changes the sustained mutating-call rate of a running host.
// 0 removes the limit. The burst configured at creation is kept.
func (h *Host) SetRateLimit(callsPerSecond float64) {
	h.limiter.SetLimit(callsPerSecond)
	logger.Info("Engine host rate limit set to %g calls/s", callsPerSecond)
}

// RateLimited reports whether mutating calls are currently throttled.
func (h *Host) RateLimited() bool {
	return !h.limiter.Unlimited()
}

// Close closes the underlying backend.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backend.Close()
}

// call is the state of one mutating call while it runs.
type call struct {
	tx     cell.Store
	caller Identity
	now    uint64
	events []Event
}

// emit queues an event for publication once the call commits.
func (c *call) emit(e Event) {
	e.Caller = c.caller
	e.Timestamp = c.now
	c.events = append(c.events, e)
}

// update runs fn as one atomic mutating call.
func (h *Host) update(cc CallContext, op string, fn func(c *call) error) (err error) {
	ctx := cc.context()
	start := time.Now()
	var meter *cell.Meter
	defer func() { h.observe(op, start, meter, err) }()

	if !h.limiter.Unlimited() && !h.limiter.Allow() {
		logger.Debug("%s throttled by rate limit", op)
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c := &call{caller: cc.Caller, now: timestamp(h.clock.Now())}
	err = h.backend.Update(ctx, func(tx cell.Store) error {
		meter = cell.NewMeter(tx, h.budget)
		c.tx = meter
		c.events = c.events[:0]
		return fn(c)
	})
	if err != nil {
		return err
	}

	for _, e := range c.events {
		h.notify(e)
	}
	return nil
}

// view runs fn as one read-only call.
func (h *Host) view(ctx context.Context, op string, fn func(tx cell.Store) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	var meter *cell.Meter
	defer func() { h.observe(op, start, meter, err) }()

	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.backend.View(ctx, func(tx cell.Store) error {
		meter = cell.NewMeter(tx, h.budget)
		return fn(meter)
	})
}

func (h *Host) observe(op string, start time.Time, meter *cell.Meter, err error) {
	h.metrics.RecordOperation(op, time.Since(start), err)
	if meter != nil {
		h.metrics.RecordBudget(op, meter.Used())
	}

	var engineErr *Error
	switch {
	case err == nil:
		logger.Debug("%s ok (%s)", op, time.Since(start))
	case errors.As(err, &engineErr):
		logger.Debug("%s aborted: %v", op, err)
	case errors.Is(err, cell.ErrBudgetExhausted):
		logger.Warn("%s aborted: %v", op, err)
	default:
		logger.Error("%s failed: %v", op, err)
	}
}

func (h *Host) notify(e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Event notifier panicked on %s: %v", e.Kind, r)
		}
	}()
	h.notifier.Notify(e)
}

// ============================================================================
// Namespace Registry
// ============================================================================

// registration word: [0] = 1, creator identity right-aligned.
func registrationWord(owner Identity) cell.Word {
	w := owner.word()
	w[0] = 1
	return w
}

// CreateNamespace mints a new, empty namespace owned by the caller.
func (h *Host) CreateNamespace(cc CallContext) (*Namespace, error) {
	ref := NewRef()
	var count uint64

	err := h.update(cc, "CreateNamespace", func(c *call) error {
		if err := c.tx.Store(h.registrations.registration(ref), registrationWord(c.caller)); err != nil {
			return err
		}
		if err := h.registry.append(c.tx, ref.word()); err != nil {
			return err
		}
		var err error
		if count, err = h.registry.length(c.tx); err != nil {
			return err
		}
		c.emit(Event{Kind: EventNamespaceCreated, Namespace: ref})
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.metrics.SetNamespaceCount(int(count))
	logger.Info("Created namespace %s", ref)
	return h.open(ref), nil
}

// Namespaces lists every registered namespace, in registry order. The
// namespace count metric is refreshed from the result.
func (h *Host) Namespaces(ctx context.Context) ([]Ref, error) {
	var refs []Ref
	err := h.view(ctx, "Namespaces", func(tx cell.Store) error {
		words, err := h.registry.snapshot(tx, 0, 0)
		if err != nil {
			return err
		}
		refs = make([]Ref, len(words))
		for i, w := range words {
			refs[i] = refFromWord(w)
		}
		return nil
	})
	if err == nil {
		h.metrics.SetNamespaceCount(len(refs))
	}
	return refs, err
}

// Namespace resolves a registered reference. Unknown references fail with
// ErrNotFound.
func (h *Host) Namespace(ctx context.Context, ref Ref) (*Namespace, error) {
	var registered bool
	err := h.view(ctx, "Namespace", func(tx cell.Store) error {
		w, err := tx.Load(h.registrations.registration(ref))
		registered = !w.IsZero()
		return err
	})
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, &Error{Op: "Namespace", Code: ErrNotFound, Message: fmt.Sprintf("namespace %s is not registered", ref)}
	}
	return h.open(ref), nil
}

// DropNamespace unregisters an empty namespace. Only its creator may drop it.
func (h *Host) DropNamespace(cc CallContext, ref Ref) error {
	const op = "DropNamespace"
	var count uint64

	err := h.update(cc, op, func(c *call) error {
		reg := h.registrations.registration(ref)
		w, err := c.tx.Load(reg)
		if err != nil {
			return err
		}
		if w.IsZero() {
			return &Error{Op: op, Code: ErrNotFound, Message: fmt.Sprintf("namespace %s is not registered", ref)}
		}
		if identityFromWord(w) != c.caller {
			return &Error{Op: op, Code: ErrNotOwner, Message: fmt.Sprintf("namespace %s belongs to %s", ref, identityFromWord(w))}
		}

		ns := h.open(ref)
		n, err := ns.index.length(c.tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return &Error{Op: op, Code: ErrNotEmpty, Message: fmt.Sprintf("namespace %s holds %d entries", ref, n)}
		}

		if err := c.tx.Store(reg, cell.ZeroWord); err != nil {
			return err
		}
		if err := c.tx.Store(ns.slots.counter(), cell.ZeroWord); err != nil {
			return err
		}
		if err := c.tx.Store(ns.slots.indexLength(), cell.ZeroWord); err != nil {
			return err
		}
		if _, err := h.registry.remove(c.tx, ref.word()); err != nil {
			return err
		}
		if count, err = h.registry.length(c.tx); err != nil {
			return err
		}
		c.emit(Event{Kind: EventNamespaceDropped, Namespace: ref})
		return nil
	})
	if err != nil {
		return err
	}

	h.metrics.SetNamespaceCount(int(count))
	logger.Info("Dropped namespace %s", ref)
	return nil
}

// open returns the Namespace for ref without checking registration.
func (h *Host) open(ref Ref) *Namespace {
	s := slots{salt: ref}
	return &Namespace{host: h, ref: ref, slots: s, index: index{slots: s}}
}
