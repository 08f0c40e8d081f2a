package devicesim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielorbach/go-component"
)

// An Updater is the engine's scheduling unit: a periodic loop that samples a
// value and writes it into a Sink. It is created bound to exactly one Sink and
// one Sampler and carries a small lifecycle:
//
//   - Enable/Disable toggle whether ticks produce writes. They are idempotent
//     and observed at the next tick boundary at the latest. A disabled loop
//     still idles at its fixed cadence - a deliberate simplification that keeps
//     the externally observable tick cadence intact when re-enabled.
//   - Start launches the scheduling loop on its own goroutine, exactly once,
//     without blocking the caller.
//   - Stop is idempotent and terminal: it does not interrupt an in-flight tick,
//     but no further tick begins once the request is observed, and the loop's
//     goroutine exits.
//
// The lifecycle controls use atomic flags and are safe to call from a different
// goroutine than the loop's. Launching, however, is not meant to race: a twin's
// lifecycle calls arrive from a single external command stream.
//
// A failed sink write is logged and counted, and the loop continues; each tick
// is independent and one failed write must not starve the following ones.
type Updater struct {
	name    string
	sink    Sink
	sampler Sampler
	period  time.Duration

	enabled atomic.Bool
	stopped atomic.Bool
	started atomic.Bool

	launch   sync.Once
	quit     sync.Once
	stopping chan struct{} // closed by Stop
	exited   chan struct{} // closed when the loop returns
}

// NewUpdater returns an Updater that, once started and enabled, writes a fresh
// sample into the sink every period. The name labels the updater in logs and
// telemetry (e.g. "Device0001/sensor1").
//
// A new Updater is disabled and not yet started.
func NewUpdater(name string, sink Sink, sampler Sampler, period time.Duration) *Updater {
	if sink == nil {
		panic("devicesim: NewUpdater called with nil sink")
	}
	if sampler == nil {
		panic("devicesim: NewUpdater called with nil sampler")
	}
	if period <= 0 {
		panic("devicesim: NewUpdater called with non-positive period")
	}
	return &Updater{
		name:     name,
		sink:     sink,
		sampler:  sampler,
		period:   period,
		stopping: make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Name returns the updater's label.
func (u *Updater) Name() string { return u.name }

// Enable lets subsequent ticks produce writes. It is idempotent.
func (u *Updater) Enable() { u.enabled.Store(true) }

// Disable stops subsequent ticks from producing writes while keeping the loop
// alive at its cadence. It is idempotent.
func (u *Updater) Disable() { u.enabled.Store(false) }

// Enabled reports whether ticks currently produce writes.
func (u *Updater) Enabled() bool { return u.enabled.Load() }

// Stop terminally requests loop termination. It is idempotent, does not block,
// and does not interrupt an in-flight tick; no further tick begins after the
// request is observed. A stopped Updater never ticks again, even if Enable is
// called afterwards.
func (u *Updater) Stop() {
	u.quit.Do(func() {
		u.stopped.Store(true)
		close(u.stopping)
	})
}

// Stopped reports whether terminal stop was requested (or the loop's context
// was cancelled).
func (u *Updater) Stopped() bool { return u.stopped.Load() }

// Running reports whether the scheduling loop has been launched and has not
// exited yet.
func (u *Updater) Running() bool {
	if !u.started.Load() {
		return false
	}
	select {
	case <-u.exited:
		return false
	default:
		return true
	}
}

// Done returns a channel closed once the scheduling loop has exited. The
// channel never closes if the loop is never launched.
func (u *Updater) Done() <-chan struct{} { return u.exited }

// Start launches the scheduling loop on its own goroutine. Only the first call
// has an effect; Start never blocks the caller.
//
// Cancelling the context is equivalent to Stop.
func (u *Updater) Start(ctx context.Context) {
	u.launch.Do(func() {
		u.started.Store(true)
		go u.run(ctx)
	})
}

// Proc returns the scheduling loop as a component.Proc so an Updater can be
// forked under a component lifecycle instead of launched with Start. The two
// launch styles are mutually exclusive per Updater.
func (u *Updater) Proc() component.Proc {
	return func(l *component.L) {
		u.launch.Do(func() {
			u.started.Store(true)
			u.run(l.Context())
		})
	}
}

func (u *Updater) run(ctx context.Context) {
	defer close(u.exited)
	logger := component.Logger(ctx).With(slog.String("updater", u.name))

	ticker := time.NewTicker(u.period)
	defer ticker.Stop()

	for {
		var now time.Time
		select {
		case <-u.stopping:
			return
		case <-ctx.Done():
			// Treat cancellation as terminal stop so accessors agree with the
			// loop being gone.
			u.stopped.Store(true)
			return
		case now = <-ticker.C:
		}

		if !u.enabled.Load() {
			// Idle at cadence; no computation, no write.
			continue
		}

		value := u.sampler.Sample(now)
		if value == nil {
			// The sampler has nothing for this tick.
			continue
		}

		start := time.Now()
		if err := u.sink.Set(ctx, value); err != nil {
			// A single failed write must not terminate the loop; later ticks
			// remain available.
			logger.Error("Failed to write sampled value into sink", slog.Any("error", err))
			measureTick(ctx, u.name, false, 0)
			continue
		}
		measureTick(ctx, u.name, true, time.Since(start))
	}
}
