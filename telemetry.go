package devicesim

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-devicesim")
var meter = otel.Meter("github.com/go-digitaltwin/go-devicesim")

// ---- updater.go ----

const (
	// updaterName is the attribute key used to associate each record with the
	// corresponding Updater. This enables detailed analysis of metrics, such as
	// tickDuration and sinkWriteFailures, allowing both collective examination
	// across all updaters and individual analysis per updater.
	updaterName = "updater"
)

var (
	// tickDuration measures the duration of a single successful tick's sink write,
	// from sampling completion until the external owner accepted the value.
	//
	// Each record is associated with the updaterName.
	tickDuration metric.Float64Histogram
	// sinkWriteFailures measures the number of ticks whose sink write failed. The
	// scheduling loop survives these failures, so this instrument is the primary
	// signal that a variable is no longer being refreshed.
	//
	// Each record is associated with the updaterName.
	sinkWriteFailures metric.Int64Counter
)

// ---- stategraph.go ----

var (
	// stateTransitions counts StateGraph advancements that selected a candidate
	// state, labelled with the previous and the new state names. Draws that left
	// the machine untouched (no threshold exceeded the draw) are not counted.
	stateTransitions metric.Int64Counter
)

func init() {
	var err error
	tickDuration, err = meter.Float64Histogram(
		"updater.tick.duration",
		metric.WithDescription("The duration of a single successful tick's sink write, from sampling completion until the external owner accepted the value."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("devicesim: failed to init 'updater.tick.duration' instrument")
	}

	sinkWriteFailures, err = meter.Int64Counter(
		"updater.sink.failures",
		metric.WithDescription("The number of ticks whose sink write failed."),
	)
	if err != nil {
		panic("devicesim: failed to init 'updater.sink.failures' instrument")
	}

	stateTransitions, err = meter.Int64Counter(
		"stategraph.transitions",
		metric.WithDescription("The number of state-graph advancements that selected a candidate state."),
	)
	if err != nil {
		panic("devicesim: failed to init 'stategraph.transitions' instrument")
	}
}

// measureTick measures a single tick's write using the tickDuration and
// sinkWriteFailures instruments. If the write succeeded, we record its
// duration. If it failed, we increment the failure counter.
//
// Each record is labelled with the relevant updater's name, allowing for
// collective analysis of all updaters as well as detailed individual analysis
// per updater.
//
// According to [metric] documentation, [metric.WithAttributeSet] should be used
// instead of [metric.WithAttributes] for performance optimization.
func measureTick(ctx context.Context, updater string, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(updaterName, updater))
	if succeeded {
		// We use floating-point division here for higher precision (instead of the
		// Millisecond method).
		duration := float64(d) / float64(time.Millisecond)
		tickDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		sinkWriteFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}

// measureTransition counts a single state-graph advancement, labelled with the
// previous and new state names.
func measureTransition(ctx context.Context, t Transition) {
	attrs := attribute.NewSet(
		attribute.String("from", t.From),
		attribute.String("to", t.To),
	)
	stateTransitions.Add(ctx, 1, metric.WithAttributeSet(attrs))
}
