// Package trace records where a debugging session spends its time.
//
// Events are spans (begin/end pairs) and instant points, tagged with a
// scope. Coarse scopes cover a whole session and its setup passes; finer
// ones cover per-function analysis and stepping batches. A Level selects
// which scopes are emitted.
//
// Tracers:
//
//   - Nop discards everything and is what FromContext returns by default.
//   - StreamTracer writes every event as it happens, as text or NDJSON.
//   - RingTracer keeps the most recent events for a dump after a failure.
//   - MultiTracer fans out to several tracers.
//
// Tracers travel with the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "cfg", 0)
//	defer span.End("")
package trace
