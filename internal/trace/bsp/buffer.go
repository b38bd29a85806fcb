package bsp

import (
	"sync"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

// scopeBucket holds every span reported under one instrumentation scope
// as a self-contained one-resource, one-scope ptrace.Traces fragment.
// Spans are copied directly into scopeSpans as they arrive, so grouping
// happens exactly once, at insert time, rather than being redone when
// the buffer is drained.
type scopeBucket struct {
	traces     ptrace.Traces
	scopeSpans ptrace.ScopeSpans
}

func newScopeBucket(resource pcommon.Resource, scope pcommon.InstrumentationScope) *scopeBucket {
	traces := ptrace.NewTraces()
	rs := traces.ResourceSpans().AppendEmpty()
	resource.CopyTo(rs.Resource())
	ss := rs.ScopeSpans().AppendEmpty()
	scope.CopyTo(ss.Scope())
	return &scopeBucket{traces: traces, scopeSpans: ss}
}

// spanBuffer is a multi-writer, append-only collection of finished spans
// grouped by instrumentation scope. Writers never block on each other for
// longer than the scope-bucket lock; a buffer handed off to a runner
// receives no further writes (§3 invariant) because the FSM flips the
// active pointer before handing the old buffer off.
type spanBuffer struct {
	mu      sync.Mutex
	byScope map[scopeKey]*scopeBucket
	count   int
}

func newSpanBuffer() *spanBuffer {
	return &spanBuffer{
		byScope: make(map[scopeKey]*scopeBucket),
	}
}

// insert deep-copies a span into its scope bucket, creating the bucket
// (and copying resource and scope into it) the first time that scope is
// seen, and returns the buffer's new total entry count.
func (b *spanBuffer) insert(span ptrace.Span, resource pcommon.Resource, scope pcommon.InstrumentationScope) int {
	key := hashScope(scope)

	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, ok := b.byScope[key]
	if !ok {
		bucket = newScopeBucket(resource, scope)
		b.byScope[key] = bucket
	}
	span.CopyTo(bucket.scopeSpans.Spans().AppendEmpty())
	b.count++
	return b.count
}

// len returns the buffer's current entry count.
func (b *spanBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// isEmpty reports whether the buffer holds no spans.
func (b *spanBuffer) isEmpty() bool {
	return b.len() == 0
}

// drain returns every span in the buffer as a ptrace.Traces, grouped by
// instrumentation scope with intra-group insertion order preserved (§5
// ordering guarantee). Each bucket is already a complete resource/scope
// fragment, so drain only needs to move it into the result; the buffer
// is not cleared by drain, since buffers handed to a runner are
// discarded afterward rather than reused, per the FSM's "recreate the
// handed-off buffer" transition.
func (b *spanBuffer) drain() ptrace.Traces {
	b.mu.Lock()
	defer b.mu.Unlock()

	traces := ptrace.NewTraces()
	for _, bucket := range b.byScope {
		bucket.traces.ResourceSpans().MoveAndAppendTo(traces.ResourceSpans())
	}
	return traces
}
