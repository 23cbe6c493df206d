package tracer

import (
	"errors"
	"sort"
	"sync"
)

var ErrDuplicateInterceptorPriority = errors.New("duplicate trace interceptor priority")

// TraceInterceptor post-processes the spans of a complete trace before sampling
// and export. It may drop spans by leaving them out of the result.
type TraceInterceptor interface {
	Priority() int
	OnTraceComplete(spans []*Span) []*Span
}

type interceptors struct {
	mu    sync.RWMutex
	items []TraceInterceptor
}

func (is *interceptors) add(i TraceInterceptor) error {

	is.mu.Lock()
	defer is.mu.Unlock()

	for _, e := range is.items {
		if e.Priority() == i.Priority() {
			return ErrDuplicateInterceptorPriority
		}
	}

	items := append(append([]TraceInterceptor{}, is.items...), i)
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Priority() < items[b].Priority()
	})
	is.items = items
	return nil
}

func (is *interceptors) run(spans []*Span) []*Span {

	is.mu.RLock()
	items := is.items
	is.mu.RUnlock()

	for _, i := range items {
		spans = i.OnTraceComplete(spans)
		if len(spans) == 0 {
			break
		}
	}
	return spans
}
