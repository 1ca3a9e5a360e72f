package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Collector produces one or more metric groups per call. Implementations
// report failures as failed groups instead of returning errors, and must
// honour ctx cancellation.
type Collector interface {
	Collect(ctx context.Context) []GroupResult
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) []GroupResult

func (f CollectorFunc) Collect(ctx context.Context) []GroupResult {
	return f(ctx)
}

type namedCollector struct {
	name      string
	collector Collector
}

// collectOutcome is the result of one bounded collector invocation.
type collectOutcome struct {
	name     string
	groups   []GroupResult
	err      error
	duration time.Duration
}

var errNoData = errors.New("no data returned")

// runCollector invokes c bounded by timeout. A timeout, cancellation or
// panic replaces the collector's output with one failed group named after it.
// The call is not awaited past the deadline.
func runCollector(ctx context.Context, nc namedCollector, timeout time.Duration) collectOutcome {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		groups []GroupResult
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("collector panic: %v\n%s", r, debug.Stack())}
			}
		}()
		done <- result{groups: nc.collector.Collect(callCtx)}
	}()

	out := collectOutcome{name: nc.name}
	select {
	case r := <-done:
		out.groups, out.err = r.groups, r.err
		if out.err == nil && len(out.groups) == 0 {
			out.err = errNoData
		}
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("timed out after %s", timeout)
		} else {
			out.err = callCtx.Err()
		}
	}
	out.duration = time.Since(start)

	if out.err != nil {
		out.groups = []GroupResult{FailedGroup(nc.name, out.err)}
	}
	return out
}

// collectAll fans out to every collector and returns the outcomes in
// registration order.
func collectAll(ctx context.Context, collectors []namedCollector, timeout time.Duration) []collectOutcome {
	outcomes := make([]collectOutcome, len(collectors))

	var wg sync.WaitGroup
	for i, nc := range collectors {
		wg.Add(1)
		go func(i int, nc namedCollector) {
			defer wg.Done()
			outcomes[i] = runCollector(ctx, nc, timeout)
		}(i, nc)
	}
	wg.Wait()

	return outcomes
}
