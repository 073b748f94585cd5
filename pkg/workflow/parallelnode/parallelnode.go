// Package parallelnode implements the NodeParallel contract: apply one
// item-level workflow.Executor to every element of a node's input
// concurrently, bounding concurrency and tolerating partial failure the way
// the caller's FailurePolicy dictates, then combine results with Merge.
//
// Grounded on the same errgroup.WithContext + per-item goroutine + results
// slice shape the ReAct sub-agent fan-out uses for running several
// independent branches and collecting their outcomes.
package parallelnode

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/conduit/pkg/workflow"
)

// FailurePolicy governs how a parallel node reacts to item-level failures.
type FailurePolicy string

const (
	// PolicyAll requires every item to succeed; the first failure aborts
	// the node and its error is returned.
	PolicyAll FailurePolicy = "all"
	// PolicyPartial tolerates some items failing: the node only fails if
	// every item failed. Failed items contribute a nil output slot.
	PolicyPartial FailurePolicy = "partial"
	// PolicyNone ignores failures entirely: a failed item contributes a
	// nil output slot and never causes the node itself to fail.
	PolicyNone FailurePolicy = "none"
)

// Spec configures a parallel node.
type Spec struct {
	// MaxConcurrency bounds how many items run at once. 0 means unbounded.
	MaxConcurrency int
	// FailurePolicy defaults to PolicyAll.
	FailurePolicy FailurePolicy
	// Merge combines the per-item outputs (and any per-item errors, indexed
	// the same way) into the node's single output. A nil Merge defaults to
	// returning outputs as-is.
	Merge func(outputs []any, errs []error) (any, error)
}

func (s Spec) withDefaults() Spec {
	if s.FailurePolicy == "" {
		s.FailurePolicy = PolicyAll
	}
	if s.Merge == nil {
		s.Merge = func(outputs []any, _ []error) (any, error) { return outputs, nil }
	}
	return s
}

// New wraps item as a NodeParallel executor configured by spec: the node's
// input must be a []any (the forEach sequence), item runs once per
// element, and the combined result is what Merge returns.
func New(item workflow.Executor, spec Spec) workflow.Executor {
	spec = spec.withDefaults()

	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		items, ok := input.([]any)
		if !ok {
			return nil, fmt.Errorf("parallelnode: input must be []any (forEach sequence), got %T", input)
		}

		outputs := make([]any, len(items))
		errs := make([]error, len(items))

		g, gctx := errgroup.WithContext(ctx)
		if spec.MaxConcurrency > 0 {
			g.SetLimit(spec.MaxConcurrency)
		}

		for i, it := range items {
			i, it := i, it
			g.Go(func() error {
				out, err := item(gctx, snap, it)
				if err != nil {
					errs[i] = err
					if spec.FailurePolicy == PolicyAll {
						return err
					}
					return nil
				}
				outputs[i] = out
				return nil
			})
		}

		waitErr := g.Wait()

		switch spec.FailurePolicy {
		case PolicyAll:
			if waitErr != nil {
				return nil, fmt.Errorf("parallelnode: item failed: %w", waitErr)
			}
		case PolicyPartial:
			if allFailed(errs) {
				return nil, fmt.Errorf("parallelnode: all %d items failed: %w", len(items), firstError(errs))
			}
		case PolicyNone:
			// every failure tolerated, nothing to check
		}

		return spec.Merge(outputs, errs)
	}
}

func allFailed(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if e == nil {
			return false
		}
	}
	return true
}

func firstError(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
