package parallelnode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conduit/pkg/workflow"
)

func double(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
	return input.(int) * 2, nil
}

func TestNewRunsEveryItemAndMergesDefault(t *testing.T) {
	node := New(double, Spec{})

	out, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 6}, out)
}

func TestNewRejectsNonSliceInput(t *testing.T) {
	node := New(double, Spec{})

	_, err := node(context.Background(), workflow.Snapshot{}, 5)
	require.Error(t, err)
}

func TestNewPolicyAllFailsOnFirstError(t *testing.T) {
	boom := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		if input.(int) == 2 {
			return nil, errors.New("bad item")
		}
		return input, nil
	}
	node := New(boom, Spec{FailurePolicy: PolicyAll})

	_, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2, 3})
	require.Error(t, err)
}

func TestNewPolicyPartialToleratesSomeFailures(t *testing.T) {
	boom := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		if input.(int) == 2 {
			return nil, errors.New("bad item")
		}
		return input.(int) * 10, nil
	}
	node := New(boom, Spec{FailurePolicy: PolicyPartial})

	out, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{10, nil, 30}, out)
}

func TestNewPolicyPartialFailsWhenAllFail(t *testing.T) {
	allBoom := func(_ context.Context, _ workflow.Snapshot, _ any) (any, error) {
		return nil, errors.New("nope")
	}
	node := New(allBoom, Spec{FailurePolicy: PolicyPartial})

	_, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2})
	require.Error(t, err)
}

func TestNewPolicyNoneNeverFails(t *testing.T) {
	allBoom := func(_ context.Context, _ workflow.Snapshot, _ any) (any, error) {
		return nil, errors.New("nope")
	}
	node := New(allBoom, Spec{FailurePolicy: PolicyNone})

	out, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, out)
}

func TestNewRespectsMaxConcurrency(t *testing.T) {
	var active, maxActive int32
	block := make(chan struct{})
	var once int32
	track := func(_ context.Context, _ workflow.Snapshot, input any) (any, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		if atomic.CompareAndSwapInt32(&once, 0, 1) {
			close(block)
		} else {
			<-block
		}
		return input, nil
	}
	node := New(track, Spec{MaxConcurrency: 2})

	_, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(maxActive), 2)
}

func TestNewCustomMerge(t *testing.T) {
	sum := func(outputs []any, _ []error) (any, error) {
		total := 0
		for _, o := range outputs {
			total += o.(int)
		}
		return total, nil
	}
	node := New(double, Spec{Merge: sum})

	out, err := node(context.Background(), workflow.Snapshot{}, []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 12, out)
}
