package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTask struct {
	id string
	fn func(ctx context.Context) error
}

func (t funcTask) ID() string                        { return t.id }
func (t funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }

type results struct {
	mu  sync.Mutex
	all []Result
}

func (r *results) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, res)
}

func (r *results) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.all...)
}

func TestDispatcherRunsAllTasks(t *testing.T) {
	var got results
	d := NewDispatcher(4, 32, WithResultFunc(got.add))
	d.Run(context.Background())
	defer d.Stop()

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, d.Submit(funcTask{id: fmt.Sprintf("t%d", i), fn: func(context.Context) error {
			ran.Add(1)
			if i == 3 {
				return errors.New("boom")
			}
			return nil
		}}))
	}
	d.Wait()

	assert.Equal(t, int32(20), ran.Load())
	all := got.snapshot()
	require.Len(t, all, 20)
	failed := 0
	for _, r := range all {
		if r.Err != nil {
			failed++
			assert.Equal(t, "t3", r.TaskID)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestSubmitQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	noop := funcTask{id: "a", fn: func(context.Context) error { return nil }}

	require.NoError(t, d.Submit(noop))
	assert.ErrorIs(t, d.Submit(noop), ErrQueueFull)

	d.Stop()
	assert.ErrorIs(t, d.Submit(noop), ErrStopped)
	d.Wait()
}

func TestPanicIsReportedAsError(t *testing.T) {
	var got results
	d := NewDispatcher(1, 1, WithResultFunc(got.add))
	d.Run(context.Background())
	defer d.Stop()

	require.NoError(t, d.Submit(funcTask{id: "p", fn: func(context.Context) error { panic("bad") }}))
	d.Wait()

	all := got.snapshot()
	require.Len(t, all, 1)
	assert.Contains(t, all[0].Err.Error(), "panicked")
}

func TestStopCancelsRunningTasks(t *testing.T) {
	d := NewDispatcher(1, 4)
	d.Run(context.Background())

	started := make(chan struct{})
	require.NoError(t, d.Submit(funcTask{id: "long", fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	done := make(chan struct{})
	go func() {
		d.Stop()
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
