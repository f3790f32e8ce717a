package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecuteRunsAllSubmittedTasks(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 2, 4)
	defer p.Shutdown()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Execute(func() {
			n.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	require.EqualValues(50, n.Load())
}

func TestExecuteSerializedPreservesOrderPerKey(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 2, 4)
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		p.ExecuteSerialized("k", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Len(order, 20)
	for i, v := range order {
		require.Equal(i, v)
	}
}

func TestExecuteSerializedIsolatesDifferentKeys(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 2, 4)
	defer p.Shutdown()

	var aRan, bRan atomic.Bool
	done := make(chan struct{}, 2)
	p.ExecuteSerialized("a", func() { aRan.Store(true); done <- struct{}{} })
	p.ExecuteSerialized("b", func() { bRan.Store(true); done <- struct{}{} })
	<-done
	<-done
	require.True(aRan.Load())
	require.True(bRan.Load())
}

func TestScheduleAbsoluteRunsAtOrAfterRunTime(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 1, 2)
	defer p.Shutdown()

	start := time.Now()
	done := make(chan time.Time, 1)
	p.ScheduleAbsolute(start.Add(100*time.Millisecond), func() {
		done <- time.Now()
	})

	select {
	case ran := <-done:
		require.True(ran.Sub(start) >= 90*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task never ran")
	}
}

func TestScheduleRelativeZeroDelayRunsImmediately(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 1, 2)
	defer p.Shutdown()

	done := make(chan struct{}, 1)
	p.ScheduleRelative(0, func() { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero-delay schedule never ran")
	}
	require.Equal(0, p.ScheduledRequests())
}

func TestGetSerializedRequestCountReflectsQueuedWork(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 1, 1)
	defer p.Shutdown()

	release := make(chan struct{})
	p.ExecuteSerialized("k", func() { <-release })
	p.ExecuteSerialized("k", func() {})
	p.ExecuteSerialized("k", func() {})

	require.Eventually(func() bool {
		return p.GetSerializedRequestCount("k") == 2
	}, time.Second, 10*time.Millisecond)

	close(release)
}

func TestShutdownStopsAllWorkers(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 3, 3)
	p.Shutdown()
	require.Eventually(func() bool {
		return p.threadCount.Load() == 0
	}, time.Second, 10*time.Millisecond)

	_, ok := Lookup(t.Name())
	require.False(ok)
}

func TestLookupFindsRegisteredPool(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 1, 1)
	defer p.Shutdown()

	found, ok := Lookup(t.Name())
	require.True(ok)
	require.Same(p, found)
	require.Contains(AllPools(), t.Name())
}

func TestGetInfoReportsThreadCounts(t *testing.T) {
	require := require.New(t)
	p := New(t.Name(), 2, 6)
	defer p.Shutdown()

	info := p.GetInfo()
	require.Equal(2, info.MinThreads)
	require.Equal(6, info.MaxThreads)
	require.Equal(2, info.CurThreads)
}
