package waitqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutAndWaitForRoundTrip(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	q.Put(1, 42, "hello")

	v, err := q.WaitFor(1, 42, 500*time.Millisecond)
	require.NoError(err)
	require.Equal("hello", v)
}

func TestWaitForTimesOutWhenNothingArrives(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	start := time.Now()
	_, err := q.WaitFor(1, 1, 150*time.Millisecond)
	require.ErrorIs(err, ErrTimeout)
	require.GreaterOrEqual(time.Since(start), 150*time.Millisecond)
}

func TestDeliveryIsAtMostOnce(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	q.Put(1, 1, "first")
	v, err := q.WaitFor(1, 1, 100*time.Millisecond)
	require.NoError(err)
	require.Equal("first", v)

	_, err = q.WaitFor(1, 1, 50*time.Millisecond)
	require.ErrorIs(err, ErrTimeout)
}

func TestEntryExpiresViaHousekeeper(t *testing.T) {
	require := require.New(t)
	q := New(50 * time.Millisecond)
	defer q.Stop()

	q.Put(1, 1, "stale")
	time.Sleep(300 * time.Millisecond)
	require.Equal(0, q.Len())

	_, err := q.WaitFor(1, 1, 10*time.Millisecond)
	require.ErrorIs(err, ErrTimeout)
}

func TestFIFOWithinSameKey(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	q.Put(1, 1, "a")
	q.Put(1, 1, "b")

	v1, err1 := q.WaitFor(1, 1, 100*time.Millisecond)
	v2, err2 := q.WaitFor(1, 1, 100*time.Millisecond)
	require.NoError(err1)
	require.NoError(err2)
	require.Equal("a", v1)
	require.Equal("b", v2)
}

func TestBinaryAndStructuredKeysAreIndependent(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	q.PutBinary(1, 1, []byte("bin"))
	_, err := q.WaitFor(1, 1, 50*time.Millisecond)
	require.ErrorIs(err, ErrTimeout)

	v, err := q.WaitForBinary(1, 1, 50*time.Millisecond)
	require.NoError(err)
	require.Equal([]byte("bin"), v)
}

func TestFailCompletesOutstandingWaitersImmediately(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	failErr := errFor(t)
	done := make(chan struct{})
	var v any
	var err error
	go func() {
		v, err = q.WaitFor(1, 1, 5*time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	q.Fail(failErr)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after Fail")
	}
	require.Less(time.Since(start), 500*time.Millisecond)
	require.ErrorIs(err, failErr)
	require.Nil(v)
}

func TestFailIsIdempotentFirstErrorWins(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)
	defer q.Stop()

	first := errFor(t)
	second := errFor(t)
	q.Fail(first)
	q.Fail(second)

	_, err := q.WaitFor(1, 1, 50*time.Millisecond)
	require.ErrorIs(err, first)
	require.NotErrorIs(err, second)
}

func TestStopFailsOutstandingWaitersWhenNobodyCalledFail(t *testing.T) {
	require := require.New(t)
	q := New(time.Second)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = q.WaitFor(1, 1, 5*time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after Stop")
	}
	require.ErrorIs(err, ErrQueueStopped)
}

func errFor(t *testing.T) error {
	t.Helper()
	return &testError{msg: t.Name()}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
