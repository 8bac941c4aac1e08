package reconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
)

const interval = 12 * time.Second

type tester struct {
	*Scheduler
	clock     *clockwork.FakeClock
	dialer    *MockDialer
	devices   *MockDevices
	live      *MockLiveness
	exhausted atomic.Int32
	started   atomic.Int32
}

func newTester(t *testing.T) *tester {
	ctrl := gomock.NewController(t)
	ts := &tester{
		clock:   clockwork.NewFakeClock(),
		dialer:  NewMockDialer(ctrl),
		devices: NewMockDevices(ctrl),
		live:    NewMockLiveness(ctrl),
	}
	ts.Scheduler = New(ts.dialer, ts.devices, ts.live,
		WithInterval(interval),
		WithMaxAttempts(3),
		WithClock(ts.clock),
		WithLogger(logtest.New(t)),
		WithOnExhausted(func() { ts.exhausted.Add(1) }),
		WithOnStart(func() { ts.started.Add(1) }),
	)
	t.Cleanup(ts.Stop)
	return ts
}

func (ts *tester) advance(t *testing.T) {
	t.Helper()
	ts.clock.BlockUntil(1)
	ts.clock.Advance(interval)
}

// settle waits until dial number n to peer returned.
func (ts *tester) settle(t *testing.T, dials *atomic.Int32, n int, peer string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return dials.Load() == int32(n) && !ts.Dialing(peer)
	}, time.Second, time.Millisecond)
}

func waitStopped(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond)
}

func TestSchedulerExhaustsAfterMaxAttempts(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").Return(Offline).AnyTimes()
	var dials atomic.Int32
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(context.Context, string) error {
			dials.Add(1)
			return errors.New("unreachable")
		}).Times(3)

	ts.Start(context.Background())
	require.True(t, ts.Running())
	require.EqualValues(t, 1, ts.started.Load())

	for i := 1; i <= 3; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")
		require.Equal(t, i, ts.Attempts("PEER1"))
	}
	require.Zero(t, ts.exhausted.Load())

	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.EqualValues(t, 1, ts.exhausted.Load())
	require.EqualValues(t, 3, dials.Load())
	require.True(t, ts.Exhausted())
}

func TestSchedulerNoDevicesStopsSilently(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return(nil).Times(1)

	ts.Start(context.Background())
	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.Zero(t, ts.exhausted.Load())
}

func TestSchedulerLiveDeviceResetsCounter(t *testing.T) {
	ts := newTester(t)
	var live atomic.Bool
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").DoAndReturn(func(string) Status {
		if live.Load() {
			return Connected
		}
		return Offline
	}).AnyTimes()
	var dials atomic.Int32
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(context.Context, string) error {
			dials.Add(1)
			return errors.New("unreachable")
		}).AnyTimes()

	ts.Start(context.Background())
	for i := 1; i <= 2; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")
	}
	require.Equal(t, 2, ts.Attempts("PEER1"))

	live.Store(true)
	ts.advance(t)
	require.Eventually(t, func() bool { return ts.Attempts("PEER1") == 0 }, time.Second, time.Millisecond)
	require.True(t, ts.Running())
	require.EqualValues(t, 2, dials.Load())
}

func TestSchedulerResetRestartsPolling(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").Return(Offline).AnyTimes()
	var dials atomic.Int32
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(context.Context, string) error {
			dials.Add(1)
			return errors.New("unreachable")
		}).Times(4)

	ts.Start(context.Background())
	for i := 1; i <= 3; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")
	}
	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.EqualValues(t, 1, ts.exhausted.Load())

	ts.Reset("PEER1")
	require.False(t, ts.Exhausted())
	require.True(t, ts.Running())
	require.EqualValues(t, 2, ts.started.Load())
	require.Zero(t, ts.Attempts("PEER1"))

	ts.advance(t)
	require.Eventually(t, func() bool { return dials.Load() == 4 }, time.Second, time.Millisecond)
}

func TestSchedulerResetBeforeStart(t *testing.T) {
	ts := newTester(t)
	ts.Reset("")
	require.False(t, ts.Running())
	require.Zero(t, ts.started.Load())
}

func TestSchedulerJoinIsQuiet(t *testing.T) {
	ts := newTester(t)
	ts.Join(context.Background())
	require.True(t, ts.Running())
	require.Zero(t, ts.started.Load())

	ts.Start(context.Background())
	require.Zero(t, ts.started.Load(), "already running")
}

func TestSchedulerStopCancelsDials(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1", "PEER2"}).AnyTimes()
	ts.live.EXPECT().Status(gomock.Any()).Return(Offline).AnyTimes()
	var inflight atomic.Int32
	ts.dialer.EXPECT().Connect(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string) error {
			inflight.Add(1)
			<-ctx.Done()
			return ctx.Err()
		}).Times(2)

	ts.Start(context.Background())
	ts.advance(t)
	require.Eventually(t, func() bool { return inflight.Load() == 2 }, time.Second, time.Millisecond)
	ts.Stop()
	require.False(t, ts.Running())

	ts.Reset("")
	require.False(t, ts.Running(), "stopped scheduler is not restarted by reset")
}

func TestSchedulerSlowDialIsNotRepeated(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").Return(Offline).AnyTimes()
	release := make(chan struct{})
	var (
		dials  atomic.Int32
		ctxErr atomic.Value
	)
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(ctx context.Context, _ string) error {
			if dials.Add(1) == 1 {
				<-release
				if err := ctx.Err(); err != nil {
					ctxErr.Store(err)
				}
			}
			return errors.New("unreachable")
		}).Times(3)

	ts.Start(context.Background())
	ts.advance(t)
	require.Eventually(t, func() bool { return dials.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, ts.Dialing("PEER1"))

	// the first dial outlives several intervals
	for range 3 {
		ts.advance(t)
	}
	require.EqualValues(t, 1, dials.Load())
	require.Equal(t, 1, ts.Attempts("PEER1"))
	require.True(t, ts.Running())
	require.Zero(t, ts.exhausted.Load())

	close(release)
	ts.settle(t, &dials, 1, "PEER1")
	require.Nil(t, ctxErr.Load())

	for i := 2; i <= 3; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")
	}
	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.EqualValues(t, 1, ts.exhausted.Load())
	require.EqualValues(t, 3, dials.Load())
}

func TestSchedulerExhaustionSignalsOnce(t *testing.T) {
	ts := newTester(t)
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").Return(Offline).AnyTimes()
	var dials atomic.Int32
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(context.Context, string) error {
			dials.Add(1)
			return errors.New("unreachable")
		}).Times(4)

	ts.Start(context.Background())
	for i := 1; i <= 3; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")
	}
	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.EqualValues(t, 1, ts.exhausted.Load())

	ts.Join(context.Background())
	ts.Start(context.Background())
	require.False(t, ts.Running())
	ts.clock.Advance(interval)
	require.Never(t, func() bool { return ts.exhausted.Load() > 1 }, 50*time.Millisecond, time.Millisecond)
	require.EqualValues(t, 1, ts.started.Load())

	ts.Reset("")
	require.True(t, ts.Running())
	ts.advance(t)
	ts.settle(t, &dials, 4, "PEER1")
	require.EqualValues(t, 1, ts.exhausted.Load())
}

func TestSchedulerConnectingPeerKeepsAttempts(t *testing.T) {
	ts := newTester(t)
	var status, polled atomic.Int32
	ts.devices.EXPECT().ReconnectTargets().Return([]string{"PEER1"}).AnyTimes()
	ts.live.EXPECT().Status("PEER1").DoAndReturn(func(string) Status {
		defer polled.Add(1)
		return Status(status.Load())
	}).AnyTimes()
	var dials atomic.Int32
	// every dial attaches a connection that never authenticates
	ts.dialer.EXPECT().Connect(gomock.Any(), "PEER1").
		DoAndReturn(func(context.Context, string) error {
			status.Store(int32(Connecting))
			dials.Add(1)
			return nil
		}).Times(3)

	ts.Start(context.Background())
	for i := 1; i <= 3; i++ {
		ts.advance(t)
		ts.settle(t, &dials, i, "PEER1")

		before := polled.Load()
		ts.advance(t)
		require.Eventually(t, func() bool { return polled.Load() > before }, time.Second, time.Millisecond)
		require.Never(t, func() bool { return ts.Attempts("PEER1") != i }, 20*time.Millisecond, time.Millisecond)
		require.EqualValues(t, i, dials.Load())
		status.Store(int32(Offline))
	}
	ts.advance(t)
	waitStopped(t, ts.Scheduler)
	require.EqualValues(t, 1, ts.exhausted.Load())
	require.Equal(t, 3, ts.Attempts("PEER1"))
}
