package sensormux

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorhub/internal/dispatch"
)

type vec struct{ X, Y, Z float64 }

// queueExecutor holds posted work until the test drains it, so tests can
// interleave registry changes with queued deliveries deterministically.
type queueExecutor struct {
	mu    sync.Mutex
	queue []func()
}

func (q *queueExecutor) Post(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, f)
}

func (q *queueExecutor) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Drain runs queued work, including work queued while draining.
func (q *queueExecutor) Drain() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		f := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		f()
	}
}

// recorder is a listener that keeps every reading it receives.
type recorder struct {
	mu   sync.Mutex
	got  []vec
	fail error
}

func (r *recorder) OnReading(v vec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
	return r.fail
}

func (r *recorder) Readings() []vec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vec(nil), r.got...)
}

func newTestManager(t *testing.T) (*Manager[vec], *TestableDriver[vec], *queueExecutor) {
	t.Helper()
	drv := NewTestableDriver[vec]()
	exec := &queueExecutor{}
	return New("accelerometer", drv, RateUI, exec), drv, exec
}

func startLoop(t *testing.T) *dispatch.Loop {
	t.Helper()
	loop := dispatch.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return loop
}

func flush(t *testing.T, loop *dispatch.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loop.Flush(ctx))
}

func TestNew(t *testing.T) {
	m, drv, _ := newTestManager(t)

	if !drv.HasHandler() {
		t.Fatal("New did not install the delivery handler on the driver")
	}
	if m.Name() != "accelerometer" || m.String() != "accelerometer" {
		t.Errorf("Name() = %q", m.Name())
	}
	if m.Rate() != RateUI {
		t.Errorf("Rate() = %v, want ui", m.Rate())
	}
	if m.State() != Idle {
		t.Errorf("State() = %v, want idle", m.State())
	}
	if m.IsMonitoring() {
		t.Error("new manager must not start the sensor")
	}
	if starts, _ := drv.Calls(); starts != 0 {
		t.Errorf("Start called %d times by New", starts)
	}
}

func TestManager_BasicCycle(t *testing.T) {
	loop := startLoop(t)
	drv := NewTestableDriver[vec]()
	m := New("accelerometer", drv, RateUI, loop)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	assert.True(t, m.IsMonitoring())
	assert.Equal(t, Active, m.State())
	assert.Equal(t, []Rate{RateUI}, drv.Rates)

	drv.Emit(vec{X: 1})
	flush(t, loop)
	if diff := cmp.Diff([]vec{{X: 1}}, l.Readings()); diff != "" {
		t.Errorf("readings mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, m.RemoveListener(l))
	assert.False(t, m.IsMonitoring())
	assert.Equal(t, Idle, m.State())
}

func TestManager_MultiSubscriber(t *testing.T) {
	loop := startLoop(t)
	drv := NewTestableDriver[vec]()
	m := New("gyroscope", drv, RateUI, loop)

	a, b := &recorder{}, &recorder{}
	require.NoError(t, m.AddListener(a))
	require.NoError(t, m.AddListener(b))

	drv.Emit(vec{Y: 2})
	flush(t, loop)
	assert.Equal(t, []vec{{Y: 2}}, a.Readings())
	assert.Equal(t, []vec{{Y: 2}}, b.Readings())

	require.NoError(t, m.RemoveListener(a))
	assert.True(t, m.IsMonitoring(), "sensor must keep running while b listens")

	require.NoError(t, m.RemoveListener(b))
	assert.False(t, m.IsMonitoring())

	starts, stops := drv.Calls()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestManager_Unsupported(t *testing.T) {
	m, drv, _ := newTestManager(t)
	drv.Supported = false

	l := &recorder{}
	err := m.AddListener(l)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("AddListener = %v, want ErrUnsupported", err)
	}
	if m.Listeners() != 0 {
		t.Errorf("Listeners() = %d, want 0", m.Listeners())
	}
	if starts, _ := drv.Calls(); starts != 0 {
		t.Errorf("Start called %d times on unsupported hardware", starts)
	}
	if err := m.RemoveListener(l); !errors.Is(err, ErrUnsupported) {
		t.Errorf("RemoveListener = %v, want ErrUnsupported", err)
	}
}

func TestManager_AddListenerIdempotent(t *testing.T) {
	m, drv, _ := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	require.NoError(t, m.AddListener(l))

	assert.Equal(t, 1, m.Listeners())
	starts, _ := drv.Calls()
	assert.Equal(t, 1, starts, "second AddListener must not restart the sensor")
}

func TestManager_RemoveUnknownListener(t *testing.T) {
	m, drv, _ := newTestManager(t)

	kept, stranger := &recorder{}, &recorder{}
	require.NoError(t, m.AddListener(kept))

	require.NoError(t, m.RemoveListener(stranger))
	require.NoError(t, m.RemoveListener(stranger))

	assert.True(t, m.IsMonitoring())
	assert.Equal(t, 1, m.Listeners())
	_, stops := drv.Calls()
	assert.Equal(t, 0, stops)
}

func TestManager_ReferenceCountInvariant(t *testing.T) {
	m, _, _ := newTestManager(t)
	ls := []*recorder{{}, {}, {}}

	// A fixed walk over add/remove sequences, including repeats and removals
	// of listeners that are not registered.
	ops := []struct {
		add bool
		i   int
	}{
		{true, 0}, {true, 1}, {false, 0}, {false, 0}, {true, 2}, {true, 2},
		{false, 1}, {false, 2}, {false, 2}, {true, 1}, {true, 0}, {false, 1},
		{false, 0}, {true, 0}, {false, 0},
	}
	registered := map[int]bool{}
	for step, op := range ops {
		if op.add {
			require.NoError(t, m.AddListener(ls[op.i]))
			registered[op.i] = true
		} else {
			require.NoError(t, m.RemoveListener(ls[op.i]))
			delete(registered, op.i)
		}

		if got := m.Listeners(); got != len(registered) {
			t.Fatalf("step %d: Listeners() = %d, want %d", step, got, len(registered))
		}
		if got, want := m.IsMonitoring(), len(registered) > 0; got != want {
			t.Fatalf("step %d: IsMonitoring() = %t with %d listeners", step, got, len(registered))
		}
		if got, want := m.State() == Active, len(registered) > 0; got != want {
			t.Fatalf("step %d: State() = %v with %d listeners", step, m.State(), len(registered))
		}
	}
}

func TestManager_FanOutCompleteness(t *testing.T) {
	loop := startLoop(t)
	drv := NewTestableDriver[vec]()
	m := New("magnetometer", drv, RateUI, loop)

	listeners := make([]*recorder, 10)
	for i := range listeners {
		listeners[i] = &recorder{}
		require.NoError(t, m.AddListener(listeners[i]))
	}

	want := []vec{{X: 1}, {X: 2}, {X: 3}}
	for _, v := range want {
		drv.Emit(v)
	}
	flush(t, loop)

	for i, l := range listeners {
		if diff := cmp.Diff(want, l.Readings()); diff != "" {
			t.Errorf("listener %d readings mismatch (-want +got):\n%s", i, diff)
		}
	}
	assert.Equal(t, uint64(30), m.Status().Delivered)
}

func TestManager_DeliverDoesNotBlock(t *testing.T) {
	m, drv, exec := newTestManager(t)

	block := make(chan struct{})
	defer close(block)
	slow := NewListenerFunc(func(vec) error { <-block; return nil })
	require.NoError(t, m.AddListener(slow))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			drv.Emit(vec{X: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a listener")
	}
	assert.Equal(t, 100, exec.Pending())
}

func TestManager_SelfRemovalDuringDelivery(t *testing.T) {
	m, drv, exec := newTestManager(t)

	other := &recorder{}
	var calls int
	var self *ListenerFunc[vec]
	self = NewListenerFunc(func(vec) error {
		calls++
		return m.RemoveListener(self)
	})

	require.NoError(t, m.AddListener(self))
	require.NoError(t, m.AddListener(other))

	drv.Emit(vec{X: 1})
	exec.Drain()

	assert.Equal(t, 1, calls)
	assert.Equal(t, []vec{{X: 1}}, other.Readings(), "snapshot iteration must reach every listener")
	assert.Equal(t, 1, m.Listeners())

	drv.Emit(vec{X: 2})
	exec.Drain()
	assert.Equal(t, 1, calls, "removed listener invoked again")
	assert.Equal(t, []vec{{X: 1}, {X: 2}}, other.Readings())
}

func TestManager_RemoveOtherDuringDelivery(t *testing.T) {
	m, drv, exec := newTestManager(t)

	victim := &recorder{}
	remover := NewListenerFunc(func(vec) error { return m.RemoveListener(victim) })
	require.NoError(t, m.AddListener(remover))
	require.NoError(t, m.AddListener(victim))

	drv.Emit(vec{X: 1})
	exec.Drain()
	drv.Emit(vec{X: 2})
	exec.Drain()

	assert.Empty(t, victim.Readings(), "victim was removed before its queued delivery ran")
	assert.Equal(t, 1, m.Listeners())
	assert.True(t, m.IsMonitoring())
}

func TestManager_QueuedDeliveriesSkippedAfterRemoval(t *testing.T) {
	m, drv, exec := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	drv.Emit(vec{X: 1})
	drv.Emit(vec{X: 2})

	require.NoError(t, m.RemoveListener(l))
	exec.Drain()

	assert.Empty(t, l.Readings())
	assert.Equal(t, uint64(2), m.Status().Skipped)
}

func TestManager_ReAddGetsFreshRegistration(t *testing.T) {
	m, drv, exec := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	drv.Emit(vec{X: 1}) // queued for the first registration
	require.NoError(t, m.RemoveListener(l))
	require.NoError(t, m.AddListener(l))
	drv.Emit(vec{X: 2})
	exec.Drain()

	if diff := cmp.Diff([]vec{{X: 2}}, l.Readings()); diff != "" {
		t.Errorf("readings mismatch (-want +got):\n%s", diff)
	}
	starts, stops := drv.Calls()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
}

func TestManager_ConcurrentFirstAdd(t *testing.T) {
	for i := 0; i < 50; i++ {
		m, drv, _ := newTestManager(t)
		a, b := &recorder{}, &recorder{}

		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, l := range []*recorder{a, b} {
			wg.Add(1)
			go func(l *recorder) {
				defer wg.Done()
				<-start
				if err := m.AddListener(l); err != nil {
					t.Errorf("AddListener: %v", err)
				}
			}(l)
		}
		close(start)
		wg.Wait()

		starts, _ := drv.Calls()
		if starts != 1 {
			t.Fatalf("iteration %d: Start called %d times, want 1", i, starts)
		}
		if m.Listeners() != 2 {
			t.Fatalf("iteration %d: Listeners() = %d, want 2", i, m.Listeners())
		}
	}
}

func TestManager_ConcurrentAddRemoveDeliver(t *testing.T) {
	loop := startLoop(t)
	drv := NewTestableDriver[vec]()
	m := New("orientation", drv, RateGame, loop)

	stop := make(chan struct{})
	var producer sync.WaitGroup
	producer.Add(1)
	go func() {
		defer producer.Done()
		for {
			select {
			case <-stop:
				return
			default:
				drv.Emit(vec{Z: 1})
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &recorder{}
			for i := 0; i < 100; i++ {
				if err := m.AddListener(l); err != nil {
					t.Errorf("AddListener: %v", err)
					return
				}
				if err := m.RemoveListener(l); err != nil {
					t.Errorf("RemoveListener: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	producer.Wait()
	flush(t, loop)

	assert.Equal(t, 0, m.Listeners())
	assert.False(t, m.IsMonitoring())
	starts, stops := drv.Calls()
	assert.Equal(t, starts, stops, "every start must be paired with a stop")
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	m, drv, exec := newTestManager(t)
	cause := errors.New("permission denied")
	drv.SetStartError(cause)

	l := &recorder{}
	err := m.AddListener(l)
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("AddListener = %v, want ErrStartFailed", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("AddListener error %v does not wrap the driver cause", err)
	}
	assert.Equal(t, 0, m.Listeners())
	assert.Equal(t, Idle, m.State())
	assert.False(t, m.IsMonitoring())

	drv.Emit(vec{X: 1})
	exec.Drain()
	assert.Empty(t, l.Readings())

	// The next attempt starts the hardware again once it recovers.
	drv.SetStartError(nil)
	require.NoError(t, m.AddListener(l))
	assert.True(t, m.IsMonitoring())
	starts, _ := drv.Calls()
	assert.Equal(t, 2, starts)
}

func TestManager_StartFailureWithExistingListenerOnSecondAdd(t *testing.T) {
	m, drv, _ := newTestManager(t)

	require.NoError(t, m.AddListener(&recorder{}))
	drv.SetStartError(errors.New("busy"))

	// Already running, so a second listener never calls Start.
	require.NoError(t, m.AddListener(&recorder{}))
	assert.Equal(t, 2, m.Listeners())
}

func TestManager_StopFailureStillRemoves(t *testing.T) {
	m, drv, _ := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	drv.StopError = errors.New("device busy")

	err := m.RemoveListener(l)
	if !errors.Is(err, ErrStopFailed) {
		t.Fatalf("RemoveListener = %v, want ErrStopFailed", err)
	}
	assert.Equal(t, 0, m.Listeners())
	assert.Equal(t, Idle, m.State())
	assert.True(t, m.IsMonitoring(), "IsMonitoring reports the hardware, which is still running")
}

func TestManager_ReadingEmittedDuringStart(t *testing.T) {
	m, drv, exec := newTestManager(t)
	drv.OnStart = func() { drv.Emit(vec{X: 42}) }

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	exec.Drain()

	assert.Equal(t, []vec{{X: 42}}, l.Readings())
}

func TestManager_ListenerFailureIsolated(t *testing.T) {
	m, drv, exec := newTestManager(t)

	failing := &recorder{fail: errors.New("boom")}
	panicking := NewListenerFunc(func(vec) error { panic("listener bug") })
	healthy := &recorder{}
	require.NoError(t, m.AddListener(failing))
	require.NoError(t, m.AddListener(panicking))
	require.NoError(t, m.AddListener(healthy))

	drv.Emit(vec{X: 1})
	exec.Drain()

	assert.Equal(t, []vec{{X: 1}}, healthy.Readings())
	assert.Equal(t, 3, m.Listeners(), "failing listeners stay registered")
	s := m.Status()
	assert.Equal(t, uint64(2), s.Failed)
	assert.Equal(t, uint64(1), s.Delivered)
}

func TestManager_DeliveryOrder(t *testing.T) {
	m, drv, exec := newTestManager(t)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, m.AddListener(NewListenerFunc(func(vec) error {
			order = append(order, name)
			return nil
		})))
	}
	drv.Emit(vec{})
	exec.Drain()

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestManager_InvalidListeners(t *testing.T) {
	m, _, _ := newTestManager(t)

	var nilFunc *ListenerFunc[vec]
	tests := []struct {
		name string
		l    Listener[vec]
		want error
	}{
		{"nil interface", nil, ErrNilListener},
		{"nil pointer", nilFunc, ErrNilListener},
		{"incomparable", sliceListener{}, ErrIncomparableListener},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.AddListener(tt.l); !errors.Is(err, tt.want) {
				t.Errorf("AddListener = %v, want %v", err, tt.want)
			}
			if err := m.RemoveListener(tt.l); !errors.Is(err, tt.want) {
				t.Errorf("RemoveListener = %v, want %v", err, tt.want)
			}
		})
	}
	assert.Equal(t, 0, m.Listeners())
}

type sliceListener struct{ seen []vec }

func (sliceListener) OnReading(vec) error { return nil }

func TestManager_HardwareHaltedExternally(t *testing.T) {
	m, drv, _ := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	drv.Halt()

	assert.False(t, m.IsMonitoring(), "IsMonitoring must follow the hardware")
	assert.Equal(t, Active, m.State())

	// Removing the last listener must not stop hardware that is not running.
	require.NoError(t, m.RemoveListener(l))
	_, stops := drv.Calls()
	assert.Equal(t, 0, stops)
}

func TestManager_Close(t *testing.T) {
	m, drv, exec := newTestManager(t)

	l := &recorder{}
	require.NoError(t, m.AddListener(l))
	drv.Emit(vec{X: 1})

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.False(t, drv.HasHandler(), "Close must detach from the driver")
	assert.False(t, m.IsMonitoring())
	assert.Equal(t, 0, m.Listeners())

	exec.Drain()
	assert.Empty(t, l.Readings(), "queued deliveries are dropped on Close")

	if err := m.AddListener(l); !errors.Is(err, ErrClosed) {
		t.Errorf("AddListener after Close = %v, want ErrClosed", err)
	}
	require.NoError(t, m.RemoveListener(l))
}

func TestManager_StateHook(t *testing.T) {
	m, _, _ := newTestManager(t)

	var transitions []State
	m.SetStateHook(func(name string, s State) {
		if name != "accelerometer" {
			t.Errorf("hook name = %q", name)
		}
		transitions = append(transitions, s)
	})

	a, b := &recorder{}, &recorder{}
	require.NoError(t, m.AddListener(a))
	require.NoError(t, m.AddListener(b))
	require.NoError(t, m.RemoveListener(a))
	require.NoError(t, m.RemoveListener(b))
	require.NoError(t, m.AddListener(a))
	require.NoError(t, m.Close())

	want := []State{Active, Idle, Active, Idle}
	if diff := cmp.Diff(want, transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Status(t *testing.T) {
	m, drv, exec := newTestManager(t)

	require.NoError(t, m.AddListener(&recorder{}))
	drv.Emit(vec{})
	drv.Emit(vec{})
	exec.Drain()

	got := m.Status()
	want := Status{
		Name:       "accelerometer",
		Rate:       "ui",
		State:      "active",
		Supported:  true,
		Monitoring: true,
		Listeners:  1,
		Readings:   2,
		Delivered:  2,
		Starts:     1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Status mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledDriver(t *testing.T) {
	exec := &queueExecutor{}
	m := New[vec]("barometer", NewDisabledDriver[vec](), RateDefault, exec)

	assert.False(t, m.IsSupported())
	err := m.AddListener(&recorder{})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.NoError(t, m.Close())
}
