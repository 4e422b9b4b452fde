package motor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoad(own, paint bool) *pageLoad {
	return &pageLoad{
		cycle: 1,
		index: 2,
		name:  "http://x/p.html",
		nav:   Navigation{URL: "http://x/p.html", OwnTiming: own, PaintTracking: paint},
		start: time.UnixMilli(1700000000000),
	}
}

func at(ms int) time.Time {
	return time.UnixMilli(1700000000000 + int64(ms))
}

func TestArbitration_DefaultLoad(t *testing.T) {
	a := &arbitration{load: newLoad(false, false)}

	sample, err := a.accept(Signal{Kind: SignalLoad, At: at(120)})
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 120.0, sample.ElapsedMs)
	assert.Equal(t, 1, sample.Cycle)
	assert.Equal(t, at(120), sample.Stop)
}

func TestArbitration_DefaultWithPaintUsesLaterSignal(t *testing.T) {
	t.Run("paint after load", func(t *testing.T) {
		a := &arbitration{load: newLoad(false, true)}

		sample, err := a.accept(Signal{Kind: SignalLoad, At: at(100)})
		require.NoError(t, err)
		assert.Nil(t, sample, "load alone does not complete")

		sample, err = a.accept(Signal{Kind: SignalPaint, At: at(150)})
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Equal(t, 150.0, sample.ElapsedMs)
	})

	t.Run("paint before load", func(t *testing.T) {
		a := &arbitration{load: newLoad(false, true)}

		sample, err := a.accept(Signal{Kind: SignalPaint, At: at(90)})
		require.NoError(t, err)
		assert.Nil(t, sample)

		sample, err = a.accept(Signal{Kind: SignalLoad, At: at(130)})
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Equal(t, 130.0, sample.ElapsedMs)
	})
}

func TestArbitration_PaintIgnoredWhenUntracked(t *testing.T) {
	a := &arbitration{load: newLoad(false, false)}

	sample, err := a.accept(Signal{Kind: SignalPaint, At: at(10)})
	require.NoError(t, err)
	assert.Nil(t, sample)
}

func TestArbitration_SelfReported(t *testing.T) {
	a := &arbitration{load: newLoad(true, false)}

	sample, err := a.accept(Signal{Kind: SignalRecord, At: at(300), Report: &Reported{Time: 75.25, StartTime: 1700000000200}})
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 75.25, sample.ElapsedMs)
	assert.Equal(t, at(200), sample.Start)
}

func TestArbitration_SelfReportedWithPaint(t *testing.T) {
	a := &arbitration{load: newLoad(true, true)}

	sample, err := a.accept(Signal{Kind: SignalPaint, At: at(50)})
	require.NoError(t, err)
	assert.Nil(t, sample, "paint before the report does not count")

	sample, err = a.accept(Signal{Kind: SignalRecord, At: at(80), Report: &Reported{Time: 60, StartTime: 1700000000020}})
	require.NoError(t, err)
	assert.Nil(t, sample)

	sample, err = a.accept(Signal{Kind: SignalPaint, At: at(140)})
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.InDelta(t, 120.0, sample.ElapsedMs, 1e-6, "measured from reported start to paint")
}

func TestArbitration_Violations(t *testing.T) {
	tests := []struct {
		name     string
		own      bool
		sig      Signal
		expected string
	}{
		{"load on own-timing page", true, Signal{Kind: SignalLoad}, "record"},
		{"record on default page", false, Signal{Kind: SignalRecord, Report: &Reported{Time: 1, StartTime: 1}}, "load"},
		{"record without payload", true, Signal{Kind: SignalRecord}, "record"},
		{"zero reported time", true, Signal{Kind: SignalRecord, Report: &Reported{Time: 0, StartTime: 1}}, "record"},
		{"negative reported time", true, Signal{Kind: SignalRecord, Report: &Reported{Time: -3, StartTime: 1}}, "record"},
		{"malformed message", true, SignalFromMessage(Message{Name: MessageRecordTime, Payload: []byte("{nope")}), "record"},
		{"unknown message", false, SignalFromMessage(Message{Name: "PageLoader:Other"}), "load"},
		{"load before navigation", false, Signal{Kind: SignalLoad, At: at(-5)}, "load"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &arbitration{load: newLoad(tt.own, false)}

			sample, err := a.accept(tt.sig)
			assert.Nil(t, sample)
			require.ErrorIs(t, err, ErrProtocolViolation)

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tt.expected, runErr.Expected)
			assert.Equal(t, "http://x/p.html", runErr.Page)
			assert.Equal(t, 1, runErr.Cycle)
			assert.Equal(t, 2, runErr.PageIndex)
		})
	}
}

func TestArbitration_PaintTrackedReportNeedsStartTime(t *testing.T) {
	tests := []struct {
		name  string
		start float64
	}{
		{"missing start time", 0},
		{"negative start time", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &arbitration{load: newLoad(true, true)}

			sample, err := a.accept(Signal{Kind: SignalRecord, At: at(20), Report: &Reported{Time: 12, StartTime: tt.start}})
			assert.Nil(t, sample)
			require.ErrorIs(t, err, ErrProtocolViolation)
			assert.Contains(t, err.Error(), "report without a start time")

			sample, err = a.accept(Signal{Kind: SignalPaint, At: at(40)})
			require.NoError(t, err)
			assert.Nil(t, sample, "a rejected report never completes on paint")
		})
	}

	t.Run("untracked paint keeps reported time", func(t *testing.T) {
		a := &arbitration{load: newLoad(true, false)}

		sample, err := a.accept(Signal{Kind: SignalRecord, At: at(20), Report: &Reported{Time: 12}})
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Equal(t, 12.0, sample.ElapsedMs)
	})
}

func TestArbitration_DuplicateReport(t *testing.T) {
	a := &arbitration{load: newLoad(true, true)}
	rep := &Reported{Time: 5, StartTime: 1700000000000}

	_, err := a.accept(Signal{Kind: SignalRecord, At: at(5), Report: rep})
	require.NoError(t, err)

	_, err = a.accept(Signal{Kind: SignalRecord, At: at(6), Report: rep})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestSignalFromMessage(t *testing.T) {
	when := at(0)

	sig := SignalFromMessage(Message{Name: MessageRecordTime, Payload: []byte(`{"time":12.5,"startTime":99}`), At: when})
	assert.Equal(t, SignalRecord, sig.Kind)
	assert.Equal(t, OriginRemote, sig.Origin)
	assert.Equal(t, when, sig.At)
	require.NotNil(t, sig.Report)
	assert.Equal(t, Reported{Time: 12.5, StartTime: 99}, *sig.Report)
	assert.NoError(t, sig.malformed)

	assert.Equal(t, SignalLoad, SignalFromMessage(Message{Name: MessageLoad}).Kind)
	assert.Equal(t, SignalPaint, SignalFromMessage(Message{Name: MessagePaint}).Kind)
	assert.False(t, SignalFromMessage(Message{Name: MessageLoad}).At.IsZero())

	empty := SignalFromMessage(Message{Name: MessageRecordTime})
	assert.Equal(t, SignalRecord, empty.Kind)
	assert.Error(t, empty.malformed)
}

func TestListenerScope_ReleaseUnregistersOnce(t *testing.T) {
	scope := newListenerScope()
	removed := 0
	scope.add(func() { removed++ })
	scope.add(func() { removed++ })
	scope.add(nil)

	scope.release()
	scope.release()
	assert.Equal(t, 2, removed)

	// delivery after release is dropped without blocking
	scope.deliver(Signal{Kind: SignalLoad})
	assert.Zero(t, scope.pending())
}

func TestListenerScope_DeliverNeverBlocks(t *testing.T) {
	scope := newListenerScope()
	for i := 0; i < 100; i++ {
		scope.deliver(Signal{Kind: SignalPaint})
	}
	scope.deliver(Signal{Kind: SignalLoad})

	assert.Equal(t, 101, scope.pending())
	queued := scope.drain()
	require.Len(t, queued, 101)
	assert.Equal(t, SignalLoad, queued[100].Kind)
	assert.Zero(t, scope.pending())
}

func TestArbiter_AwaitSurvivesSignalBurst(t *testing.T) {
	arb := &arbiter{surface: &fakeSurface{}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	scope := newListenerScope()
	defer scope.release()

	load := newLoad(false, false)
	for i := 0; i < 20; i++ {
		scope.deliver(Signal{Kind: SignalPaint, Origin: OriginLocal, At: at(5)})
	}
	scope.deliver(Signal{Kind: SignalLoad, Origin: OriginLocal, At: at(40)})

	load.timeout = time.Second
	timer := time.NewTimer(load.timeout)
	defer timer.Stop()

	sample, err := arb.await(context.Background(), scope, load, timer.C)
	require.NoError(t, err)
	assert.Equal(t, 40.0, sample.ElapsedMs)
}

// fakeSurface records listener registration for the arbiter's attach path.
type fakeSurface struct {
	remote bool

	mu       sync.Mutex
	direct   []func(Signal)
	messages map[string]func(Message)
}

func (f *fakeSurface) Navigate(context.Context, Navigation) error { return nil }
func (f *fakeSurface) OutOfProcess() bool                        { return f.remote }

func (f *fakeSurface) AddListener(fn func(Signal)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.direct = nil
	}
}

func (f *fakeSurface) Messages() MessageChannel {
	if !f.remote {
		return nil
	}
	return f
}

func (f *fakeSurface) AddMessageListener(name string, fn func(Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string]func(Message))
	}
	f.messages[name] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.messages, name)
	}
}

func TestArbiter_AttachRemote(t *testing.T) {
	surface := &fakeSurface{remote: true}
	arb := &arbiter{surface: surface, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	scope := arb.attach(Navigation{URL: "u", OwnTiming: true})
	assert.Len(t, surface.messages, 2, "paint is only heard when tracked")

	surface.messages[MessageRecordTime](Message{Payload: []byte(`{"time":8,"startTime":1700000000000}`)})

	load := &pageLoad{name: "u", nav: Navigation{URL: "u", OwnTiming: true}, start: time.Now()}
	sample, err := arb.await(context.Background(), scope, load, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, sample.ElapsedMs)

	scope.release()
	assert.Empty(t, surface.messages)

	scope = arb.attach(Navigation{URL: "u", PaintTracking: true})
	assert.Len(t, surface.messages, 3)
	scope.release()
}

func TestArbiter_AttachLocal(t *testing.T) {
	surface := &fakeSurface{}
	arb := &arbiter{surface: surface, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	scope := arb.attach(Navigation{URL: "u"})
	require.Len(t, surface.direct, 1)

	surface.direct[0](Signal{Kind: SignalLoad, Origin: OriginRemote})
	<-scope.notify
	queued := scope.drain()
	require.Len(t, queued, 1)
	sig := queued[0]
	assert.Equal(t, OriginLocal, sig.Origin)
	assert.False(t, sig.At.IsZero())

	scope.release()
	assert.Empty(t, surface.direct)
}

func TestArbiter_AwaitTimeout(t *testing.T) {
	arb := &arbiter{surface: &fakeSurface{}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	scope := newListenerScope()
	defer scope.release()

	load := newLoad(true, false)
	load.timeout = 10 * time.Millisecond
	timer := time.NewTimer(load.timeout)
	defer timer.Stop()

	_, err := arb.await(context.Background(), scope, load, timer.C)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "no completion signal within 10ms")
}

func TestArbiter_AwaitCancelled(t *testing.T) {
	arb := &arbiter{surface: &fakeSurface{}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	scope := newListenerScope()
	defer scope.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := arb.await(ctx, scope, newLoad(false, false), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
