package scripted

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pb33f/pagecycle/motor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface_LocalSignals(t *testing.T) {
	s := New(WithDefault(Script{LoadAfter: time.Millisecond}))
	defer s.Close()

	got := make(chan motor.Signal, 4)
	remove := s.AddListener(func(sig motor.Signal) { got <- sig })
	defer remove()

	require.NoError(t, s.Navigate(context.Background(), motor.Navigation{URL: "u", PaintTracking: true}))

	first := <-got
	assert.Equal(t, motor.SignalLoad, first.Kind)
	assert.Equal(t, motor.OriginLocal, first.Origin)
	assert.Equal(t, motor.SignalPaint, (<-got).Kind)

	assert.False(t, s.OutOfProcess())
	assert.Nil(t, s.Messages())
}

func TestSurface_RemoteReport(t *testing.T) {
	s := New(Remote())
	defer s.Close()

	got := make(chan motor.Message, 1)
	remove := s.Messages().AddMessageListener(motor.MessageRecordTime, func(m motor.Message) { got <- m })
	defer remove()

	require.NoError(t, s.Navigate(context.Background(), motor.Navigation{URL: "u", OwnTiming: true}))

	m := <-got
	assert.Equal(t, motor.MessageRecordTime, m.Name)

	var rep motor.Reported
	require.NoError(t, json.Unmarshal(m.Payload, &rep))
	assert.Greater(t, rep.Time, 0.0)
	assert.Greater(t, rep.StartTime, 0.0)
	assert.True(t, s.OutOfProcess())
}

func TestSurface_ListenerRemoval(t *testing.T) {
	s := New(Remote())
	defer s.Close()

	r1 := s.AddListener(func(motor.Signal) {})
	r2 := s.AddMessageListener(motor.MessageLoad, func(motor.Message) {})
	assert.Equal(t, 2, s.ActiveListeners())

	r1()
	r2()
	assert.Zero(t, s.ActiveListeners())
}

func TestSurface_FailAndSilent(t *testing.T) {
	boom := errors.New("boom")
	s := New(WithScript("bad", Script{FailNavigate: boom}), WithScript("quiet", Script{Silent: true}))
	defer s.Close()

	called := false
	defer s.AddListener(func(motor.Signal) { called = true })()

	assert.ErrorIs(t, s.Navigate(context.Background(), motor.Navigation{URL: "bad"}), boom)
	require.NoError(t, s.Navigate(context.Background(), motor.Navigation{URL: "quiet"}))
	s.Close()

	assert.False(t, called)
	assert.Len(t, s.Navigations(), 2)
}

func TestSurface_CloseStopsPlayback(t *testing.T) {
	s := New(WithDefault(Script{LoadAfter: time.Hour}))
	require.NoError(t, s.Navigate(context.Background(), motor.Navigation{URL: "u"}))

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not stop playback")
	}
}

func TestWithoutCollector(t *testing.T) {
	s := New()
	defer s.Close()

	_, ok := any(s).(motor.Collector)
	assert.True(t, ok)

	_, ok = WithoutCollector(s).(motor.Collector)
	assert.False(t, ok)
}

func TestSurface_CollectGarbage(t *testing.T) {
	s := New(WithCollectionCost(time.Millisecond))
	defer s.Close()

	require.NoError(t, s.CollectGarbage(context.Background()))
	assert.Equal(t, 1, s.Collections())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.CollectGarbage(ctx))
}
