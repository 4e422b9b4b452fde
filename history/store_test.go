package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/pb33f/pagecycle/motor/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", 10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runReport(fingerprint string, a, b []float64) *model.Report {
	rep := &model.Report{
		Fingerprint: fingerprint,
		Cycles:      len(a),
		StartedAt:   time.UnixMilli(1700000000000),
		CompletedAt: time.UnixMilli(1700000005000),
	}
	for name, values := range map[string][]float64{"http://x/a": a, "http://x/b": b} {
		ps := &model.PageSamples{Name: name}
		for i, v := range values {
			ps.Samples = append(ps.Samples, model.Sample{Cycle: i, ElapsedMs: v})
		}
		rep.Pages = append(rep.Pages, ps)
	}
	return rep
}

func TestStore_SaveAndList(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, runReport("f1", []float64{1, 2, 3}, []float64{4, 5, 6})))
	require.NoError(t, s.Save(ctx, runReport("f2", []float64{1}, []float64{2})))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "f2", runs[0].Fingerprint, "newest first")
	assert.Equal(t, 2, runs[0].Samples)
	assert.Equal(t, "f1", runs[1].Fingerprint)
	assert.Equal(t, 6, runs[1].Samples)
	assert.Equal(t, 3, runs[1].Cycles)
	assert.Equal(t, int64(1700000000000), runs[1].StartedAt.UnixMilli())

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Compare(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, runReport("same", []float64{100, 100, 100}, []float64{50, 50, 50})))
	require.NoError(t, s.Save(ctx, runReport("other", []float64{1}, []float64{1})))
	require.NoError(t, s.Save(ctx, runReport("same", []float64{130, 120, 100}, []float64{50, 52, 49})))

	cmp, err := s.Compare(ctx, "same")
	require.NoError(t, err)

	assert.Greater(t, cmp.Current.ID, cmp.Previous.ID)
	assert.True(t, cmp.Degradation)
	require.Len(t, cmp.Pages, 2)

	byPage := map[string]PageDelta{}
	for _, d := range cmp.Pages {
		byPage[d.Page] = d
	}
	a := byPage["http://x/a"]
	assert.Equal(t, 100.0, a.PreviousMedian)
	assert.Equal(t, 120.0, a.CurrentMedian)
	assert.InDelta(t, 20.0, a.ChangePct, 1e-9)
	assert.True(t, a.Degradation)

	b := byPage["http://x/b"]
	assert.Equal(t, 50.0, b.CurrentMedian)
	assert.False(t, b.Degradation)
}

func TestStore_CompareNeedsTwoRuns(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Compare(ctx, "nothing")
	assert.ErrorIs(t, err, ErrNotEnoughRuns)

	require.NoError(t, s.Save(ctx, runReport("once", []float64{1}, []float64{1})))
	_, err = s.Compare(ctx, "once")
	assert.ErrorIs(t, err, ErrNotEnoughRuns)
}

func TestStore_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, runReport("disk", []float64{1}, []float64{2})))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, 0, nil)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "disk", runs[0].Fingerprint)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", 0, nil)
	assert.Error(t, err)
}
