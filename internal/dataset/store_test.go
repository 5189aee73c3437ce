package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight/internal/core"
	"insight/internal/log"
	"insight/internal/sheets"
)

var header = core.RawRow{"Date", "Department", "Product", "Sales", "COGS", "Profit"}

type fakeFetcher struct {
	mu    sync.Mutex
	rows  []core.RawRow
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeFetcher) FetchRows(ctx context.Context) ([]core.RawRow, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeFetcher) Source() sheets.SourceRef {
	return sheets.SourceRef{SpreadsheetID: "sheet-1", Range: "Financial Data"}
}

func (f *fakeFetcher) set(rows []core.RawRow, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.err = rows, err
}

type fakeArchiver struct {
	snaps []*Snapshot
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, s *Snapshot) (ArchiveResult, error) {
	if a.err != nil {
		return ArchiveResult{}, a.err
	}
	a.snaps = append(a.snaps, s)
	return ArchiveResult{ID: int64(len(a.snaps)), Created: true}, nil
}

type fakeObserver struct {
	refreshes int
	failures  int
	last      *Snapshot
}

func (o *fakeObserver) ObserveRefresh(_ time.Duration, err error) {
	o.refreshes++
	if err != nil {
		o.failures++
	}
}

func (o *fakeObserver) ObserveSnapshot(s *Snapshot) { o.last = s }

func rowsV1() []core.RawRow {
	return []core.RawRow{
		header,
		{"02/01/2021", "Retail", "Widget", "10", "4", "6"},
		{"01/15/2021", "Retail ", "Widget", "1,000.00", "(200.00)", "800.00"},
		{"01/20/2021", "Online", "Gadget", "50", "", "50"},
	}
}

func newTestStore(f *fakeFetcher, opts ...Option) *Store {
	opts = append([]Option{WithLogger(log.Discard()), withClock(func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})}, opts...)
	return NewStore(f, opts...)
}

func TestStore_EmptyBeforeRefresh(t *testing.T) {
	s := newTestStore(&fakeFetcher{rows: rowsV1()})
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.False(t, s.Ready())
}

func TestStore_Refresh(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1()}
	arch := &fakeArchiver{}
	obs := &fakeObserver{}
	s := newTestStore(f, WithArchiver(arch), WithObserver(obs))

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Ready())

	current, err := s.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, current)

	records := snap.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "Retail", records[0].Department)
	assert.True(t, records[0].Date.Before(records[2].Date))

	depts, prods := snap.Options()
	assert.Equal(t, []string{"Retail", "Online"}, depts)
	assert.Equal(t, []string{"Widget", "Gadget"}, prods)

	meta := snap.Meta()
	assert.Equal(t, 3, meta.Rows)
	assert.Equal(t, 3, meta.Records)
	assert.Equal(t, "sheet-1", meta.SpreadsheetID)
	assert.Len(t, meta.Hash, 64)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), meta.FetchedAt)

	assert.Len(t, arch.snaps, 1)
	assert.Equal(t, 1, obs.refreshes)
	assert.Same(t, snap, obs.last)
}

func TestStore_UnchangedKeepsSnapshot(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1()}
	arch := &fakeArchiver{}
	s := newTestStore(f, WithArchiver(arch))

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)
	second, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, arch.snaps, 1)

	changed := append(rowsV1(), core.RawRow{"03/01/2021", "Retail", "Widget", "1", "1", "0"})
	f.set(changed, nil)
	third, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), third.ID())
	assert.NotEqual(t, first.Hash(), third.Hash())
	assert.Len(t, arch.snaps, 2)
}

func TestStore_FailedRefreshKeepsPrevious(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1()}
	obs := &fakeObserver{}
	s := newTestStore(f, WithObserver(obs))

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name string
		rows []core.RawRow
		err  error
		want error
	}{
		{"fetch error", nil, errors.New("unavailable"), nil},
		{"empty source", nil, nil, core.ErrEmptySource},
		{"malformed date", []core.RawRow{header, {"2021-01-15", "Retail", "Widget", "1", "1", "0"}}, nil, core.ErrMalformedDate},
		{"missing column", []core.RawRow{{"Date", "Sales"}}, nil, core.ErrMissingColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.set(tt.rows, tt.err)
			_, err := s.Refresh(context.Background())
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			current, err := s.Snapshot()
			require.NoError(t, err)
			assert.Same(t, first, current)
		})
	}
	assert.Equal(t, len(tests), obs.failures)
}

func TestStore_FirstRefreshFailureLeavesEmpty(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestStore(f)
	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrEmptySource)
	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestStore_ArchiveFailureIsNotFatal(t *testing.T) {
	s := newTestStore(&fakeFetcher{rows: rowsV1()}, WithArchiver(&fakeArchiver{err: errors.New("disk full")}))
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Ready())
}

func TestStore_Timeout(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1(), gate: make(chan struct{})}
	s := newTestStore(f, WithTimeout(20*time.Millisecond))
	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_ConcurrentRefreshesShareOneBuild(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1(), gate: make(chan struct{})}
	s := newTestStore(f)

	const n = 8
	var wg, started sync.WaitGroup
	results := make([]*Snapshot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			snap, err := s.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}

	// Let every goroutine join the in-flight build before releasing it.
	started.Wait()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load(), "joined callers must not start their own build")
	current, err := s.Snapshot()
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, current.Hash(), r.Hash())
	}
}

func TestStore_CancelledCallerDoesNotAbortSharedBuild(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1(), gate: make(chan struct{})}
	s := newTestStore(f)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctxA)
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		snap *Snapshot
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		snap, err := s.Refresh(context.Background())
		resB <- result{snap, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	assert.False(t, s.Ready(), "the build is still waiting on the fetch")

	close(f.gate)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		require.NotNil(t, r.snap)
		assert.Equal(t, 3, r.snap.Len())
	case <-time.After(time.Second):
		t.Fatal("joined caller did not get the shared result")
	}
	assert.True(t, s.Ready())
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestStore_QueriesDuringRefresh(t *testing.T) {
	f := &fakeFetcher{rows: rowsV1()}
	s := newTestStore(f)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			rows := rowsV1()
			if i%2 == 0 {
				rows = append(rows, core.RawRow{"03/01/2021", "Retail", "Widget", "1", "1", "0"})
			}
			f.set(rows, nil)
			_, _ = s.Refresh(ctx)
		}
	}()

	for i := 0; i < 200; i++ {
		snap, err := s.Snapshot()
		require.NoError(t, err)
		got := core.Filter(snap.Records(), core.FilterSpec{Department: "Retail"})
		// Every snapshot is complete: either two or three Retail rows.
		assert.Contains(t, []int{2, 3}, len(got))
		assert.Equal(t, snap.Len(), len(snap.Records()))
	}
	cancel()
	wg.Wait()
}

func TestSnapshot_IsImmutable(t *testing.T) {
	rows := rowsV1()
	snap, err := NewSnapshot(sheets.SourceRef{Range: "r"}, rows, time.Now())
	require.NoError(t, err)

	rows[1][1] = "Changed"
	got := snap.Records()
	got[0].Department = "Changed"
	raw := snap.Rows()
	raw[1][1] = "Changed"

	assert.Equal(t, "Retail", snap.Records()[0].Department)
	assert.Equal(t, "Retail", snap.Rows()[1][1])
}

func TestHashRows(t *testing.T) {
	a, err := HashRows(rowsV1())
	require.NoError(t, err)
	b, err := HashRows(rowsV1())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := rowsV1()
	changed[1][3] = "11"
	c, err := HashRows(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
