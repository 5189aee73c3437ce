package dataset

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"insight/internal/log"
	"insight/internal/sheets"
)

// ArchiveResult reports where a snapshot's raw rows were stored.
type ArchiveResult struct {
	ID      int64
	Created bool // false when an identical copy was already the latest
}

// Archiver keeps a durable copy of a snapshot's raw rows.
type Archiver interface {
	Archive(ctx context.Context, snap *Snapshot) (ArchiveResult, error)
}

// Observer is told about every refresh attempt.
type Observer interface {
	ObserveRefresh(duration time.Duration, err error)
	ObserveSnapshot(snap *Snapshot)
}

// Store holds the current snapshot and rebuilds it on demand.
type Store struct {
	fetcher  sheets.RowFetcher
	archiver Archiver
	observer Observer
	logger   *log.Logger
	timeout  time.Duration
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

type Option func(*Store)

// WithArchiver stores every changed snapshot. Archive failures are logged and
// do not fail the refresh.
func WithArchiver(a Archiver) Option { return func(s *Store) { s.archiver = a } }

// WithTimeout bounds each fetch. Zero leaves the caller's context alone.
func WithTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

func WithObserver(o Observer) Option { return func(s *Store) { s.observer = o } }

func withClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore returns an empty store reading from f. Call Refresh to load it.
func NewStore(f sheets.RowFetcher, opts ...Option) *Store {
	s := &Store{fetcher: f, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.NewDefault()
	}
	s.logger = s.logger.WithComponent(log.ComponentDataset)
	return s
}

// Snapshot returns the current snapshot, or ErrNoSnapshot before the first
// successful refresh. Callers should load it once per query.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Ready reports whether a snapshot is loaded.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Source returns the range this store reads.
func (s *Store) Source() sheets.SourceRef {
	return s.fetcher.Source()
}

// Refresh rebuilds the snapshot from a full fetch. Only one rebuild runs at a
// time; callers arriving while one is in flight share its result. The current
// snapshot is replaced only after a complete build, so a failed refresh leaves
// the previous one in place. When the fetched rows hash the same as the
// current snapshot, the current snapshot is kept and returned.
//
// The build is detached from ctx and bounded only by WithTimeout. A caller
// whose ctx ends stops waiting with ctx.Err(); the build runs on for the
// others that joined it.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	src := s.fetcher.Source()
	logger := s.logger.With(log.FieldOperation, log.OpRefresh, log.FieldRange, src.Range)
	logger.InfoContext(ctx, "Dataset refresh started")

	fetchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap, err := Build(fetchCtx, s.fetcher, s.now())
	if s.observer != nil {
		s.observer.ObserveRefresh(time.Since(start), err)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Dataset refresh failed", log.FieldError, err)
		return nil, err
	}

	if prev := s.current.Load(); prev != nil && prev.Hash() == snap.Hash() {
		logger.InfoContext(ctx, "Dataset unchanged",
			log.FieldDatasetID, prev.ID(),
			log.FieldDatasetHash, prev.Hash(),
			log.FieldDuration, time.Since(start).Milliseconds())
		return prev, nil
	}

	if s.archiver != nil {
		res, aerr := s.archiver.Archive(ctx, snap)
		if aerr != nil {
			logger.WarnContext(ctx, "Dataset archive failed", log.FieldError, aerr)
		} else {
			logger.DebugContext(ctx, "Dataset archived", "archive_id", res.ID, "created", res.Created)
		}
	}

	s.current.Store(snap)
	if s.observer != nil {
		s.observer.ObserveSnapshot(snap)
	}

	meta := snap.Meta()
	logger.InfoContext(ctx, "Dataset refresh completed",
		log.FieldDatasetID, meta.ID,
		log.FieldDatasetHash, meta.Hash,
		log.FieldRowCount, meta.Rows,
		log.FieldRecordCount, meta.Records,
		log.FieldDuration, time.Since(start).Milliseconds())
	return snap, nil
}
