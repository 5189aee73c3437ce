// Package worker fetches the spreadsheet on request, archives changed copies
// and announces them to dashboards.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insight/internal/amqp"
	"insight/internal/core"
	"insight/internal/dataset"
	"insight/internal/log"
	"insight/internal/sheets"
)

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg amqp.Message) error
}

// RefreshWorker handles refresh requests from AMQP.
type RefreshWorker struct {
	fetcher   sheets.RowFetcher
	archiver  dataset.Archiver
	publisher Publisher
	logger    *log.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewRefreshWorker(fetcher sheets.RowFetcher, archiver dataset.Archiver, publisher Publisher, logger *log.Logger, timeout time.Duration) *RefreshWorker {
	if logger == nil {
		logger = log.NewDefault()
	}
	return &RefreshWorker{
		fetcher:   fetcher,
		archiver:  archiver,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentWorker),
		timeout:   timeout,
		now:       time.Now,
	}
}

// HandleRefreshRequest fetches and validates the sheet, archives it and
// publishes a DatasetArchivedMessage. A sheet that fails validation is
// rejected with amqp.ErrReject; fetch, archive and publish failures are
// returned as is so the request is retried.
func (w *RefreshWorker) HandleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequestMessage) error {
	logger := w.logger.With(log.FieldRequestID, msg.RequestID)
	logger.InfoContext(ctx, "Processing refresh request",
		"reason", msg.Reason,
		"requested_at", msg.Timestamp)

	_, err := w.refresh(ctx, msg.RequestID)
	if err != nil {
		logger.ErrorContext(ctx, "Refresh request failed", log.FieldError, err)
	}
	return err
}

// StartupRefresh archives the current sheet once at worker start, so a
// dashboard on the sqlite backend has data before the first request.
func (w *RefreshWorker) StartupRefresh(ctx context.Context) error {
	msg, err := w.refresh(ctx, "startup")
	if err != nil {
		return fmt.Errorf("startup refresh: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup refresh complete",
		"archive_id", msg.ArchiveID,
		"created", msg.Created)
	return nil
}

func (w *RefreshWorker) refresh(ctx context.Context, requestID string) (*amqp.DatasetArchivedMessage, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	snap, err := dataset.Build(ctx, w.fetcher, w.now())
	if err != nil {
		if permanent(err) {
			return nil, fmt.Errorf("%w: %v", amqp.ErrReject, err)
		}
		return nil, err
	}

	res, err := w.archiver.Archive(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("archive snapshot: %w", err)
	}

	src := snap.Source()
	meta := snap.Meta()
	out := &amqp.DatasetArchivedMessage{
		ArchiveID:     res.ID,
		RequestID:     requestID,
		SpreadsheetID: src.SpreadsheetID,
		Range:         src.Range,
		Hash:          snap.Hash(),
		Rows:          meta.Rows,
		Records:       meta.Records,
		Created:       res.Created,
		Timestamp:     w.now().UTC(),
	}
	// A redelivered request republishes; readers dedupe on the hash.
	if err := w.publisher.Publish(ctx, out); err != nil {
		return nil, fmt.Errorf("publish archived event: %w", err)
	}

	w.logger.InfoContext(ctx, "Dataset refreshed",
		log.FieldRequestID, requestID,
		"archive_id", res.ID,
		"created", res.Created,
		log.FieldDatasetHash, snap.Hash(),
		log.FieldRecordCount, meta.Records)
	return out, nil
}

// permanent reports errors that a retry of the same sheet cannot fix.
func permanent(err error) bool {
	return errors.Is(err, core.ErrMalformedDate) ||
		errors.Is(err, core.ErrMissingColumn) ||
		errors.Is(err, core.ErrEmptySource)
}
