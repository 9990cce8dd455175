package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// multipartThreshold is the export size above which the multipart uploader
// is used instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// archiveBatch caps how many rows are drained from the store per export so a
// backlog never has to fit in memory at once.
const archiveBatch = 1000

// uploader is the slice of Writer the archiver needs; tests substitute a
// recording fake.
type uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports aged opportunity rows to object storage as JSONL and then
// prunes them from the primary store. Deletion happens only after the upload
// for that batch succeeded, so a failed run leaves the rows in place for the
// next one.
type Archiver struct {
	writer uploader
	store  domain.OpportunityStore
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver that writes under the given key prefix.
func NewArchiver(writer uploader, store domain.OpportunityStore, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore exports every opportunity detected strictly before the
// cutoff and deletes the exported rows. It returns the number of rows
// archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		opps, err := a.store.ListBefore(ctx, before, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(opps) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(opps)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		// The newest row in the batch bounds what may be deleted afterwards:
		// rows that arrived between the query and the delete stay put.
		newest := opps[len(opps)-1].DetectedAt

		path := a.archivePath(newest)
		if len(buf) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		deleted, err := a.store.DeleteBefore(ctx, newest.Add(time.Microsecond))
		if err != nil {
			return total, fmt.Errorf("s3blob: archive prune: %w", err)
		}
		total += deleted

		a.logger.Info("archived opportunities",
			slog.String("path", path),
			slog.Int("exported", len(opps)),
			slog.Int64("deleted", deleted),
		)

		if len(opps) < archiveBatch {
			return total, nil
		}
	}
}

// archivePath builds an S3 key partitioned by month with a unique
// per-export timestamp, e.g. opportunities/2026-08/20260829T031500Z.jsonl.
func (a *Archiver) archivePath(newest time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl",
		a.prefix,
		newest.UTC().Format("2006-01"),
		time.Now().UTC().Format("20060102T150405Z"),
	)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL(records []domain.Opportunity) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
