package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pariksha-io/pariksha/pkg/observability"
)

// archiveBatchSize is how many rows the archiver pages through at a time
const archiveBatchSize = 1000

// Uploader uploads archive objects. *storage.S3Client satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// Archiver enforces the retention policy: rows older than the policy window
// are exported to object storage as NDJSON, then deleted. A nil uploader
// means delete-only.
type Archiver struct {
	store    Store
	uploader Uploader
	policy   RetentionPolicy
	logger   *observability.Logger
}

// NewArchiver creates an archiver. uploader may be nil for delete-only
// retention.
func NewArchiver(store Store, uploader Uploader, policy RetentionPolicy, logger *observability.Logger) *Archiver {
	if policy.RetentionDays <= 0 {
		policy.RetentionDays = DefaultRetentionPolicy().RetentionDays
	}
	return &Archiver{
		store:    store,
		uploader: uploader,
		policy:   policy,
		logger:   logger,
	}
}

// ArchiveResult summarizes one archiver run
type ArchiveResult struct {
	Cutoff   time.Time
	Archived int
	Deleted  int64
	Key      string
}

// Run archives and deletes all events older than the retention window. It is
// intended to be invoked on a schedule; a failed upload aborts the run
// before anything is deleted.
func (a *Archiver) Run(ctx context.Context) (*ArchiveResult, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.policy.RetentionDays)
	result := &ArchiveResult{Cutoff: cutoff}

	if a.uploader != nil {
		archived, key, err := a.archiveBefore(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to archive expired audit logs: %w", err)
		}
		result.Archived = archived
		result.Key = key
	}

	deleted, err := a.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	if a.logger != nil && (result.Archived > 0 || result.Deleted > 0) {
		a.logger.WithFields(map[string]interface{}{
			"cutoff":   cutoff.Format(time.RFC3339),
			"archived": result.Archived,
			"deleted":  result.Deleted,
			"key":      result.Key,
		}).Info("audit retention run complete")
	}

	return result, nil
}

// archiveBefore exports every event older than cutoff as one NDJSON object.
// Returns the number of events archived and the object key, which is empty
// when there was nothing to archive.
func (a *Archiver) archiveBefore(ctx context.Context, cutoff time.Time) (int, string, error) {
	var buf bytes.Buffer
	archived := 0

	for offset := 0; ; offset += archiveBatchSize {
		batch, err := a.store.Search(ctx, SearchFilter{
			EndTime: &cutoff,
			Limit:   archiveBatchSize,
			Offset:  offset,
		})
		if err != nil {
			return 0, "", err
		}
		if len(batch) == 0 {
			break
		}

		data, err := exportNDJSON(batch)
		if err != nil {
			return 0, "", err
		}
		buf.Write(data)
		archived += len(batch)

		if len(batch) < archiveBatchSize {
			break
		}
	}

	if archived == 0 {
		return 0, "", nil
	}

	key := fmt.Sprintf("audit/%04d/%02d/audit-%s.ndjson",
		cutoff.Year(), int(cutoff.Month()), cutoff.Format("2006-01-02"))

	if err := a.uploader.PutObject(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, "", err
	}

	return archived, key, nil
}
