package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the time-ranged query methods it actually
// calls, not the full domain store interfaces. The Postgres FillStore and
// AuditStore satisfy these directly.
// ---------------------------------------------------------------------------

// FillArchiveStore provides read access to fills for archival purposes.
type FillArchiveStore interface {
	// ListBefore returns all fills created strictly before the given cutoff
	// time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
}

// AuditArchiveStore provides read access to audit entries for archival
// purposes.
type AuditArchiveStore interface {
	// ListBefore returns all audit entries created strictly before the given
	// cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	fills  FillArchiveStore
	audit  AuditArchiveStore
	logger domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	fills FillArchiveStore,
	audit AuditArchiveStore,
	logger domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		fills:  fills,
		audit:  audit,
		logger: logger,
	}
}

// ArchiveFills queries all fills before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/fills/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	path := archivePath("fills", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	count := int64(len(fills))

	if err := a.logger.Log(ctx, "archive.fills", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive fills audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit queries all audit entries before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at archive/audit/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.logger.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/fills/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
