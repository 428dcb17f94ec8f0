// Package archival flips the archived flag on detection history older
// than a retention cutoff, run periodically outside the hot pipeline
// path and outside of core may
// later flip the archived flag").
package archival

import (
	"context"
	"log"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/detections"
)

// Archiver flips archived/archived_at on detection_events rows older
// than a cutoff, in small batches so it never holds a long-running
// transaction against a live table. Rows are never deleted by this
// package; retention/deletion, if any, is a separate operational concern.
type Archiver struct {
	db        detections.DBTX
	batchSize int
}

func NewArchiver(db detections.DBTX, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Archiver{db: db, batchSize: batchSize}
}

// ArchiveOlderThan marks every unarchived detection_events row with
// timestamp before cutoff as archived, looping in batches until none
// remain. Returns the total rows flipped.
func (a *Archiver) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		res, err := a.db.ExecContext(ctx, `
			UPDATE detection_events
			SET archived = TRUE, archived_at = NOW()
			WHERE id IN (
				SELECT id FROM detection_events
				WHERE timestamp < $1 AND archived = FALSE
				LIMIT $2
			)`, cutoff, a.batchSize)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(a.batchSize) {
			break
		}
	}
	log.Printf("archival: flagged %d detection rows archived before %s", total, cutoff.Format(time.RFC3339))
	return total, nil
}
