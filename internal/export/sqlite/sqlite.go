package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hubwatch/reputeer/internal/database/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Exporter writes audit history to standalone SQLite databases so dispute
// reviewers can query a community's history without engine access.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes one community's audit records to audit_<community>.db,
// replacing any previous export.
func (e *Exporter) Export(communityID uint64, events []*types.ReputationEvent) error {
	path := filepath.Join(e.outDir, fmt.Sprintf("audit_%d.db", communityID))

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file: %w", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer conn.Close()

	err = sqlitex.Execute(conn, `
		CREATE TABLE audit_events (
			sequence INTEGER PRIMARY KEY,
			community_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			global_identity_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			score_change INTEGER NOT NULL,
			score_before INTEGER NOT NULL,
			score_after INTEGER NOT NULL,
			reason TEXT NOT NULL,
			clamped INTEGER NOT NULL,
			occurred_at TEXT NOT NULL
		)
	`, nil)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Insert records in batches
	const batchSize = 1000

	for i := 0; i < len(events); i += batchSize {
		end := min(i+batchSize, len(events))

		if err := sqlitex.Execute(conn, "BEGIN TRANSACTION", nil); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, event := range events[i:end] {
			clamped := 0
			if event.Clamped {
				clamped = 1
			}

			err = sqlitex.Execute(conn, `
				INSERT INTO audit_events (
					sequence, community_id, user_id, global_identity_id, event_type,
					score_change, score_before, score_after, reason, clamped, occurred_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, &sqlitex.ExecOptions{
				Args: []any{
					event.Sequence, int64(event.CommunityID), int64(event.UserID),
					int64(event.IdentityID), event.EventType, event.ScoreChange,
					event.ScoreBefore, event.ScoreAfter, event.Reason, clamped,
					event.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to insert record: %w", err)
			}
		}

		if err := sqlitex.Execute(conn, "COMMIT", nil); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	return nil
}
