package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// verifySQLiteFile reads an exported database and verifies its rows match
// the expected events.
func verifySQLiteFile(t *testing.T, path string, expected []*types.ReputationEvent) {
	t.Helper()

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	var rows []*types.ReputationEvent

	err = sqlitex.ExecuteTransient(conn, `
		SELECT sequence, community_id, user_id, event_type,
		       score_change, score_before, score_after, reason, clamped
		FROM audit_events ORDER BY sequence
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows = append(rows, &types.ReputationEvent{
				Sequence:    stmt.ColumnInt64(0),
				CommunityID: uint64(stmt.ColumnInt64(1)),
				UserID:      uint64(stmt.ColumnInt64(2)),
				EventType:   stmt.ColumnText(3),
				ScoreChange: stmt.ColumnInt(4),
				ScoreBefore: stmt.ColumnInt(5),
				ScoreAfter:  stmt.ColumnInt(6),
				Reason:      stmt.ColumnText(7),
				Clamped:     stmt.ColumnInt(8) == 1,
			})
			return nil
		},
	})
	require.NoError(t, err)

	require.Len(t, rows, len(expected))

	for i, event := range expected {
		assert.Equal(t, event.Sequence, rows[i].Sequence)
		assert.Equal(t, event.CommunityID, rows[i].CommunityID)
		assert.Equal(t, event.UserID, rows[i].UserID)
		assert.Equal(t, event.EventType, rows[i].EventType)
		assert.Equal(t, event.ScoreChange, rows[i].ScoreChange)
		assert.Equal(t, event.ScoreBefore, rows[i].ScoreBefore)
		assert.Equal(t, event.ScoreAfter, rows[i].ScoreAfter)
		assert.Equal(t, event.Reason, rows[i].Reason)
		assert.Equal(t, event.Clamped, rows[i].Clamped)
	}
}

func TestExporter_Export(t *testing.T) {
	occurredAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		events []*types.ReputationEvent
	}{
		{
			name: "basic export",
			events: []*types.ReputationEvent{
				{
					Sequence: 1, CommunityID: 7, UserID: 100, EventType: "subscription",
					ScoreChange: 5, ScoreBefore: 600, ScoreAfter: 605,
					Reason: "monthly sub", OccurredAt: occurredAt,
				},
				{
					Sequence: 2, CommunityID: 7, UserID: 200, IdentityID: 99,
					EventType: "spam_timeout", ScoreChange: -15,
					ScoreBefore: 310, ScoreAfter: 300,
					Reason: "link spam", Clamped: true, OccurredAt: occurredAt,
				},
			},
		},
		{
			name:   "empty history",
			events: []*types.ReputationEvent{},
		},
		{
			name: "reasons with quotes",
			events: []*types.ReputationEvent{
				{
					Sequence: 1, CommunityID: 7, UserID: 100, EventType: "chat_warning",
					ScoreChange: -10, ScoreBefore: 600, ScoreAfter: 590,
					Reason: "reason with ' single quote", OccurredAt: occurredAt,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()

			e := New(tempDir)
			require.NoError(t, e.Export(7, tt.events))

			verifySQLiteFile(t, filepath.Join(tempDir, "audit_7.db"), tt.events)
		})
	}
}

func TestExporter_ExistingFile(t *testing.T) {
	tempDir := t.TempDir()

	err := os.WriteFile(filepath.Join(tempDir, "audit_7.db"), []byte("invalid sqlite db"), 0o644)
	require.NoError(t, err)

	events := []*types.ReputationEvent{
		{
			Sequence: 1, CommunityID: 7, UserID: 100, EventType: "subscription",
			ScoreChange: 5, ScoreBefore: 600, ScoreAfter: 605,
			OccurredAt: time.Now(),
		},
	}

	e := New(tempDir)
	require.NoError(t, e.Export(7, events))

	verifySQLiteFile(t, filepath.Join(tempDir, "audit_7.db"), events)
}

func TestExporter_DatabaseSchema(t *testing.T) {
	tempDir := t.TempDir()
	e := New(tempDir)

	require.NoError(t, e.Export(7, []*types.ReputationEvent{
		{
			Sequence: 1, CommunityID: 7, UserID: 100, EventType: "subscription",
			ScoreChange: 5, ScoreBefore: 600, ScoreAfter: 605,
			OccurredAt: time.Now(),
		},
	}))

	conn, err := sqlite.OpenConn(filepath.Join(tempDir, "audit_7.db"), sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	var columns []string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA table_info(audit_events)", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			columns = append(columns, stmt.ColumnText(1))
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sequence", "community_id", "user_id", "global_identity_id", "event_type",
		"score_change", "score_before", "score_after", "reason", "clamped", "occurred_at",
	}, columns)

	var pkColumn string
	err = sqlitex.ExecuteTransient(conn,
		"SELECT name FROM pragma_table_info('audit_events') WHERE pk = 1", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				pkColumn = stmt.ColumnText(0)
				return nil
			},
		})
	require.NoError(t, err)
	assert.Equal(t, "sequence", pkColumn)
}
