package export_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pagedHistory serves a fixed event list one page at a time, mimicking the
// audit model's cursor pagination.
type pagedHistory struct {
	events   []*types.ReputationEvent
	pageSize int
	calls    int
}

func (p *pagedHistory) GetHistory(
	_ context.Context, _ types.EventFilter, cursor *types.EventCursor, limit int,
) ([]*types.ReputationEvent, *types.EventCursor, error) {
	p.calls++

	size := min(p.pageSize, limit)

	start := 0
	if cursor != nil {
		start = int(cursor.Sequence)
	}

	end := min(start+size, len(p.events))
	page := p.events[start:end]

	if end >= len(p.events) {
		return page, nil, nil
	}

	return page, &types.EventCursor{Sequence: int64(end)}, nil
}

func TestExporter(t *testing.T) {
	t.Parallel()

	makeEvents := func(n int) []*types.ReputationEvent {
		events := make([]*types.ReputationEvent, n)
		for i := range events {
			events[i] = &types.ReputationEvent{
				Sequence:    int64(i + 1),
				CommunityID: 7,
				UserID:      uint64(i%5 + 1),
				EventType:   "subscription",
				ScoreChange: 5,
				ScoreBefore: 600 + 5*i,
				ScoreAfter:  605 + 5*i,
				OccurredAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			}
		}

		return events
	}

	t.Run("drains every page into one file", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		source := &pagedHistory{events: makeEvents(25), pageSize: 10}

		e := export.New(source, zap.NewNop())
		require.NoError(t, e.Export(t.Context(), 7, time.Time{}, time.Now(), "csv", tempDir))

		// Three pages: 10 + 10 + 5
		assert.Equal(t, 3, source.calls)

		file, err := os.Open(filepath.Join(tempDir, "audit_7.csv"))
		require.NoError(t, err)
		defer file.Close()

		rows, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 26) // header plus 25 events
	})

	t.Run("sqlite format writes a database", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		source := &pagedHistory{events: makeEvents(3), pageSize: 10}

		e := export.New(source, zap.NewNop())
		require.NoError(t, e.Export(t.Context(), 7, time.Time{}, time.Now(), "sqlite", tempDir))

		_, err := os.Stat(filepath.Join(tempDir, "audit_7.db"))
		assert.NoError(t, err)
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		t.Parallel()

		source := &pagedHistory{events: makeEvents(1), pageSize: 10}

		e := export.New(source, zap.NewNop())
		err := e.Export(t.Context(), 7, time.Time{}, time.Now(), "parquet", t.TempDir())
		require.ErrorIs(t, err, export.ErrUnknownFormat)
	})
}
