package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types"
	exportCSV "github.com/hubwatch/reputeer/internal/export/csv"
	exportSQLite "github.com/hubwatch/reputeer/internal/export/sqlite"
	"go.uber.org/zap"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Page size for draining audit history.
const historyPageSize = 5000

// HistorySource pages through audit records.
type HistorySource interface {
	GetHistory(
		ctx context.Context, filter types.EventFilter, cursor *types.EventCursor, limit int,
	) ([]*types.ReputationEvent, *types.EventCursor, error)
}

// Writer persists a drained community history in one output format.
type Writer interface {
	Export(communityID uint64, events []*types.ReputationEvent) error
}

// Exporter drains a community's audit history for a time window and hands
// it to a format writer for compliance or dispute handoff.
type Exporter struct {
	audit  HistorySource
	logger *zap.Logger
}

// New creates an exporter over the given audit source.
func New(audit HistorySource, logger *zap.Logger) *Exporter {
	return &Exporter{
		audit:  audit,
		logger: logger.Named("export"),
	}
}

// Export writes one community's audit history for [start, end] to outDir
// in the requested format ("csv" or "sqlite").
func (e *Exporter) Export(
	ctx context.Context, communityID uint64, start, end time.Time, format, outDir string,
) error {
	var writer Writer

	switch format {
	case "csv":
		writer = exportCSV.New(outDir)
	case "sqlite":
		writer = exportSQLite.New(outDir)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	filter := types.EventFilter{
		CommunityID: communityID,
		StartTime:   start,
		EndTime:     end,
	}

	var all []*types.ReputationEvent
	var cursor *types.EventCursor

	for {
		page, next, err := e.audit.GetHistory(ctx, filter, cursor, historyPageSize)
		if err != nil {
			return fmt.Errorf("failed to read audit history: %w", err)
		}

		all = append(all, page...)

		if next == nil {
			break
		}

		cursor = next
	}

	if err := writer.Export(communityID, all); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	e.logger.Info("Exported audit history",
		zap.Uint64("communityID", communityID),
		zap.String("format", format),
		zap.Int("events", len(all)))

	return nil
}
