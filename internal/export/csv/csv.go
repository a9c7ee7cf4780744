package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types"
)

// Exporter writes audit history to CSV files for compliance handoff.
type Exporter struct {
	outDir string
}

// New creates a new CSV exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes one community's audit records to audit_<community>.csv.
func (e *Exporter) Export(communityID uint64, events []*types.ReputationEvent) error {
	path := filepath.Join(e.outDir, fmt.Sprintf("audit_%d.csv", communityID))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"sequence", "community_id", "user_id", "global_identity_id", "event_type",
		"score_change", "score_before", "score_after", "reason", "clamped", "occurred_at",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.Sequence, 10),
			strconv.FormatUint(event.CommunityID, 10),
			strconv.FormatUint(event.UserID, 10),
			strconv.FormatUint(event.IdentityID, 10),
			event.EventType,
			strconv.Itoa(event.ScoreChange),
			strconv.Itoa(event.ScoreBefore),
			strconv.Itoa(event.ScoreAfter),
			event.Reason,
			strconv.FormatBool(event.Clamped),
			event.OccurredAt.UTC().Format(time.RFC3339),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return nil
}
