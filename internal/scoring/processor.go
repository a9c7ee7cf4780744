package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hubwatch/reputeer/internal/database/models"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/database/types/enum"
	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Store applies score mutations atomically.
type Store interface {
	// ApplyEvent commits one mutation: score row, optional global row and
	// audit record in a single transaction. Returns
	// models.ErrDuplicateEvent when the dedup key was already applied.
	ApplyEvent(ctx context.Context, mutation *types.ScoreMutation) (*types.ReputationEvent, error)
}

// subjectKey identifies one (community, user) partition of a batch.
type subjectKey struct {
	communityID uint64
	userID      uint64
}

// indexedEvent keeps an event paired with its position in the batch so the
// result list preserves submission order.
type indexedEvent struct {
	index int
	event *Event
}

// BatchProcessor orchestrates a batch of incoming events: it resolves
// weights, computes new scores, persists them and reports a per-event
// result. Events for the same subject apply strictly in arrival order;
// distinct subjects process concurrently up to a bounded worker pool.
type BatchProcessor struct {
	store    Store
	policies *PolicyCache
	resolver *WeightResolver
	enforcer *Enforcer
	logger   *zap.Logger

	maxBatchSize int
	workers      int
	opTimeout    time.Duration
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(
	store Store, policies *PolicyCache, resolver *WeightResolver,
	enforcer *Enforcer, cfg *config.Scoring, logger *zap.Logger,
) *BatchProcessor {
	return &BatchProcessor{
		store:        store,
		policies:     policies,
		resolver:     resolver,
		enforcer:     enforcer,
		logger:       logger.Named("batch_processor"),
		maxBatchSize: cfg.MaxBatchSize,
		workers:      cfg.Workers,
		opTimeout:    time.Duration(cfg.OperationTimeout) * time.Millisecond,
	}
}

// Process scores a batch of up to the configured maximum event count.
// Callers always receive exactly one result per submitted event, in
// submission order; failures are isolated to the offending event. The
// only top-level failure is a structurally invalid request.
func (p *BatchProcessor) Process(ctx context.Context, events []*Event) ([]*EventResult, error) {
	if len(events) > p.maxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(events), p.maxBatchSize)
	}

	batchID := uuid.New()
	results := make([]*EventResult, len(events))

	// Validate up front and partition accepted events by subject,
	// preserving arrival order within each partition.
	partitions := make(map[subjectKey][]indexedEvent)
	order := make([]subjectKey, 0, len(events))

	for i, event := range events {
		if err := event.Validate(); err != nil {
			results[i] = rejectedResult(err.Error())
			continue
		}

		key := subjectKey{communityID: event.CommunityID, userID: event.UserID}
		if _, seen := partitions[key]; !seen {
			order = append(order, key)
		}

		partitions[key] = append(partitions[key], indexedEvent{index: i, event: event})
	}

	// One pool task per subject keeps same-subject events sequential
	// while distinct subjects run in parallel.
	workerPool := pool.New().WithContext(ctx).WithMaxGoroutines(p.workers)

	for _, key := range order {
		partition := partitions[key]

		workerPool.Go(func(ctx context.Context) error {
			for _, item := range partition {
				if ctx.Err() != nil {
					results[item.index] = rejectedResult("batch deadline exceeded before processing")
					continue
				}

				results[item.index] = p.applyOne(ctx, item.event)
			}

			return nil
		})
	}

	// Pool tasks never return errors; batch failures are per-event.
	_ = workerPool.Wait()

	applied, rejected, errored := tally(results)
	p.logger.Info("Processed batch",
		zap.String("batchID", batchID.String()),
		zap.Int("events", len(events)),
		zap.Int("applied", applied),
		zap.Int("rejected", rejected),
		zap.Int("errors", errored))

	return results, nil
}

// applyOne scores a single validated event. Each mutation is one atomic
// unit; a persistence failure is reported for this event only.
func (p *BatchProcessor) applyOne(ctx context.Context, event *Event) *EventResult {
	policy, err := p.policies.Get(ctx, event.CommunityID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load policy: %v", err))
	}

	weight := p.resolver.Resolve(ctx, event.CommunityID, event.EventType, policy.CustomWeights)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	mutation := &types.ScoreMutation{
		CommunityID:   event.CommunityID,
		UserID:        event.UserID,
		IdentityID:    event.IdentityID,
		EventType:     event.EventType,
		Reason:        event.Reason,
		Metadata:      event.Metadata,
		DedupKey:      event.DedupKey,
		OccurredAt:    occurredAt,
		StartingScore: policy.StartingScore,
		Compute: func(current int) (int, bool) {
			result := Compute(current, weight)
			return result.NewScore, result.Clamped
		},
	}

	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	audit, err := p.store.ApplyEvent(opCtx, mutation)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEvent) {
			return rejectedResult("duplicate dedup key, event already applied")
		}

		return errorResult(err.Error())
	}

	// Policy evaluation is synchronous; directive delivery is not.
	p.enforcer.Evaluate(ctx, event.CommunityID, event.UserID, audit.ScoreBefore, audit.ScoreAfter)

	return &EventResult{
		Status:      enum.EventStatusApplied,
		ScoreBefore: audit.ScoreBefore,
		ScoreAfter:  audit.ScoreAfter,
		Tier:        TierFor(audit.ScoreAfter),
	}
}

func tally(results []*EventResult) (applied, rejected, errored int) {
	for _, result := range results {
		switch result.Status {
		case enum.EventStatusApplied:
			applied++
		case enum.EventStatusRejected:
			rejected++
		case enum.EventStatusError:
			errored++
		}
	}

	return applied, rejected, errored
}
