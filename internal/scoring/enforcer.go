package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DirectiveReasonAutoBan marks directives emitted by threshold crossings.
const DirectiveReasonAutoBan = "auto-ban"

// Directive instructs the external moderation collaborator to suspend a member.
type Directive struct {
	CommunityID uint64 `json:"community_id"`
	UserID      uint64 `json:"user_id"`
	NewScore    int    `json:"new_score"`
	Threshold   int    `json:"threshold"`
	Reason      string `json:"reason"`
}

// Dispatcher delivers a directive to the moderation collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, directive *Directive) error
}

// Enforcer inspects post-update scores against community policy and emits
// suspend directives. Edge-triggered: a directive fires only on the
// transition from at-or-above threshold to below it, so a member already
// below threshold never re-triggers one.
type Enforcer struct {
	policies   *PolicyCache
	dispatcher Dispatcher
	sem        *semaphore.Weighted
	wg         conc.WaitGroup
	logger     *zap.Logger

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	dispatchTimeout time.Duration
}

// NewEnforcer creates a policy enforcer.
func NewEnforcer(
	policies *PolicyCache, dispatcher Dispatcher, cfg *config.Policy, logger *zap.Logger,
) *Enforcer {
	return &Enforcer{
		policies:        policies,
		dispatcher:      dispatcher,
		sem:             semaphore.NewWeighted(cfg.MaxConcurrentDispatches),
		logger:          logger.Named("policy_enforcer"),
		maxRetries:      cfg.DispatchRetries,
		initialInterval: time.Duration(cfg.DispatchDelay) * time.Millisecond,
		maxInterval:     time.Duration(cfg.DispatchMaxDelay) * time.Millisecond,
		dispatchTimeout: 30 * time.Second,
	}
}

// Evaluate checks one committed score mutation against the community's
// policy. Directive delivery runs out-of-band so a slow moderation
// collaborator never delays score persistence; the committed score is
// never rolled back regardless of dispatch outcome.
func (e *Enforcer) Evaluate(ctx context.Context, communityID, userID uint64, previousScore, newScore int) {
	policy, err := e.policies.Get(ctx, communityID)
	if err != nil {
		e.logger.Error("Failed to load policy for enforcement",
			zap.Uint64("communityID", communityID),
			zap.Uint64("userID", userID),
			zap.Error(err))

		return
	}

	if !policy.AutoBanEnabled {
		return
	}

	if previousScore < policy.AutoBanThreshold || newScore >= policy.AutoBanThreshold {
		return
	}

	directive := &Directive{
		CommunityID: communityID,
		UserID:      userID,
		NewScore:    newScore,
		Threshold:   policy.AutoBanThreshold,
		Reason:      DirectiveReasonAutoBan,
	}

	e.wg.Go(func() {
		e.deliver(directive)
	})
}

// deliver attempts directive delivery with bounded backoff. Exhausted
// directives are logged as undelivered for manual follow-up.
func (e *Enforcer) deliver(directive *Directive) {
	ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
	defer cancel()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.logUndelivered(directive, fmt.Errorf("failed to acquire dispatch slot: %w", err))
		return
	}
	defer e.sem.Release(1)

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.initialInterval),
		backoff.WithMaxInterval(e.maxInterval),
	), e.maxRetries)

	err := backoff.Retry(func() error {
		return e.dispatcher.Dispatch(ctx, directive)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		e.logUndelivered(directive, err)
		return
	}

	e.logger.Info("Delivered suspend directive",
		zap.Uint64("communityID", directive.CommunityID),
		zap.Uint64("userID", directive.UserID),
		zap.Int("newScore", directive.NewScore),
		zap.Int("threshold", directive.Threshold))
}

func (e *Enforcer) logUndelivered(directive *Directive, err error) {
	e.logger.Error("Directive undelivered, needs manual follow-up",
		zap.Uint64("communityID", directive.CommunityID),
		zap.Uint64("userID", directive.UserID),
		zap.Int("newScore", directive.NewScore),
		zap.Int("threshold", directive.Threshold),
		zap.Error(err))
}

// Wait blocks until all in-flight directive deliveries finish.
// Used during shutdown and in tests.
func (e *Enforcer) Wait() {
	e.wg.Wait()
}
