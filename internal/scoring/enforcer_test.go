package scoring_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDispatchDown = errors.New("moderation collaborator unavailable")

// flakyDispatcher fails the first failures attempts, then succeeds.
type flakyDispatcher struct {
	mu       sync.Mutex
	failures int
	attempts int
}

func (d *flakyDispatcher) Dispatch(_ context.Context, _ *scoring.Directive) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.attempts <= d.failures {
		return errDispatchDown
	}

	return nil
}

func (d *flakyDispatcher) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.attempts
}

func newEnforcerUnderTest(
	t *testing.T, dispatcher scoring.Dispatcher, policy *types.ReputationPolicy,
) (*scoring.Enforcer, *fakePolicySource) {
	t.Helper()

	source := newFakePolicySource()
	if policy != nil {
		source.set(policy)
	}

	policies := scoring.NewPolicyCache(source, time.Minute, zap.NewNop())

	return scoring.NewEnforcer(policies, dispatcher, &config.Policy{
		DispatchRetries:         3,
		DispatchDelay:           1,
		DispatchMaxDelay:        5,
		MaxConcurrentDispatches: 4,
	}, zap.NewNop()), source
}

func TestEnforcerEvaluate(t *testing.T) {
	t.Parallel()

	enabledPolicy := func(communityID uint64) *types.ReputationPolicy {
		return &types.ReputationPolicy{
			CommunityID:      communityID,
			AutoBanEnabled:   true,
			AutoBanThreshold: 450,
			AtRiskMargin:     30,
			StartingScore:    600,
		}
	}

	t.Run("crossing the threshold fires one directive", func(t *testing.T) {
		t.Parallel()

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, enabledPolicy(1))

		enforcer.Evaluate(t.Context(), 1, 9, 460, 445)
		enforcer.Wait()

		directives := dispatcher.delivered()
		require.Len(t, directives, 1)
		assert.Equal(t, 445, directives[0].NewScore)
		assert.Equal(t, 450, directives[0].Threshold)
		assert.Equal(t, scoring.DirectiveReasonAutoBan, directives[0].Reason)
	})

	t.Run("already below threshold never re-triggers", func(t *testing.T) {
		t.Parallel()

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, enabledPolicy(1))

		enforcer.Evaluate(t.Context(), 1, 9, 445, 430)
		enforcer.Wait()

		assert.Empty(t, dispatcher.delivered())
	})

	t.Run("rising across the threshold is not a crossing", func(t *testing.T) {
		t.Parallel()

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, enabledPolicy(1))

		enforcer.Evaluate(t.Context(), 1, 9, 440, 455)
		enforcer.Wait()

		assert.Empty(t, dispatcher.delivered())
	})

	t.Run("landing exactly on the threshold stays in good standing", func(t *testing.T) {
		t.Parallel()

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, enabledPolicy(1))

		enforcer.Evaluate(t.Context(), 1, 9, 460, 450)
		enforcer.Wait()

		assert.Empty(t, dispatcher.delivered())
	})

	t.Run("disabled policy emits nothing", func(t *testing.T) {
		t.Parallel()

		policy := enabledPolicy(1)
		policy.AutoBanEnabled = false

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, policy)

		enforcer.Evaluate(t.Context(), 1, 9, 460, 445)
		enforcer.Wait()

		assert.Empty(t, dispatcher.delivered())
	})

	t.Run("unconfigured community uses the default policy", func(t *testing.T) {
		t.Parallel()

		dispatcher := &captureDispatcher{}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, nil)

		// Enforcement is off by default
		enforcer.Evaluate(t.Context(), 7, 9, 460, 310)
		enforcer.Wait()

		assert.Empty(t, dispatcher.delivered())
	})
}

func TestEnforcerDelivery(t *testing.T) {
	t.Parallel()

	policy := &types.ReputationPolicy{
		CommunityID:      1,
		AutoBanEnabled:   true,
		AutoBanThreshold: 450,
		AtRiskMargin:     30,
		StartingScore:    600,
	}

	t.Run("transient failures are retried until delivery", func(t *testing.T) {
		t.Parallel()

		dispatcher := &flakyDispatcher{failures: 2}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, policy)

		enforcer.Evaluate(t.Context(), 1, 9, 460, 445)
		enforcer.Wait()

		assert.Equal(t, 3, dispatcher.attemptCount())
	})

	t.Run("exhausted retries give up without blocking", func(t *testing.T) {
		t.Parallel()

		// More failures than the retry budget allows
		dispatcher := &flakyDispatcher{failures: 100}
		enforcer, _ := newEnforcerUnderTest(t, dispatcher, policy)

		enforcer.Evaluate(t.Context(), 1, 9, 460, 445)
		enforcer.Wait()

		// Initial attempt plus three retries
		assert.Equal(t, 4, dispatcher.attemptCount())
	})
}
