package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hubwatch/reputeer/internal/database/models"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/database/types/enum"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errInjected = errors.New("injected store failure")

type subject struct {
	communityID uint64
	userID      uint64
}

// fakeStore applies mutations against in-memory rows with the same
// semantics as the real store: starting score on first sight, per-row
// clamping, counters and dedup keys.
type fakeStore struct {
	mu      sync.Mutex
	members map[subject]*types.MemberReputation
	globals map[uint64]*types.GlobalReputation
	events  []*types.ReputationEvent
	dedup   map[string]bool
	failFor map[subject]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members: make(map[subject]*types.MemberReputation),
		globals: make(map[uint64]*types.GlobalReputation),
		dedup:   make(map[string]bool),
		failFor: make(map[subject]error),
	}
}

func (f *fakeStore) ApplyEvent(
	_ context.Context, mutation *types.ScoreMutation,
) (*types.ReputationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := subject{communityID: mutation.CommunityID, userID: mutation.UserID}

	if err, ok := f.failFor[key]; ok {
		return nil, err
	}

	if mutation.DedupKey != "" {
		dedupKey := fmt.Sprintf("%d:%s", mutation.CommunityID, mutation.DedupKey)
		if f.dedup[dedupKey] {
			return nil, models.ErrDuplicateEvent
		}

		f.dedup[dedupKey] = true
	}

	member, ok := f.members[key]
	if !ok {
		member = &types.MemberReputation{
			CommunityID: mutation.CommunityID,
			UserID:      mutation.UserID,
			Score:       mutation.StartingScore,
		}
		f.members[key] = member
	}

	before := member.Score
	after, clamped := mutation.Compute(before)

	member.Score = after
	member.TotalEvents++
	member.LastEventAt = mutation.OccurredAt

	if mutation.IdentityID != 0 {
		global, ok := f.globals[mutation.IdentityID]
		if !ok {
			global = &types.GlobalReputation{
				IdentityID: mutation.IdentityID,
				Score:      mutation.StartingScore,
			}
			f.globals[mutation.IdentityID] = global
		}

		global.Score, _ = mutation.Compute(global.Score)
		global.TotalEvents++
		global.LastEventAt = mutation.OccurredAt
	}

	event := &types.ReputationEvent{
		Sequence:    int64(len(f.events) + 1),
		CommunityID: mutation.CommunityID,
		UserID:      mutation.UserID,
		IdentityID:  mutation.IdentityID,
		EventType:   mutation.EventType,
		ScoreChange: after - before,
		ScoreBefore: before,
		ScoreAfter:  after,
		Reason:      mutation.Reason,
		Metadata:    mutation.Metadata,
		Clamped:     clamped,
		DedupKey:    mutation.DedupKey,
		OccurredAt:  mutation.OccurredAt,
	}
	f.events = append(f.events, event)

	return event, nil
}

func (f *fakeStore) memberScore(communityID, userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	member, ok := f.members[subject{communityID: communityID, userID: userID}]
	if !ok {
		return 0
	}

	return member.Score
}

func (f *fakeStore) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.events)
}

// fakePolicySource serves policies from memory, defaulting like the real model.
type fakePolicySource struct {
	mu       sync.Mutex
	policies map[uint64]*types.ReputationPolicy
}

func newFakePolicySource() *fakePolicySource {
	return &fakePolicySource{policies: make(map[uint64]*types.ReputationPolicy)}
}

func (f *fakePolicySource) Get(_ context.Context, communityID uint64) (*types.ReputationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if policy, ok := f.policies[communityID]; ok {
		return policy, nil
	}

	return types.DefaultPolicy(communityID), nil
}

func (f *fakePolicySource) set(policy *types.ReputationPolicy) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.policies[policy.CommunityID] = policy
}

// captureDispatcher records every delivered directive.
type captureDispatcher struct {
	mu         sync.Mutex
	directives []*scoring.Directive
}

func (d *captureDispatcher) Dispatch(_ context.Context, directive *scoring.Directive) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.directives = append(d.directives, directive)

	return nil
}

func (d *captureDispatcher) delivered() []*scoring.Directive {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*scoring.Directive(nil), d.directives...)
}

// testHarness bundles a processor over fakes with the default weight table.
type testHarness struct {
	processor  *scoring.BatchProcessor
	enforcer   *scoring.Enforcer
	store      *fakeStore
	policies   *fakePolicySource
	weights    *fakeWeightSource
	dispatcher *captureDispatcher
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store := newFakeStore()
	policySource := newFakePolicySource()
	weightSource := newFakeWeightSource()
	weightSource.set(models.GlobalWeightConfigID, map[string]types.EventWeight{
		"subscription": {Weight: 5, Multiplier: 1},
		"donation":     {Weight: 10, Multiplier: 1},
		"spam_timeout": {Weight: -15, Multiplier: 1},
		"chat_warning": {Weight: -10, Multiplier: 1},
	})

	logger := zap.NewNop()
	resolver := scoring.NewWeightResolver(weightSource, time.Minute, logger)
	policies := scoring.NewPolicyCache(policySource, time.Minute, logger)
	dispatcher := &captureDispatcher{}

	enforcer := scoring.NewEnforcer(policies, dispatcher, &config.Policy{
		DispatchRetries:         3,
		DispatchDelay:           1,
		DispatchMaxDelay:        5,
		MaxConcurrentDispatches: 4,
	}, logger)

	processor := scoring.NewBatchProcessor(store, policies, resolver, enforcer, &config.Scoring{
		MaxBatchSize:     1000,
		Workers:          8,
		OperationTimeout: 5000,
		CacheTTL:         300,
	}, logger)

	return &testHarness{
		processor:  processor,
		enforcer:   enforcer,
		store:      store,
		policies:   policySource,
		weights:    weightSource,
		dispatcher: dispatcher,
	}
}

func TestProcessValidation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	ctx := t.Context()

	events := []*scoring.Event{
		{CommunityID: 0, UserID: 2, EventType: "subscription"},
		{CommunityID: 1, UserID: 0, EventType: "subscription"},
		{CommunityID: 1, UserID: 2, EventType: ""},
		{CommunityID: 1, UserID: 2, EventType: "subscription", Metadata: map[string]string{"": "x"}},
		{CommunityID: 1, UserID: 2, EventType: "subscription"},
	}

	results, err := h.processor.Process(ctx, events)
	require.NoError(t, err)
	require.Len(t, results, len(events))

	for i := range 4 {
		assert.Equal(t, enum.EventStatusRejected, results[i].Status, "event %d", i)
	}

	assert.Equal(t, enum.EventStatusApplied, results[4].Status)
	// Rejected events must leave no trace in the store
	assert.Equal(t, 1, h.store.eventCount())
}

func TestProcessAppliesScores(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	ctx := t.Context()

	results, err := h.processor.Process(ctx, []*scoring.Event{
		{CommunityID: 1, UserID: 7, EventType: "subscription"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, enum.EventStatusApplied, result.Status)
	assert.Equal(t, 600, result.ScoreBefore)
	assert.Equal(t, 605, result.ScoreAfter)
	assert.Equal(t, scoring.TierFor(600), result.Tier)
	assert.Equal(t, 605, h.store.memberScore(1, 7))
}

func TestProcessBatchCap(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	events := make([]*scoring.Event, 1001)
	for i := range events {
		events[i] = &scoring.Event{CommunityID: 1, UserID: uint64(i + 1), EventType: "subscription"}
	}

	_, err := h.processor.Process(t.Context(), events)
	require.ErrorIs(t, err, scoring.ErrBatchTooLarge)
}

func TestProcessErrorIsolation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.store.failFor[subject{communityID: 1, userID: 2}] = errInjected

	results, err := h.processor.Process(t.Context(), []*scoring.Event{
		{CommunityID: 1, UserID: 1, EventType: "subscription"},
		{CommunityID: 1, UserID: 2, EventType: "subscription"},
		{CommunityID: 1, UserID: 3, EventType: "subscription"},
	})
	require.NoError(t, err)

	assert.Equal(t, enum.EventStatusApplied, results[0].Status)
	assert.Equal(t, enum.EventStatusError, results[1].Status)
	assert.Equal(t, enum.EventStatusApplied, results[2].Status)
}

func TestProcessDedupKey(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	results, err := h.processor.Process(t.Context(), []*scoring.Event{
		{CommunityID: 1, UserID: 1, EventType: "subscription", DedupKey: "delivery-1"},
		{CommunityID: 1, UserID: 1, EventType: "subscription", DedupKey: "delivery-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, enum.EventStatusApplied, results[0].Status)
	assert.Equal(t, enum.EventStatusRejected, results[1].Status)
	assert.Equal(t, 605, h.store.memberScore(1, 1))
}

func TestProcessGlobalIdentity(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	_, err := h.processor.Process(t.Context(), []*scoring.Event{
		{CommunityID: 1, UserID: 1, IdentityID: 99, EventType: "donation"},
		{CommunityID: 2, UserID: 8, IdentityID: 99, EventType: "donation"},
	})
	require.NoError(t, err)

	h.store.mu.Lock()
	global := h.store.globals[99]
	h.store.mu.Unlock()

	require.NotNil(t, global)
	assert.Equal(t, 620, global.Score)
	assert.Equal(t, int64(2), global.TotalEvents)
}

func TestProcessSequentialEquivalence(t *testing.T) {
	t.Parallel()

	// A large batch across many subjects must match a one-by-one replay
	// of each subject's events: no lost updates under concurrency.
	const (
		subjects        = 50
		eventsPerUser   = 20
		totalBatchSize  = subjects * eventsPerUser
		communityOffset = uint64(1)
	)

	eventTypes := []string{"subscription", "donation", "spam_timeout", "chat_warning"}

	events := make([]*scoring.Event, 0, totalBatchSize)
	for i := range totalBatchSize {
		events = append(events, &scoring.Event{
			CommunityID: communityOffset,
			UserID:      uint64(i%subjects + 1),
			EventType:   eventTypes[i%len(eventTypes)],
		})
	}

	h := newTestHarness(t)

	results, err := h.processor.Process(t.Context(), events)
	require.NoError(t, err)
	require.Len(t, results, totalBatchSize)

	applied, rejected, errored := 0, 0, 0
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
	assert.Equal(t, totalBatchSize, applied+rejected+errored)
	assert.Equal(t, totalBatchSize, applied)

	// Replay each subject's events sequentially through a fresh harness
	replay := newTestHarness(t)

	for i := range totalBatchSize {
		event := events[i]
		_, err := replay.processor.Process(t.Context(), []*scoring.Event{{
			CommunityID: event.CommunityID,
			UserID:      event.UserID,
			EventType:   event.EventType,
		}})
		require.NoError(t, err)
	}

	for user := uint64(1); user <= subjects; user++ {
		assert.Equal(t,
			replay.store.memberScore(communityOffset, user),
			h.store.memberScore(communityOffset, user),
			"subject %d diverged from sequential replay", user)
	}
}

func TestProcessAutoBanCrossing(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.policies.set(&types.ReputationPolicy{
		CommunityID:      1,
		AutoBanEnabled:   true,
		AutoBanThreshold: 450,
		AtRiskMargin:     30,
		StartingScore:    460,
	})

	// 460 -> 445 crosses the threshold, 445 -> 430 stays below it
	results, err := h.processor.Process(t.Context(), []*scoring.Event{
		{CommunityID: 1, UserID: 5, EventType: "spam_timeout"},
		{CommunityID: 1, UserID: 5, EventType: "spam_timeout"},
	})
	require.NoError(t, err)

	assert.Equal(t, 445, results[0].ScoreAfter)
	assert.Equal(t, 430, results[1].ScoreAfter)

	h.enforcer.Wait()

	directives := h.dispatcher.delivered()
	require.Len(t, directives, 1)
	assert.Equal(t, uint64(1), directives[0].CommunityID)
	assert.Equal(t, uint64(5), directives[0].UserID)
	assert.Equal(t, 445, directives[0].NewScore)
	assert.Equal(t, 450, directives[0].Threshold)
	assert.Equal(t, scoring.DirectiveReasonAutoBan, directives[0].Reason)
}

func TestProcessClampRecordedInAudit(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.policies.set(&types.ReputationPolicy{
		CommunityID:      1,
		AutoBanThreshold: 300,
		StartingScore:    305,
	})

	results, err := h.processor.Process(t.Context(), []*scoring.Event{
		{CommunityID: 1, UserID: 1, EventType: "chat_warning"},
	})
	require.NoError(t, err)

	assert.Equal(t, 300, results[0].ScoreAfter)

	h.store.mu.Lock()
	event := h.store.events[0]
	h.store.mu.Unlock()

	assert.True(t, event.Clamped)
	assert.Equal(t, 305, event.ScoreBefore)
	assert.Equal(t, 300, event.ScoreAfter)
}

func TestProcessBatchDeadline(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	results, err := h.processor.Process(ctx, []*scoring.Event{
		{CommunityID: 1, UserID: 1, EventType: "subscription"},
		{CommunityID: 1, UserID: 2, EventType: "subscription"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Events never started are returned as rejected, not dropped
	for _, result := range results {
		assert.Equal(t, enum.EventStatusRejected, result.Status)
	}
}
