package settlement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finshare/settle-engine/settlement"
)

// =============================================================================
// MERGE REQUEST LIFECYCLE
// =============================================================================

func TestRequestMerge_PendingAndTargetNotified(t *testing.T) {
	// GIVEN: A creator with a placeholder named "Mom"
	// WHEN: They ask bob to claim the name
	// THEN: A pending merge request exists and bob is notified

	env := newTestEngine(t)
	ctx := context.Background()

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)
	assert.Equal(t, settlement.MergePending, m.Status)
	assert.Nil(t, m.ResolvedAt)

	requested := env.notifier.ByEvent(settlement.EventMergeRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, settlement.UserID("user-bob"), requested[0].UserID)
}

func TestRespondToMerge_Reject_PlaceholdersUntouched(t *testing.T) {
	// GIVEN: A pending merge request over an existing placeholder roster
	// WHEN: The target rejects it
	// THEN: The placeholder rows stay placeholders and the requester learns
	//       the outcome

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "80.00",
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)
	env.notifier.Reset()

	require.NoError(t, env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeRejected))

	for _, p := range env.roster(t, tx.ID) {
		if p.UserID == "user-alice" {
			continue
		}
		assert.True(t, p.IsPlaceholder())
	}

	resolved := env.notifier.ByEvent(settlement.EventMergeResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, settlement.UserID("user-alice"), resolved[0].UserID)
}

func TestRespondToMerge_Accept_RepointsPlaceholder(t *testing.T) {
	// GIVEN: A placeholder "Mom" holding half of an 80.00 expense
	// WHEN: bob accepts the merge
	// THEN: The row becomes bob's, ACCEPTED, and shares still sum exactly

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "80.00",
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)
	require.NoError(t, env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeAccepted))

	parts := env.roster(t, tx.ID)
	bob := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusAccepted, bob.Status)
	assert.Empty(t, bob.PlaceholderName)
	assert.True(t, bob.ShareAmount.Equal(money("40.00")))
	assert.True(t, sumShares(parts).Equal(money("80.00")))

	stored, err := env.store.GetMergeRequest(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.MergeAccepted, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)
}

func TestRespondToMerge_Accept_FoldsIntoExistingRow(t *testing.T) {
	// GIVEN: bob already participates in a transaction that also carries a
	//        "Mom" placeholder
	// WHEN: bob accepts the merge for "Mom"
	// THEN: The placeholder's stake folds into bob's row and the roster shrinks

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "90.00",
		settlement.ShareRequest{UserID: "user-bob"},
		settlement.ShareRequest{PlaceholderName: "Mom"}))
	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)
	require.NoError(t, env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeAccepted))

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2, "placeholder row folded away")

	bob := shareOf(t, parts, "user-bob")
	require.NotNil(t, bob.BaseShareAmount)
	assert.True(t, bob.BaseShareAmount.Equal(money("60.00")),
		"bob's base holds both stakes: %s", bob.BaseShareAmount)
	assert.True(t, bob.ShareAmount.Equal(money("60.00")))
	assert.True(t, sumShares(parts).Equal(money("90.00")))
}

func TestRespondToMerge_SpansMultipleTransactions(t *testing.T) {
	// GIVEN: Two transactions by the same creator sharing the placeholder name
	// WHEN: The merge is accepted
	// THEN: Both rosters are rewritten

	env := newTestEngine(t)
	ctx := context.Background()
	tx1 := env.mustCreate(t, sharedExpense("user-alice", "50.00",
		settlement.ShareRequest{PlaceholderName: "Mom"}))
	tx2 := env.mustCreate(t, sharedExpense("user-alice", "70.00",
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)
	require.NoError(t, env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeAccepted))

	for _, id := range []settlement.TransactionID{tx1.ID, tx2.ID} {
		bob := shareOf(t, env.roster(t, id), "user-bob")
		assert.Equal(t, settlement.StatusAccepted, bob.Status)
	}
}

// =============================================================================
// ACCESS CONTROL
// =============================================================================

func TestRespondToMerge_WrongTargetOrMissing_NotFound(t *testing.T) {
	// GIVEN: A merge request addressed to bob
	// WHEN: Someone else answers, or the id does not exist, or it is answered
	//       twice
	// THEN: Each caller gets the same not-found answer

	env := newTestEngine(t)
	ctx := context.Background()

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)

	err = env.engine.RespondToMerge(ctx, m.ID, "user-stranger", settlement.MergeAccepted)
	assert.ErrorIs(t, err, settlement.ErrMergeRequestNotFound)

	err = env.engine.RespondToMerge(ctx, "mr-missing", "user-bob", settlement.MergeAccepted)
	assert.ErrorIs(t, err, settlement.ErrMergeRequestNotFound)

	require.NoError(t, env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeRejected))
	err = env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergeAccepted)
	assert.ErrorIs(t, err, settlement.ErrMergeRequestNotFound, "already resolved")
}

func TestRespondToMerge_InvalidStatus_Rejected(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	m, err := env.engine.RequestMerge(ctx, "user-alice", "Mom", "user-bob")
	require.NoError(t, err)

	err = env.engine.RespondToMerge(ctx, m.ID, "user-bob", settlement.MergePending)
	assert.ErrorIs(t, err, settlement.ErrInvalidStatus)
}
