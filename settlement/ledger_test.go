package settlement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finshare/settle-engine/settlement"
)

// =============================================================================
// ROSTER CREATION
// =============================================================================

func TestCreateParticipants_CreatorAcceptedInviteesPending(t *testing.T) {
	// GIVEN: A shared expense with one registered invitee
	// WHEN: The transaction is created
	// THEN: The creator is ACCEPTED, the invitee PENDING with a zero effective
	//       share, and the creator temporarily carries the full amount

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2)

	creator := shareOf(t, parts, "user-alice")
	assert.Equal(t, settlement.StatusAccepted, creator.Status)
	assert.True(t, creator.ShareAmount.Equal(money("100.00")),
		"creator carries the full amount while the invitee is pending: %s", creator.ShareAmount)

	invitee := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusPending, invitee.Status)
	assert.True(t, invitee.ShareAmount.IsZero())
	require.NotNil(t, invitee.BaseShareAmount)
	assert.True(t, invitee.BaseShareAmount.Equal(money("50.00")),
		"pending base survives zeroing: %s", invitee.BaseShareAmount)
}

func TestCreateParticipants_PlaceholderBornAccepted(t *testing.T) {
	// GIVEN: A shared expense with an unregistered placeholder
	// WHEN: The transaction is created
	// THEN: The placeholder is ACCEPTED immediately and holds a live share

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2)

	var placeholder settlement.Participant
	for _, p := range parts {
		if p.IsPlaceholder() {
			placeholder = p
		}
	}
	assert.Equal(t, "Mom", placeholder.PlaceholderName)
	assert.Equal(t, settlement.StatusAccepted, placeholder.Status)
	assert.True(t, placeholder.ShareAmount.Equal(money("50.00")))
	assert.True(t, sumShares(parts).Equal(money("100.00")))
}

func TestCreateParticipants_UnknownUsernameFallsBackToPlaceholder(t *testing.T) {
	// GIVEN: A share request naming a username absent from the directory
	// WHEN: The transaction is created
	// THEN: The row is stored as a placeholder under that name

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "60.00",
		settlement.ShareRequest{Username: "charlie"}))

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2)
	for _, p := range parts {
		if p.UserID == "user-alice" {
			continue
		}
		assert.True(t, p.IsPlaceholder())
		assert.Equal(t, "charlie", p.PlaceholderName)
		assert.Equal(t, settlement.StatusAccepted, p.Status)
	}
}

func TestCreateParticipants_KnownUsernameResolvesToUser(t *testing.T) {
	// GIVEN: A share request naming a username present in the directory
	// WHEN: The transaction is created
	// THEN: The row carries the resolved user id and a pending invitation

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "60.00",
		settlement.ShareRequest{Username: "bob"}))

	parts := env.roster(t, tx.ID)
	invitee := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusPending, invitee.Status)

	invites := env.notifier.ByEvent(settlement.EventShareInvitation)
	require.Len(t, invites, 1)
	assert.Equal(t, settlement.UserID("user-bob"), invites[0].UserID)
}

// =============================================================================
// INVITATION RESPONSES
// =============================================================================

func TestRespondToInvitation_Accept_ActivatesShare(t *testing.T) {
	// GIVEN: An invitee pending on a 100.00 equal split
	// WHEN: They accept
	// THEN: The amount re-normalizes across both active participants

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	err := env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted)
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	assert.True(t, shareOf(t, parts, "user-alice").ShareAmount.Equal(money("50.00")))
	assert.True(t, shareOf(t, parts, "user-bob").ShareAmount.Equal(money("50.00")))
	assert.True(t, sumShares(parts).Equal(money("100.00")))
}

func TestRespondToInvitation_Reject_SharesReturnToCreator(t *testing.T) {
	// GIVEN: An invitee pending on a shared expense
	// WHEN: They reject
	// THEN: Their share stays zero, the creator keeps the full amount, and the
	//       transaction reverts to private

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	err := env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusRejected)
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	rejected := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusRejected, rejected.Status)
	assert.True(t, rejected.ShareAmount.IsZero())
	assert.True(t, shareOf(t, parts, "user-alice").ShareAmount.Equal(money("100.00")))

	stored, err := env.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsShared, "no live participants left")

	reverted := env.notifier.ByEvent(settlement.EventShareReverted)
	require.Len(t, reverted, 1)
	assert.Equal(t, settlement.UserID("user-alice"), reverted[0].UserID)
}

func TestRespondToInvitation_InvalidStatus_Rejected(t *testing.T) {
	// GIVEN: A pending invitee
	// WHEN: They respond with EXITED instead of ACCEPTED/REJECTED
	// THEN: The response is rejected as invalid

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "50.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	err := env.engine.RespondToInvitation(context.Background(), tx.ID, "user-bob", settlement.StatusExited)
	assert.ErrorIs(t, err, settlement.ErrInvalidStatus)
}

func TestRespondToInvitation_NotAParticipant_NotFound(t *testing.T) {
	// GIVEN: A transaction the caller has no row on
	// WHEN: They try to respond
	// THEN: ErrParticipantNotFound

	env := newTestEngine(t)
	tx := env.mustCreate(t, sharedExpense("user-alice", "50.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	err := env.engine.RespondToInvitation(context.Background(), tx.ID, "user-stranger", settlement.StatusAccepted)
	assert.ErrorIs(t, err, settlement.ErrParticipantNotFound)
}

// =============================================================================
// LEAVING
// =============================================================================

func TestLeaveTransaction_RedistributesToRemainingActive(t *testing.T) {
	// GIVEN: Three parties with accepted equal shares of 90.00
	// WHEN: One participant leaves
	// THEN: The remaining two split the amount, which sums exactly

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "90.00",
		settlement.ShareRequest{UserID: "user-bob"},
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))
	require.NoError(t, env.engine.LeaveTransaction(ctx, tx.ID, "user-bob"))

	parts := env.roster(t, tx.ID)
	left := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusExited, left.Status)
	assert.True(t, left.ShareAmount.IsZero())
	require.NotNil(t, left.BaseShareAmount, "base survives leaving")

	assert.True(t, shareOf(t, parts, "user-alice").ShareAmount.Equal(money("45.00")))
	assert.True(t, sumShares(parts).Equal(money("90.00")))

	stored, err := env.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsShared, "a live placeholder still shares the transaction")
}

func TestLeaveTransaction_LastLiveParticipant_RevertsToPrivate(t *testing.T) {
	// GIVEN: One accepted participant besides the creator
	// WHEN: They leave
	// THEN: The transaction reverts to private

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "40.00",
		settlement.ShareRequest{UserID: "user-bob"}))

	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))
	require.NoError(t, env.engine.LeaveTransaction(ctx, tx.ID, "user-bob"))

	stored, err := env.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsShared)
}

// =============================================================================
// ROSTER RECONCILIATION
// =============================================================================

func TestUpdateParticipants_ChangedShare_ForcesRePending(t *testing.T) {
	// GIVEN: An accepted participant with a 50.00 share of 100.00
	// WHEN: The creator moves their share to 30.00
	// THEN: The participant returns to PENDING and is asked to re-review

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob"}))
	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))
	env.notifier.Reset()

	_, err := env.engine.UpdateTransaction(ctx, "user-alice", settlement.UpdateTransactionRequest{
		TransactionID: tx.ID,
		Participants: []settlement.ShareRequest{
			{UserID: "user-bob", Amount: moneyPtr("30.00")},
		},
	})
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	bob := shareOf(t, parts, "user-bob")
	assert.Equal(t, settlement.StatusPending, bob.Status)
	assert.True(t, bob.BaseShareAmount.Equal(money("30.00")))
	assert.True(t, bob.ShareAmount.IsZero(), "pending effective share is zeroed")

	reviews := env.notifier.ByEvent(settlement.EventShareReview)
	require.Len(t, reviews, 1)
	assert.Equal(t, settlement.UserID("user-bob"), reviews[0].UserID)
}

func TestUpdateParticipants_UnchangedShare_KeepsAcceptedStatus(t *testing.T) {
	// GIVEN: An accepted participant
	// WHEN: The roster is re-submitted with the same share
	// THEN: The participant stays ACCEPTED and nobody is re-notified

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob", Amount: moneyPtr("50.00")}))
	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))
	env.notifier.Reset()

	_, err := env.engine.UpdateTransaction(ctx, "user-alice", settlement.UpdateTransactionRequest{
		TransactionID: tx.ID,
		Participants: []settlement.ShareRequest{
			{UserID: "user-bob", Amount: moneyPtr("50.00")},
		},
	})
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	assert.Equal(t, settlement.StatusAccepted, shareOf(t, parts, "user-bob").Status)
	assert.Empty(t, env.notifier.ByEvent(settlement.EventShareReview))
}

func TestUpdateParticipants_RemovedFromRoster_DeletedAndNotified(t *testing.T) {
	// GIVEN: A roster with two invitees
	// WHEN: The creator re-submits the roster without one of them
	// THEN: That row is deleted and its user notified of removal

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "90.00",
		settlement.ShareRequest{UserID: "user-bob"},
		settlement.ShareRequest{PlaceholderName: "Mom"}))
	env.notifier.Reset()

	_, err := env.engine.UpdateTransaction(ctx, "user-alice", settlement.UpdateTransactionRequest{
		TransactionID: tx.ID,
		Participants: []settlement.ShareRequest{
			{UserID: "user-bob"},
		},
	})
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.False(t, p.IsPlaceholder(), "placeholder should be gone")
	}
}

func TestUpdateParticipants_EmptyRoster_RemovesEveryoneAndGoesPrivate(t *testing.T) {
	// GIVEN: A shared transaction with invitees
	// WHEN: The creator submits an empty participant list
	// THEN: Only the creator row remains and the transaction is private

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "90.00",
		settlement.ShareRequest{UserID: "user-bob"},
		settlement.ShareRequest{PlaceholderName: "Mom"}))

	_, err := env.engine.UpdateTransaction(ctx, "user-alice", settlement.UpdateTransactionRequest{
		TransactionID: tx.ID,
		Participants:  []settlement.ShareRequest{},
	})
	require.NoError(t, err)

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 1)
	assert.Equal(t, settlement.UserID("user-alice"), parts[0].UserID)
	assert.True(t, parts[0].ShareAmount.Equal(money("90.00")))

	stored, err := env.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsShared)
}

func TestUpdateParticipants_NewSharesExceedTotal_WholeUpdateRollsBack(t *testing.T) {
	// GIVEN: A 100.00 transaction with one accepted 40.00 share
	// WHEN: The creator submits shares summing past the total
	// THEN: The update fails and the stored roster is untouched

	env := newTestEngine(t)
	ctx := context.Background()
	tx := env.mustCreate(t, sharedExpense("user-alice", "100.00",
		settlement.ShareRequest{UserID: "user-bob", Amount: moneyPtr("40.00")}))
	require.NoError(t, env.engine.RespondToInvitation(ctx, tx.ID, "user-bob", settlement.StatusAccepted))

	_, err := env.engine.UpdateTransaction(ctx, "user-alice", settlement.UpdateTransactionRequest{
		TransactionID: tx.ID,
		Participants: []settlement.ShareRequest{
			{UserID: "user-bob", Amount: moneyPtr("70.00")},
			{PlaceholderName: "Mom", Amount: moneyPtr("60.00")},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, settlement.ErrSharesExceedTotal)

	parts := env.roster(t, tx.ID)
	require.Len(t, parts, 2, "no placeholder row leaked from the failed update")
	assert.True(t, shareOf(t, parts, "user-bob").BaseShareAmount.Equal(money("40.00")))
}
