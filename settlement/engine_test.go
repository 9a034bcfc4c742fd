package settlement_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finshare/settle-engine/notify"
	"github.com/finshare/settle-engine/settlement"
	"github.com/finshare/settle-engine/settlement/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// mapDirectory is a fixed username -> user id lookup.
type mapDirectory map[string]settlement.UserID

func (d mapDirectory) LookupByUsername(_ context.Context, username string) (settlement.UserID, bool, error) {
	id, ok := d[username]
	return id, ok, nil
}

type testEnv struct {
	engine   *settlement.Engine
	store    *store.TxMemory
	notifier *notify.Recorder
	users    mapDirectory
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    store.NewTxMemory(),
		notifier: notify.NewRecorder(),
		users: mapDirectory{
			"alice": "user-alice",
			"bob":   "user-bob",
		},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.engine = settlement.NewEngine(env.store, env.users, env.notifier,
		settlement.WithLogger(quiet))
	return env
}

func (env *testEnv) mustCreate(t *testing.T, req settlement.CreateTransactionRequest) *settlement.Transaction {
	t.Helper()
	tx, err := env.engine.CreateTransaction(context.Background(), req)
	require.NoError(t, err)
	return tx
}

func (env *testEnv) roster(t *testing.T, id settlement.TransactionID) []settlement.Participant {
	t.Helper()
	parts, err := env.store.ListParticipants(context.Background(), id)
	require.NoError(t, err)
	return parts
}

// shareOf returns the participant row belonging to user, failing when absent.
func shareOf(t *testing.T, parts []settlement.Participant, user settlement.UserID) settlement.Participant {
	t.Helper()
	for _, p := range parts {
		if p.UserID == user {
			return p
		}
	}
	t.Fatalf("no participant row for %s", user)
	return settlement.Participant{}
}

// sumShares adds every effective share in the roster.
func sumShares(parts []settlement.Participant) settlement.Money {
	total := settlement.MoneyFromCents(0)
	for _, p := range parts {
		total = total.Add(p.ShareAmount)
	}
	return total
}

func sharedExpense(creator settlement.UserID, amount string, participants ...settlement.ShareRequest) settlement.CreateTransactionRequest {
	return settlement.CreateTransactionRequest{
		Amount:       money(amount),
		Type:         settlement.TypeExpense,
		Date:         time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		Description:  "dinner",
		CreatorID:    creator,
		Participants: participants,
	}
}
