package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finshare/settle-engine/settlement"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// OCCURRENCE EXPANSION
// =============================================================================

func TestOccurrences_NonFixed_SingleDate(t *testing.T) {
	// GIVEN: A one-off transaction dated March 10
	// WHEN: Occurrences are expanded to year end
	// THEN: Exactly its own date comes back; nothing when out of range

	tx := &settlement.Transaction{Date: day(2026, time.March, 10)}

	occ := settlement.Occurrences(tx, day(2026, time.December, 31))
	require.Len(t, occ, 1)
	assert.Equal(t, tx.Date, occ[0])

	assert.Empty(t, settlement.Occurrences(tx, day(2026, time.February, 1)))
}

func TestOccurrences_Fixed_MonthlyUntilHorizon(t *testing.T) {
	// GIVEN: A fixed transaction starting January 15
	// WHEN: Expanded until April 20
	// THEN: Jan, Feb, Mar, and Apr 15 come back

	tx := &settlement.Transaction{
		Date:    day(2026, time.January, 15),
		IsFixed: true,
	}

	occ := settlement.Occurrences(tx, day(2026, time.April, 20))
	require.Len(t, occ, 4)
	assert.Equal(t, day(2026, time.April, 15), occ[3])
}

func TestOccurrences_Fixed_RecurrenceEndCapsExpansion(t *testing.T) {
	// GIVEN: A fixed transaction ending February 28
	// WHEN: Expanded far past the end
	// THEN: Only January and February occurrences exist

	end := day(2026, time.February, 28)
	tx := &settlement.Transaction{
		Date:             day(2026, time.January, 15),
		IsFixed:          true,
		RecurrenceEndsAt: &end,
	}

	occ := settlement.Occurrences(tx, day(2026, time.December, 31))
	require.Len(t, occ, 2)
}

func TestOccurrences_ExcludedDatesSkipped(t *testing.T) {
	// GIVEN: A fixed transaction with February 15 excluded
	// WHEN: Expanded through March
	// THEN: January and March remain; February is gone

	tx := &settlement.Transaction{
		Date:          day(2026, time.January, 15),
		IsFixed:       true,
		ExcludedDates: []time.Time{day(2026, time.February, 15)},
	}

	occ := settlement.Occurrences(tx, day(2026, time.March, 31))
	require.Len(t, occ, 2)
	assert.Equal(t, day(2026, time.January, 15), occ[0])
	assert.Equal(t, day(2026, time.March, 15), occ[1])
}

func TestOccurrences_MonthEndDates_FollowCalendarArithmetic(t *testing.T) {
	// GIVEN: A fixed transaction dated January 31
	// WHEN: Expanded through March
	// THEN: The February occurrence lands where AddDate normalizes it

	tx := &settlement.Transaction{
		Date:    day(2026, time.January, 31),
		IsFixed: true,
	}

	occ := settlement.Occurrences(tx, day(2026, time.March, 31))
	require.NotEmpty(t, occ)
	assert.Equal(t, day(2026, time.January, 31), occ[0])
	// Jan 31 + 1 month normalizes to March 3 (2026 is not a leap year).
	assert.Equal(t, day(2026, time.January, 31).AddDate(0, 1, 0), occ[1])
}
