/*
recurrence.go - Occurrence expansion for fixed transactions

PURPOSE:
  A fixed transaction repeats monthly from its date until RecurrenceEndsAt
  (open-ended when nil). Excluded dates are occurrences the creator skipped.
  Expansion is pure; callers decide how far ahead to look.
*/
package settlement

import "time"

// Occurrences returns the occurrence dates of tx up to and including until.
// Non-fixed transactions yield just their own date (when within range).
func Occurrences(tx *Transaction, until time.Time) []time.Time {
	if !tx.IsFixed {
		if tx.Date.After(until) {
			return nil
		}
		return []time.Time{tx.Date}
	}

	end := until
	if tx.RecurrenceEndsAt != nil && tx.RecurrenceEndsAt.Before(until) {
		end = *tx.RecurrenceEndsAt
	}

	excluded := make(map[string]bool, len(tx.ExcludedDates))
	for _, d := range tx.ExcludedDates {
		excluded[dayKey(d)] = true
	}

	var out []time.Time
	for i := 0; ; i++ {
		occ := tx.Date.AddDate(0, i, 0)
		if occ.After(end) {
			break
		}
		if excluded[dayKey(occ)] {
			continue
		}
		out = append(out, occ)
	}
	return out
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }
