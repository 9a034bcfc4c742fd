/*
scheduler.go - Recurring-transaction reminder scheduler

PURPOSE:
  Periodically scans fixed (recurring) transactions and notifies each
  creator of occurrences falling due today. Skipped occurrences and ended
  recurrences never fire.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Expands each fixed transaction with settlement.Occurrences
  - Deduplicates per day so a restart cannot double-notify within a run

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReminderScheduler(store, notifier)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - settlement/recurrence.go: Occurrence expansion
  - notify/notify.go: Delivery
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finshare/settle-engine/settlement"
	"github.com/finshare/settle-engine/store/sqlite"
)

// ReminderScheduler notifies creators of recurring occurrences due today.
type ReminderScheduler struct {
	Store         *sqlite.Store
	Notifier      settlement.Notifier
	CheckInterval time.Duration
	Enabled       bool

	ticker   *time.Ticker
	stop     chan bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	notified map[string]bool
}

// NewReminderScheduler creates a new scheduler.
func NewReminderScheduler(store *sqlite.Store, notifier settlement.Notifier) *ReminderScheduler {
	return &ReminderScheduler{
		Store:         store,
		Notifier:      notifier,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
		notified:      make(map[string]bool),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		slog.Info("reminder scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	slog.Info("reminder scheduler started", "interval", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		slog.Info("reminder scheduler stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndNotify(time.Now())

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndNotify(time.Now())
		case <-rs.stop:
			return
		}
	}
}

// checkAndNotify scans every creator's fixed transactions for an occurrence
// falling on now's calendar day.
func (rs *ReminderScheduler) checkAndNotify(now time.Time) {
	ctx := context.Background()
	today := now.Format("2006-01-02")

	users, err := rs.Store.ListUsers(ctx)
	if err != nil {
		slog.Error("reminder scheduler: listing users", "error", err)
		return
	}

	notified := 0
	for _, u := range users {
		txs, err := rs.Store.ListTransactionsByCreator(ctx, u.ID)
		if err != nil {
			slog.Error("reminder scheduler: listing transactions",
				"user", u.ID, "error", err)
			continue
		}

		for _, tx := range txs {
			if !tx.IsFixed {
				continue
			}
			key := string(tx.ID) + "|" + today
			if rs.seen(key) {
				continue
			}
			for _, occ := range settlement.Occurrences(&tx, now) {
				if occ.Format("2006-01-02") != today {
					continue
				}
				rs.Notifier.Notify(ctx, settlement.Notification{
					UserID:  tx.CreatorID,
					Event:   settlement.EventRecurrenceDue,
					Title:   "Recurring transaction due",
					Message: fmt.Sprintf("%s (%s) is due today", tx.Description, tx.Amount.String()),
					Payload: map[string]string{"transactionId": string(tx.ID), "date": today},
				})
				rs.markSeen(key)
				notified++
				break
			}
		}
	}

	if notified > 0 {
		slog.Info("reminder scheduler run complete", "notified", notified)
	}
}

func (rs *ReminderScheduler) seen(key string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.notified[key]
}

func (rs *ReminderScheduler) markSeen(key string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.notified[key] = true
}
