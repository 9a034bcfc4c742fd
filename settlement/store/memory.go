// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finshare/settle-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[settlement.TransactionID]settlement.Transaction
	participants map[settlement.ParticipantID]settlement.Participant
	merges       map[settlement.MergeRequestID]settlement.MergeRequest
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[settlement.TransactionID]settlement.Transaction),
		participants: make(map[settlement.ParticipantID]settlement.Participant),
		merges:       make(map[settlement.MergeRequestID]settlement.MergeRequest),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) InsertTransaction(_ context.Context, tx settlement.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id settlement.TransactionID) (*settlement.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	out := copyTransaction(tx)
	return &out, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx settlement.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ID]; !ok {
		return settlement.ErrTransactionNotFound
	}
	m.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

// DeleteTransaction removes the row and cascades its participants.
func (m *Memory) DeleteTransaction(_ context.Context, id settlement.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, id)
	for pid, p := range m.participants {
		if p.TransactionID == id {
			delete(m.participants, pid)
		}
	}
	return nil
}

func (m *Memory) ListTransactionsByCreator(_ context.Context, creator settlement.UserID) ([]settlement.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Transaction
	for _, tx := range m.transactions {
		if tx.CreatorID == creator {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListChildTransactions(_ context.Context, parent settlement.TransactionID) ([]settlement.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Transaction
	for _, tx := range m.transactions {
		if tx.ParentID == parent {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentIndex < out[j].InstallmentIndex })
	return out, nil
}

// =============================================================================
// PARTICIPANTS
// =============================================================================

func (m *Memory) InsertParticipants(_ context.Context, ps []settlement.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.participants[p.ID] = copyParticipant(p)
	}
	return nil
}

func (m *Memory) UpdateParticipant(_ context.Context, p settlement.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.ID]; !ok {
		return settlement.ErrParticipantNotFound
	}
	m.participants[p.ID] = copyParticipant(p)
	return nil
}

func (m *Memory) DeleteParticipant(_ context.Context, id settlement.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants, id)
	return nil
}

// ListParticipants returns rows in stable (seq, id) order.
func (m *Memory) ListParticipants(_ context.Context, tx settlement.TransactionID) ([]settlement.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Participant
	for _, p := range m.participants {
		if p.TransactionID == tx {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) FindPlaceholderParticipants(_ context.Context, creator settlement.UserID, name string) ([]settlement.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Participant
	for _, p := range m.participants {
		if p.UserID != "" || p.PlaceholderName != name {
			continue
		}
		tx, ok := m.transactions[p.TransactionID]
		if !ok || tx.CreatorID != creator {
			continue
		}
		out = append(out, copyParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MERGE REQUESTS
// =============================================================================

func (m *Memory) InsertMergeRequest(_ context.Context, mr settlement.MergeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges[mr.ID] = mr
	return nil
}

func (m *Memory) GetMergeRequest(_ context.Context, id settlement.MergeRequestID) (*settlement.MergeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.merges[id]
	if !ok {
		return nil, nil
	}
	out := mr
	return &out, nil
}

func (m *Memory) UpdateMergeRequest(_ context.Context, mr settlement.MergeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.merges[mr.ID]; !ok {
		return settlement.ErrMergeRequestNotFound
	}
	m.merges[mr.ID] = mr
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with unit-of-work support.
type TxMemory struct {
	*Memory

	// txMu serializes whole units of work so a rollback cannot clobber a
	// concurrent writer's state.
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the live maps after taking a snapshot;
// an error restores the snapshot, simulating a rollback.
func (tm *TxMemory) WithTx(_ context.Context, fn func(settlement.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	tm.mu.Lock()
	snapshot := tm.snapshotLocked()
	tm.mu.Unlock()

	if err := fn(tm.Memory); err != nil {
		tm.mu.Lock()
		tm.restoreLocked(snapshot)
		tm.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[settlement.TransactionID]settlement.Transaction
	participants map[settlement.ParticipantID]settlement.Participant
	merges       map[settlement.MergeRequestID]settlement.MergeRequest
}

func (tm *TxMemory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		transactions: make(map[settlement.TransactionID]settlement.Transaction, len(tm.transactions)),
		participants: make(map[settlement.ParticipantID]settlement.Participant, len(tm.participants)),
		merges:       make(map[settlement.MergeRequestID]settlement.MergeRequest, len(tm.merges)),
	}
	for k, v := range tm.transactions {
		s.transactions[k] = copyTransaction(v)
	}
	for k, v := range tm.participants {
		s.participants[k] = copyParticipant(v)
	}
	for k, v := range tm.merges {
		s.merges[k] = v
	}
	return s
}

func (tm *TxMemory) restoreLocked(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.participants = s.participants
	tm.merges = s.merges
}

// =============================================================================
// COPY HELPERS - Keep callers from aliasing stored state
// =============================================================================

func copyTransaction(tx settlement.Transaction) settlement.Transaction {
	out := tx
	if tx.ExcludedDates != nil {
		out.ExcludedDates = append([]time.Time{}, tx.ExcludedDates...)
	}
	return out
}

func copyParticipant(p settlement.Participant) settlement.Participant {
	out := p
	if p.BaseShareAmount != nil {
		v := *p.BaseShareAmount
		out.BaseShareAmount = &v
	}
	if p.BaseSharePercent != nil {
		v := *p.BaseSharePercent
		out.BaseSharePercent = &v
	}
	return out
}
