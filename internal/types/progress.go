package types

import "time"

// ProgressRecord is the "next case to process" pointer. LastIndex is -1
// before any case has been claimed.
type ProgressRecord struct {
	LastIndex int `json:"last_index"`
}

// NextIndex returns the index the next fresh claim will take.
func (p ProgressRecord) NextIndex() int {
	return p.LastIndex + 1
}

// CounterSnapshot is one append-only checkpoint in the counter history.
type CounterSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	CaseCount  int       `json:"case_count"`
	ReuseCount int       `json:"reuse_count"`
	ReuseRate  float64   `json:"reuse_rate"`
}

// CounterRecord holds cumulative totals and their history.
// Invariants: ReuseCount <= CaseCount; History only grows.
type CounterRecord struct {
	CaseCount  int               `json:"case_count"`
	ReuseCount int               `json:"reuse_count"`
	History    []CounterSnapshot `json:"history"`
}

// ReuseRate returns ReuseCount / CaseCount, or 0 when nothing was processed.
func (c CounterRecord) ReuseRate() float64 {
	return ReuseRate(c.CaseCount, c.ReuseCount)
}

// ReuseRate computes the reuse rate for the given totals.
func ReuseRate(cases, reused int) float64 {
	if cases == 0 {
		return 0
	}
	return float64(reused) / float64(cases)
}

// LedgerEvent records that a case reached a terminal state. Current totals are
// a fold over all ledger events.
type LedgerEvent struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	CaseIndex int       `json:"case_index"`
	State     CaseState `json:"state"`
	Reused    bool      `json:"reused"`
	CreatedAt time.Time `json:"created_at"`
}

// ClaimStatus is the lifecycle of one claimed case index.
type ClaimStatus string

const (
	ClaimClaimed     ClaimStatus = "claimed"     // being processed by a live run
	ClaimDone        ClaimStatus = "done"        // reached a terminal state
	ClaimErrored     ClaimStatus = "errored"     // failed, eligible for retry
	ClaimInterrupted ClaimStatus = "interrupted" // left behind by an earlier run
	ClaimFailed      ClaimStatus = "failed"      // dead-lettered after max attempts
)

// IsValid checks if the status value is known
func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimClaimed, ClaimDone, ClaimErrored, ClaimInterrupted, ClaimFailed:
		return true
	}
	return false
}

// CaseClaim is the persisted claim for one case index.
type CaseClaim struct {
	CaseIndex int         `json:"case_index"`
	RunID     string      `json:"run_id"`
	Status    ClaimStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}
