/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// IntentState is a stage of the per-intent state machine.
type IntentState string

const (
	StateExtracted    IntentState = "extracted"
	StateDeduplicated IntentState = "deduplicated"
	StateMatched      IntentState = "matched"
	StateAllocated    IntentState = "allocated"
	StateApplied      IntentState = "applied"
	StateVerified     IntentState = "verified"
	StateAbandoned    IntentState = "abandoned"
)

// AbandonReason says why an intent ended in StateAbandoned.
type AbandonReason string

const (
	ReasonParseRejected      AbandonReason = "parse_rejected"
	ReasonDuplicateReference AbandonReason = "duplicate_reference"
	ReasonNoVerifiedMatch    AbandonReason = "no_verified_match"
	ReasonApplyFailed        AbandonReason = "apply_failed"
	ReasonBalanceUnavailable AbandonReason = "balance_unavailable"
	ReasonUnexpectedFault    AbandonReason = "unexpected_fault"
)

// Run summarises one pass over the mailbox. Allocated counts intents that
// stopped before apply because the run was in safe mode.
type Run struct {
	ID          int64      `json:"-"`
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	Verified    int        `json:"verified"`
	Allocated   int        `json:"allocated"`
	Abandoned   int        `json:"abandoned"`
	Ignored     int        `json:"ignored"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// IntentOutcome is the diagnostic record kept for every transfer notification a run touched.
type IntentOutcome struct {
	ID            int64           `json:"-"`
	RunID         string          `json:"run_id"`
	MessageHandle MessageHandle   `json:"message_handle"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	State         IntentState     `json:"state"`
	Reason        AbandonReason   `json:"reason,omitempty"`
	AccountID     string          `json:"account_id,omitempty"`
	AccountName   string          `json:"account_name,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
	Allocation    Allocation      `json:"allocation,omitempty"`
	Balance       string          `json:"balance,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	DryRun        bool            `json:"dry_run"`
	ProcessedAt   time.Time       `json:"processed_at"`
}
