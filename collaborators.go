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

package remit

import (
	"context"
	"time"

	"github.com/studiopay/remit/model"
)

// Mailbox lists transfer notifications and records completion on them.
// Listing must not change read state; MarkProcessed must be idempotent.
type Mailbox interface {
	ListCandidateMessages(ctx context.Context, since time.Time, unseenOnly bool) ([]model.RawMessage, error)
	MarkProcessed(ctx context.Context, handle model.MessageHandle) error
}

// AccountDirectory searches customer accounts and exposes their stored contacts.
type AccountDirectory interface {
	SearchAccounts(ctx context.Context, query string) ([]model.AccountCandidate, error)
	GetContactEmails(ctx context.Context, account model.AccountCandidate) (model.ContactInfo, error)
}

// ChargeSource returns the raw unpaid-charges report of an account.
type ChargeSource interface {
	GetUnpaidCharges(ctx context.Context, account model.AccountCandidate) ([]model.ChargeRow, error)
}

// PaymentApplier posts a payment and reads the resulting balance.
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, req model.PaymentRequest) error
	GetCurrentBalance(ctx context.Context, account model.AccountCandidate) (string, error)
}

// LedgerService is the studio back office seen from the engine.
type LedgerService interface {
	AccountDirectory
	ChargeSource
	PaymentApplier
}

// Session is the pair of authenticated external handles one run works through.
// A session is used by one run at a time.
type Session struct {
	Mailbox Mailbox
	Ledger  LedgerService
}
