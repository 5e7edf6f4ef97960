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

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/studiopay/remit/model"
)

// MockMailbox is a mock implementation of the Mailbox interface
type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) ListCandidateMessages(ctx context.Context, since time.Time, unseenOnly bool) ([]model.RawMessage, error) {
	args := m.Called(ctx, since, unseenOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawMessage), args.Error(1)
}

func (m *MockMailbox) MarkProcessed(ctx context.Context, handle model.MessageHandle) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

// MockLedger is a mock implementation of the LedgerService interface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) SearchAccounts(ctx context.Context, query string) ([]model.AccountCandidate, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccountCandidate), args.Error(1)
}

func (m *MockLedger) GetContactEmails(ctx context.Context, account model.AccountCandidate) (model.ContactInfo, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(model.ContactInfo), args.Error(1)
}

func (m *MockLedger) GetUnpaidCharges(ctx context.Context, account model.AccountCandidate) ([]model.ChargeRow, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChargeRow), args.Error(1)
}

func (m *MockLedger) ApplyPayment(ctx context.Context, req model.PaymentRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockLedger) GetCurrentBalance(ctx context.Context, account model.AccountCandidate) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}
