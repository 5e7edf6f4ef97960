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

	"github.com/stretchr/testify/mock"

	"github.com/studiopay/remit/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Run methods

func (m *MockDataSource) RecordRun(ctx context.Context, run *model.Run) (*model.Run, error) {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockDataSource) UpdateRun(ctx context.Context, run *model.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDataSource) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockDataSource) GetLatestRun(ctx context.Context) (*model.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockDataSource) GetRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Run), args.Error(1)
}

// Outcome methods

func (m *MockDataSource) RecordOutcome(ctx context.Context, outcome *model.IntentOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockDataSource) GetOutcomesByRunID(ctx context.Context, runID string) ([]model.IntentOutcome, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]model.IntentOutcome), args.Error(1)
}

func (m *MockDataSource) GetOutcomesByReference(ctx context.Context, reference string) ([]model.IntentOutcome, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).([]model.IntentOutcome), args.Error(1)
}
