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

package database

import (
	"context"

	"github.com/studiopay/remit/model"
)

// IDataSource is the run history store.
type IDataSource interface {
	run
	outcome
}

type run interface {
	// RecordRun inserts a started run and fills in its ID.
	RecordRun(ctx context.Context, run *model.Run) (*model.Run, error)
	UpdateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	// GetLatestRun returns the most recently started run.
	GetLatestRun(ctx context.Context) (*model.Run, error)
	GetRuns(ctx context.Context, limit, offset int) ([]model.Run, error)
}

type outcome interface {
	RecordOutcome(ctx context.Context, outcome *model.IntentOutcome) error
	// GetOutcomesByRunID lists a run's outcomes in processing order.
	GetOutcomesByRunID(ctx context.Context, runID string) ([]model.IntentOutcome, error)
	// GetOutcomesByReference returns the history of one transfer reference across runs, newest first.
	GetOutcomesByReference(ctx context.Context, reference string) ([]model.IntentOutcome, error)
}
