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
	"database/sql"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/studiopay/remit/internal/apierror"
	"github.com/studiopay/remit/model"
)

const outcomeColumns = `id, run_id, message_handle, reference, amount, state, reason, account_id, account_name, strategy, allocation, balance, detail, dry_run, processed_at`

func (d Datasource) RecordOutcome(ctx context.Context, outcome *model.IntentOutcome) error {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Saving intent outcome to db")
	defer span.End()

	allocationJSON, err := json.Marshal(outcome.Allocation)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal allocation", err)
	}
	if outcome.ProcessedAt.IsZero() {
		outcome.ProcessedAt = time.Now()
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO remit.intent_outcomes (run_id, message_handle, reference, amount, state, reason, account_id, account_name, strategy, allocation, balance, detail, dry_run, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, outcome.RunID, int64(outcome.MessageHandle), outcome.Reference, outcome.Amount, string(outcome.State), string(outcome.Reason),
		outcome.AccountID, outcome.AccountName, outcome.Strategy, allocationJSON, outcome.Balance, outcome.Detail, outcome.DryRun, outcome.ProcessedAt).Scan(&outcome.ID)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record intent outcome", err)
	}
	return nil
}

func (d Datasource) GetOutcomesByRunID(ctx context.Context, runID string) ([]model.IntentOutcome, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Getting intent outcomes by run from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+outcomeColumns+`
		FROM remit.intent_outcomes
		WHERE run_id = $1
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve intent outcomes", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

func (d Datasource) GetOutcomesByReference(ctx context.Context, reference string) ([]model.IntentOutcome, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Getting intent outcomes by reference from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+outcomeColumns+`
		FROM remit.intent_outcomes
		WHERE reference = $1
		ORDER BY processed_at DESC, id DESC
	`, reference)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve intent outcomes", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]model.IntentOutcome, error) {
	outcomes := []model.IntentOutcome{}
	for rows.Next() {
		var o model.IntentOutcome
		var handle int64
		var state string
		var allocationJSON []byte
		var reference, reason, accountID, accountName, strategy, balance, detail sql.NullString
		err := rows.Scan(&o.ID, &o.RunID, &handle, &reference, &o.Amount, &state, &reason, &accountID, &accountName,
			&strategy, &allocationJSON, &balance, &detail, &o.DryRun, &o.ProcessedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan intent outcome", err)
		}

		o.MessageHandle = model.MessageHandle(handle)
		o.Reference = reference.String
		o.State = model.IntentState(state)
		o.Reason = model.AbandonReason(reason.String)
		o.AccountID = accountID.String
		o.AccountName = accountName.String
		o.Strategy = strategy.String
		o.Balance = balance.String
		o.Detail = detail.String

		if len(allocationJSON) > 0 {
			if err := json.Unmarshal(allocationJSON, &o.Allocation); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal allocation", err)
			}
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over intent outcomes", err)
	}
	return outcomes, nil
}
