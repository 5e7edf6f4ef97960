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
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/studiopay/remit/internal/apierror"
	"github.com/studiopay/remit/model"
)

const runColumns = `id, run_id, status, verified, allocated, abandoned, ignored, dry_run, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	run := model.Run{}
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.RunID, &run.Status, &run.Verified, &run.Allocated, &run.Abandoned, &run.Ignored, &run.DryRun, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func (d Datasource) RecordRun(ctx context.Context, run *model.Run) (*model.Run, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Saving run to db")
	defer span.End()

	if run.RunID == "" {
		run.RunID = model.GenerateUUIDWithSuffix("run")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = model.RunStatusStarted
	}

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO remit.runs (run_id, status, verified, allocated, abandoned, ignored, dry_run, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, run.RunID, run.Status, run.Verified, run.Allocated, run.Abandoned, run.Ignored, run.DryRun, run.StartedAt).Scan(&run.ID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record run", err)
	}

	return run, nil
}

func (d Datasource) UpdateRun(ctx context.Context, run *model.Run) error {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Updating run in db")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE remit.runs
		SET status = $2, verified = $3, allocated = $4, abandoned = $5, ignored = $6, completed_at = $7
		WHERE run_id = $1
	`, run.RunID, run.Status, run.Verified, run.Allocated, run.Abandoned, run.Ignored, run.CompletedAt)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update run", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update run", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Run not found", run.RunID)
	}
	return nil
}

func (d Datasource) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Getting run from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM remit.runs WHERE run_id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Run not found", err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve run", err)
	}
	return run, nil
}

func (d Datasource) GetLatestRun(ctx context.Context) (*model.Run, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Getting latest run from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM remit.runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No runs recorded yet", err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve latest run", err)
	}
	return run, nil
}

func (d Datasource) GetRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	ctx, span := otel.Tracer("remit.database").Start(ctx, "Listing runs from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM remit.runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve runs", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan run data", err)
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over runs", err)
	}
	return runs, nil
}
