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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/studiopay/remit/internal/apierror"
	"github.com/studiopay/remit/model"
)

var runRowColumns = []string{"id", "run_id", "status", "verified", "allocated", "abandoned", "ignored", "dry_run", "started_at", "completed_at"}

func TestRecordRun_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	started := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO remit.runs").
		WithArgs(sqlmock.AnyArg(), model.RunStatusStarted, 0, 0, 0, 0, true, started).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	run, err := ds.RecordRun(context.Background(), &model.Run{DryRun: true, StartedAt: started})
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.ID)
	assert.Contains(t, run.RunID, "run_")
	assert.Equal(t, model.RunStatusStarted, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("INSERT INTO remit.runs").WillReturnError(errors.New("connection reset"))

	_, err = ds.RecordRun(context.Background(), &model.Run{RunID: "run_1"})
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestUpdateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	run := &model.Run{RunID: "run_1", Status: model.RunStatusCompleted, Verified: 2, Abandoned: 1, CompletedAt: ptr.Time(time.Now())}

	mock.ExpectExec("UPDATE remit.runs").
		WithArgs("run_1", model.RunStatusCompleted, 2, 0, 1, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, ds.UpdateRun(context.Background(), run))

	mock.ExpectExec("UPDATE remit.runs").
		WithArgs("run_1", model.RunStatusCompleted, 2, 0, 1, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = ds.UpdateRun(context.Background(), run)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	started := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Minute)

	rows := sqlmock.NewRows(runRowColumns).
		AddRow(1, "run_1", model.RunStatusCompleted, 3, 0, 1, 4, false, started, completed)
	mock.ExpectQuery("SELECT (.+) FROM remit.runs WHERE run_id = \\$1").
		WithArgs("run_1").
		WillReturnRows(rows)

	run, err := ds.GetRun(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.RunID)
	assert.Equal(t, 3, run.Verified)
	assert.Equal(t, 1, run.Abandoned)
	assert.Equal(t, 4, run.Ignored)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, completed, *run.CompletedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM remit.runs WHERE run_id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestGetLatestRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows(runRowColumns).
		AddRow(9, "run_9", model.RunStatusStarted, 0, 2, 0, 0, true, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM remit.runs ORDER BY started_at DESC").WillReturnRows(rows)

	run, err := ds.GetLatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run_9", run.RunID)
	assert.True(t, run.DryRun)
	assert.Equal(t, 2, run.Allocated)
	assert.Nil(t, run.CompletedAt)
}

func TestGetRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	rows := sqlmock.NewRows(runRowColumns).
		AddRow(2, "run_2", model.RunStatusCompleted, 1, 0, 0, 0, false, now, now).
		AddRow(1, "run_1", model.RunStatusFailed, 0, 0, 0, 0, false, now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM remit.runs ORDER BY").
		WithArgs(20, 0).
		WillReturnRows(rows)

	runs, err := ds.GetRuns(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_2", runs[0].RunID)
	assert.Equal(t, model.RunStatusFailed, runs[1].Status)
}
