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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/config"
	dbmocks "github.com/studiopay/remit/database/mocks"
	"github.com/studiopay/remit/internal/apierror"
	"github.com/studiopay/remit/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T, cnf *config.Configuration) (*gin.Engine, *dbmocks.MockDataSource) {
	config.MockConfig(cnf)
	ds := new(dbmocks.MockDataSource)
	r, err := remit.NewRemit(ds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	api := NewAPI(r)
	require.NotNil(t, api)
	return api.Router(), ds
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, &config.Configuration{SafeMode: true})

	var body map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/", Response: &body})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, body["safe_mode"])
}

func TestGetLatestRun(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetLatestRun", mock.Anything).Return(&model.Run{RunID: "run_1", Status: model.RunStatusCompleted, Verified: 3}, nil).Once()

	var run model.Run
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs/latest", Response: &run})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "run_1", run.RunID)
	assert.Equal(t, 3, run.Verified)

	ds.On("GetLatestRun", mock.Anything).Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "No runs recorded yet", nil)).Once()
	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs/latest", Response: &map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListRuns(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetRuns", mock.Anything, 20, 40).Return([]model.Run{{RunID: "run_2"}, {RunID: "run_1"}}, nil).Once()

	var runs []model.Run
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs?limit=500&offset=40", Response: &runs})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_2", runs[0].RunID)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs?limit=ten", Response: &map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertExpectations(t)
}

func TestGetRun(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetRun", mock.Anything, "run_1").Return(&model.Run{RunID: "run_1"}, nil)
	ds.On("GetOutcomesByRunID", mock.Anything, "run_1").Return([]model.IntentOutcome{
		{RunID: "run_1", Reference: "AB123", State: model.StateVerified},
		{RunID: "run_1", Reference: "AB124", State: model.StateAbandoned, Reason: model.ReasonNoVerifiedMatch},
	}, nil)

	var report remit.RunReport
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs/run_1", Response: &report})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, model.ReasonNoVerifiedMatch, report.Outcomes[1].Reason)
}

func TestGetReferenceHistory(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetOutcomesByReference", mock.Anything, "AB123").Return([]model.IntentOutcome{{RunID: "run_1", Reference: "AB123"}}, nil)

	var outcomes []model.IntentOutcome
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/references/AB123", Response: &outcomes})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, outcomes, 1)
}

func TestTriggerRun_WithoutQueue(t *testing.T) {
	router, _ := setupRouter(t, &config.Configuration{})

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/runs", Payload: jsonBody(t, map[string]int{"lookback_days": 2}), Response: &map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestTriggerRun(t *testing.T) {
	mr := miniredis.RunT(t)
	router, _ := setupRouter(t, &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{RunQueue: config.DEFAULT_RUN_QUEUE},
	})

	tests := []struct {
		name         string
		payload      interface{}
		expectedCode int
	}{
		{name: "queued", payload: map[string]interface{}{"lookback_days": 3}, expectedCode: http.StatusAccepted},
		{name: "already queued", payload: map[string]interface{}{"lookback_days": 3}, expectedCode: http.StatusConflict},
		{name: "lookback out of range", payload: map[string]interface{}{"lookback_days": 400}, expectedCode: http.StatusBadRequest},
		{name: "malformed", payload: "lookback", expectedCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]interface{}
			resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/runs", Payload: jsonBody(t, tt.payload), Response: &body})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.expectedCode == http.StatusAccepted {
				assert.NotEmpty(t, body["task_id"])
				assert.Equal(t, config.DEFAULT_RUN_QUEUE, body["queue"])
			}
		})
	}
}

func TestPreviewAllocation(t *testing.T) {
	router, _ := setupRouter(t, &config.Configuration{})

	var result struct {
		Allocation []struct {
			Category string `json:"category"`
			Amount   string `json:"amount"`
		} `json:"allocation"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodPost,
		Route:  "/allocations/preview",
		Payload: jsonBody(t, map[string]interface{}{
			"amount": "250.00",
			"charges": []map[string]string{
				{"category": "Costume Deposit", "amount": "$50.00"},
				{"category": "Tuition", "amount": "$200.00"},
				{"category": "Total", "amount": "$250.00"},
			},
		}),
		Response: &result,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, result.Allocation, 2)
	assert.Equal(t, "Tuition", result.Allocation[0].Category)
	assert.Equal(t, "200", result.Allocation[0].Amount)
	assert.Equal(t, "Costume Deposit", result.Allocation[1].Category)

	resp, err = SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/allocations/preview",
		Payload:  jsonBody(t, map[string]interface{}{"amount": "-5"}),
		Response: &map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSecureServerRequiresKey(t *testing.T) {
	router, _ := setupRouter(t, &config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: "s3cret"}})

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/runs/latest", Response: &map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
