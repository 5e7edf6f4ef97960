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

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studiopay/remit/internal/apierror"
)

func TestNewAPIError(t *testing.T) {
	apiErr := apierror.NewAPIError(apierror.ErrNotFound, "run not found", "no rows")

	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.Equal(t, "run not found", apiErr.Message)
	assert.Equal(t, "no rows", apiErr.Details)
	assert.Equal(t, "NOT_FOUND: run not found", apiErr.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil), http.StatusNotFound},
		{"conflict", apierror.NewAPIError(apierror.ErrConflict, "run in progress", nil), http.StatusConflict},
		{"invalid input", apierror.NewAPIError(apierror.ErrInvalidInput, "bad", nil), http.StatusBadRequest},
		{"unavailable", apierror.NewAPIError(apierror.ErrUnavailable, "no queue", nil), http.StatusServiceUnavailable},
		{"internal", apierror.NewAPIError(apierror.ErrInternalServer, "boom", nil), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("loading run: %w", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil)), http.StatusNotFound},
		{"plain error", errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
