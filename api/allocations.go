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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiopay/remit/api/model"
)

// PreviewAllocation normalizes a posted charge report and splits the posted
// amount across it. Nothing is applied to any account.
func (a Api) PreviewAllocation(c *gin.Context) {
	var req model.PreviewAllocation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidatePreviewAllocation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	unpaid, allocation := a.remit.PreviewAllocation(c.Request.Context(), req.Payment(), req.ChargeRows())
	c.JSON(http.StatusOK, model.PreviewResult{Unpaid: unpaid, Allocation: allocation})
}
