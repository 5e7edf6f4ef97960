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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/api/middleware"
	"github.com/studiopay/remit/config"
)

type Api struct {
	remit  *remit.Remit
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/runs", a.ListRuns)
	router.GET("/runs/latest", a.GetLatestRun)
	router.GET("/runs/:id", a.GetRun)
	router.POST("/runs", a.TriggerRun)

	router.GET("/references/:reference", a.GetReferenceHistory)

	router.POST("/allocations/preview", a.PreviewAllocation)
	return a.router
}

func NewAPI(r *remit.Remit) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), otelgin.Middleware(conf.ProjectName))
	router.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		router.Use(middleware.SecretKeyAuthMiddleware())
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "server running...", "safe_mode": r.SafeMode()})
	})

	return &Api{remit: r, router: router}
}
