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

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studiopay/remit/api"
	"github.com/studiopay/remit/config"
	trace "github.com/studiopay/remit/internal/traces"
)

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
Without a configured domain it falls back to localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		logrus.Warn("no domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	logrus.Infof("starting HTTPS server on %s", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func initializeRouter(b *remitInstance) (*gin.Engine, error) {
	a := api.NewAPI(b.remit)
	if a == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return a.Router(), nil
}

// initializeObservability installs the OTLP tracer provider when telemetry
// is enabled. The returned shutdown is never nil.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	logrus.Infof("starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands defines "start": the HTTP status and trigger API.
func serverCommands(b *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the remit API server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			router, err := initializeRouter(b)
			if err != nil {
				logrus.Fatal(err)
			}

			shutdown, err := initializeObservability(ctx, b.cnf)
			if err != nil {
				logrus.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logrus.Errorf("error during shutdown: %v", err)
				}
			}()

			if err := startServer(router, b.cnf.Server); err != nil {
				logrus.Fatal(err)
			}
		},
	}

	return cmd
}
