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
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/database"
	"github.com/studiopay/remit/internal/notification"
)

// Remit is the CLI application.
type Remit struct {
	cmd *cobra.Command
}

// remitInstance carries the engine and the loaded configuration into commands.
type remitInstance struct {
	remit *remit.Remit
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the engine before any command runs.
func preRun(app *remitInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			logrus.Fatalf("error loading config: %v", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newRemit, err := setupRemit(cnf)
		if err != nil {
			notification.NotifyError(err)
			logrus.Fatal(err)
		}

		app.remit = newRemit
		app.cnf = cnf
		return nil
	}
}

// setupRemit connects the optional run history store and builds the engine.
func setupRemit(cfg *config.Configuration) (*remit.Remit, error) {
	var db database.IDataSource
	if cfg.DataSource.Dns != "" {
		ds, err := database.NewDataSource(cfg)
		if err != nil {
			return nil, fmt.Errorf("error getting datasource: %v", err)
		}
		db = ds
	} else {
		logrus.Warn("no data_source configured: run history will not be stored")
	}

	newRemit, err := remit.NewRemit(db)
	if err != nil {
		return nil, fmt.Errorf("error creating remit: %v", err)
	}
	return newRemit, nil
}

func NewCLI() *Remit {
	var configFile string
	r := &remitInstance{}

	var rootCmd = &cobra.Command{
		Use:   "remit",
		Short: "Reconciles e-Transfer notifications against studio accounts",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./remit.json", "Configuration file")
	rootCmd.PersistentPreRunE = preRun(r, &configFile)

	rootCmd.AddCommand(runCommands(r))
	rootCmd.AddCommand(serverCommands(r))
	rootCmd.AddCommand(workerCommands(r))
	rootCmd.AddCommand(migrateCommands(r))
	rootCmd.AddCommand(configCommands(r))

	return &Remit{cmd: rootCmd}
}

func (w Remit) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
