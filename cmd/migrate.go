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

/*
Package main provides the CLI commands for the run history migrations.
*/

package main

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/database"
)

const migrationSchema = "remit"

func migrateCommands(_ *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run history migrations",
	}

	cmd.AddCommand(migrateDirectionCommand("up", "Applied", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand("down", "Rolled back", migrate.Down))

	return cmd
}

func migrateDirectionCommand(use, verb string, direction migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations := migrate.EmbedFileSystemMigrationSource{
				FileSystem: remit.SQLFiles,
				Root:       "sql",
			}

			cnf, err := config.Fetch()
			if err != nil {
				return fmt.Errorf("fetching config: %w", err)
			}
			if cnf.DataSource.Dns == "" {
				return fmt.Errorf("data_source.dns is required for migrations")
			}

			db, err := database.ConnectDB(cnf.DataSource.Dns)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer db.Close()

			migrate.SetSchema(migrationSchema)

			n, err := migrate.Exec(db, "postgres", migrations, direction)
			if err != nil {
				logrus.Errorf("migrating %s: %v", use, err)
				return err
			}
			fmt.Printf("%s %d migrations!\n", verb, n)
			return nil
		},
	}
}
