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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studiopay/remit/config"
)

const redacted = "********"

// redact masks credentials so the computed configuration can be shared.
func redact(cfg config.Configuration) config.Configuration {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Mailbox.Password)
	mask(&cfg.Studio.Password)
	mask(&cfg.Server.SecretKey)
	mask(&cfg.DataSource.Dns)
	mask(&cfg.Redis.Dns)
	mask(&cfg.Notification.Slack.WebhookUrl)
	return cfg
}

func configCommands(b *remitInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the computed configuration with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(redact(*b.cnf), "", "    ")
			if err != nil {
				return fmt.Errorf("printing config: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
