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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/internal/notification"
)

// runCommands defines "run": one reconciliation pass in the foreground.
// The report is printed as JSON. Per-intent failures are part of the report;
// only session, listing or lock failures exit non-zero.
func runCommands(b *remitInstance) *cobra.Command {
	var lookbackDays int
	var all bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "reconcile the mailbox once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := remit.RunRequest{LookbackDays: lookbackDays}
			if all {
				unseenOnly := false
				req.UnseenOnly = &unseenOnly
			}

			sess, release, err := sessionOpener(b.cnf)(ctx)
			if err != nil {
				notification.NotifyError(err)
				return err
			}
			defer release()

			run, err := b.remit.Run(ctx, sess, req.Options(time.Now(), b.cnf.Mailbox))
			if err != nil {
				logrus.Errorf("run ended early: %v", err)
			}
			if run == nil {
				return err
			}

			out, merr := json.MarshalIndent(run, "", "    ")
			if merr != nil {
				return merr
			}
			fmt.Println(string(out))
			return err
		},
	}

	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "days of mail to scan (defaults to mailbox.lookback_days)")
	cmd.Flags().BoolVar(&all, "all", false, "include messages already marked seen")
	return cmd
}
