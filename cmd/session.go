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

	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/mailbox"
	"github.com/studiopay/remit/studio"
)

// sessionOpener authenticates a fresh mailbox and studio session per run.
// Failing to establish either one is fatal to the run.
func sessionOpener(cfg *config.Configuration) remit.SessionOpener {
	return func(ctx context.Context) (remit.Session, func(), error) {
		mb, err := mailbox.Dial(ctx, cfg.Mailbox)
		if err != nil {
			return remit.Session{}, nil, fmt.Errorf("mailbox session: %w", err)
		}

		client, err := studio.NewClient(cfg.Studio, cfg.SafeMode)
		if err != nil {
			_ = mb.Close()
			return remit.Session{}, nil, err
		}
		if err := client.Open(ctx); err != nil {
			_ = mb.Close()
			return remit.Session{}, nil, fmt.Errorf("studio session: %w", err)
		}

		release := func() {
			client.Close()
			if err := mb.Close(); err != nil {
				logrus.Warnf("closing mailbox: %v", err)
			}
		}
		return remit.Session{Mailbox: mb, Ledger: client}, release, nil
	}
}
