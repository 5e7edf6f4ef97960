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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/studiopay/remit"
	"github.com/studiopay/remit/config"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{conf.Queue.RunQueue: 1}
}

// initializeWorkerServer runs one task at a time: a run owns the mailbox and
// the studio session until it finishes.
func initializeWorkerServer(redisOpt asynq.RedisClientOpt, queues map[string]int) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
	})
}

// initializeScheduler enqueues a run on the configured cron schedule.
func initializeScheduler(redisOpt asynq.RedisClientOpt, conf *config.Configuration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logrus.StandardLogger()})
	task, err := remit.NewRunTask(remit.RunRequest{}, conf.Queue.RunQueue)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(conf.Queue.Schedule, task)
	if err != nil {
		return nil, fmt.Errorf("registering run schedule %q: %w", conf.Queue.Schedule, err)
	}
	logrus.WithFields(logrus.Fields{"entry_id": entryID, "schedule": conf.Queue.Schedule}).Info("run schedule registered")
	return scheduler, nil
}

func initializeTaskHandlers(b *remitInstance, mux *asynq.ServeMux) {
	mux.Handle(remit.TaskRun, b.remit.RunTaskHandler(sessionOpener(b.cnf), b.cnf.Mailbox))
}

func startMonitoring(redisOpt asynq.RedisClientOpt, port string) {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOpt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", port)
		logrus.Infof("asynqmon listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
}

// workerCommands defines "workers": the run scheduler plus the worker that
// executes queued runs.
func workerCommands(b *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the run scheduler and worker",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := b.cnf

			if conf.Redis.Dns == "" {
				logrus.Fatal("redis.dns is required for workers")
			}
			logrus.AddHook(&apmlogrus.Hook{})

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				logrus.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logrus.Errorf("error during shutdown: %v", err)
				}
			}()

			redisOpt, err := remit.RedisClientOpt(conf)
			if err != nil {
				logrus.Fatalf("error parsing Redis URL: %v", err)
			}

			scheduler, err := initializeScheduler(redisOpt, conf)
			if err != nil {
				logrus.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				logrus.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			srv := initializeWorkerServer(redisOpt, initializeQueues(conf))
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			startMonitoring(redisOpt, conf.Queue.MonitoringPort)

			if err := srv.Run(mux); err != nil {
				logrus.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
