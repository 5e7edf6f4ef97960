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

package remit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/internal/apierror"
	redis_db "github.com/studiopay/remit/internal/redis-db"
)

// TaskRun is the asynq task type of a reconciliation run.
const TaskRun = "remit:run"

// runTaskUniqueness stops the scheduler and the API from stacking runs.
const runTaskUniqueness = 10 * time.Minute

// Queue enqueues and inspects reconciliation runs.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	queueName string
}

// RunRequest is the payload of a run task.
type RunRequest struct {
	LookbackDays int   `json:"lookback_days"`
	UnseenOnly   *bool `json:"unseen_only,omitempty"`
}

// Options resolves the request against the mailbox defaults.
func (req RunRequest) Options(now time.Time, defaults config.MailboxConfig) RunOptions {
	days := req.LookbackDays
	if days <= 0 {
		days = defaults.LookbackDays
	}
	if days <= 0 {
		days = 1
	}
	unseenOnly := defaults.UnseenOnlyOrDefault()
	if req.UnseenOnly != nil {
		unseenOnly = *req.UnseenOnly
	}
	since := now.AddDate(0, 0, -days)
	return RunOptions{
		Since:      time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location()),
		UnseenOnly: unseenOnly,
	}
}

// RedisClientOpt converts the configured Redis DNS into asynq options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue connects a client and an inspector to the configured Redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("parsing redis DNS for queue: %w", err)
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		queueName: conf.Queue.RunQueue,
	}, nil
}

// NewRunTask builds a run task for queue.
func NewRunTask(req RunRequest, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRun, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Unique(runTaskUniqueness),
	), nil
}

// EnqueueRun queues a run. A run already waiting in the queue yields ErrRunInProgress.
func (q *Queue) EnqueueRun(ctx context.Context, req RunRequest) (*asynq.TaskInfo, error) {
	task, err := NewRunTask(req, q.queueName)
	if err != nil {
		return nil, err
	}
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Info("reconciliation run enqueued")
	return info, nil
}

// Close closes the client and the inspector.
func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}

// EnqueueRun queues a run on the configured run queue.
func (r *Remit) EnqueueRun(ctx context.Context, req RunRequest) (*asynq.TaskInfo, error) {
	if r.queue == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "Run queue is not configured", nil)
	}
	info, err := r.queue.EnqueueRun(ctx, req)
	if errors.Is(err, ErrRunInProgress) {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "A run is already queued", nil)
	}
	return info, err
}

// SessionOpener authenticates against the mailbox and the ledger service.
// The returned function releases both.
type SessionOpener func(ctx context.Context) (Session, func(), error)

// RunTaskHandler returns the worker handler for TaskRun. Each task opens a
// fresh session, runs once and closes the session.
func (r *Remit) RunTaskHandler(open SessionOpener, defaults config.MailboxConfig) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var req RunRequest
		if len(task.Payload()) > 0 {
			if err := json.Unmarshal(task.Payload(), &req); err != nil {
				return fmt.Errorf("decoding run request: %v: %w", err, asynq.SkipRetry)
			}
		}

		sess, closeSession, err := open(ctx)
		if err != nil {
			return fmt.Errorf("opening session: %w", err)
		}
		defer closeSession()

		run, err := r.Run(ctx, sess, req.Options(r.now(), defaults))
		if errors.Is(err, ErrRunInProgress) {
			logrus.Info("skipping scheduled run: another run holds the lock")
			return nil
		}
		if err != nil {
			return err
		}

		if w := task.ResultWriter(); w != nil {
			if result, err := json.Marshal(run); err == nil {
				_, _ = w.Write(result)
			}
		}
		return nil
	}
}
