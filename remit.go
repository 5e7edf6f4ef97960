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
	"embed"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studiopay/remit/config"
	"github.com/studiopay/remit/database"
	"github.com/studiopay/remit/internal/cache"
	redis_db "github.com/studiopay/remit/internal/redis-db"
)

const (
	runLockKey     = "remit:run-lock"
	latestRunKey   = "remit:latest-run"
	runLockTTL     = 15 * time.Minute
	latestRunTTL   = 24 * time.Hour
	defaultTimeout = 30 * time.Second
)

// Remit is the reconciliation engine plus the stores it reports into.
type Remit struct {
	datasource  database.IDataSource
	cache       cache.Cache
	redis       redis.UniversalClient
	queue       *Queue
	allocator   *Allocator
	safeMode    bool
	callTimeout time.Duration
	now         func() time.Time
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewRemit builds the engine from the loaded configuration.
//
// Parameters:
// - db database.IDataSource: run history store, nil when no data source is configured.
//
// Returns:
// - *Remit: the engine.
// - error: when the configuration is missing or Redis is configured but unreachable.
func NewRemit(db database.IDataSource) (*Remit, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	r := &Remit{
		datasource:  db,
		allocator:   NewAllocator(cfg.CategoryPriority),
		safeMode:    cfg.SafeMode,
		callTimeout: time.Duration(cfg.Studio.TimeoutSec) * time.Second,
		now:         time.Now,
	}
	if r.callTimeout <= 0 {
		r.callTimeout = defaultTimeout
	}

	if cfg.Redis.Dns != "" {
		redisClient, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		r.redis = redisClient.Client()
		r.cache = cache.NewCache(r.redis)
		r.queue, err = NewQueue(cfg)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// SafeMode reports whether intents stop before anything is applied.
func (r *Remit) SafeMode() bool {
	return r.safeMode
}

// Close releases the Redis client and the queue connections.
func (r *Remit) Close() error {
	if r.queue != nil {
		_ = r.queue.Close()
	}
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
