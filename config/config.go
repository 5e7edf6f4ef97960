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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT            = "5005"
	DEFAULT_IMAP_HOST       = "imap.gmail.com:993"
	DEFAULT_FOLDER          = "INBOX"
	DEFAULT_PROCESSED_LABEL = "2025 Payments EFT's"
	DEFAULT_RUN_QUEUE       = "remit_runs"
	DEFAULT_SCHEDULE        = "@every 30m"
	DEFAULT_TIMEOUT_SEC     = 30
	DEFAULT_LOGIN_RETRIES   = 3
)

// DefaultCategoryPriority is the order unpaid charge categories are paid down in.
var DefaultCategoryPriority = []string{"Tuition", "Costume Deposit", "Private Lesson", "Registration"}

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"REMIT_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"REMIT_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"REMIT_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"REMIT_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"REMIT_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"REMIT_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"REMIT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REMIT_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REMIT_REDIS_SKIP_TLS_VERIFY"`
}

// MailboxConfig points at the inbox that receives transfer notifications.
type MailboxConfig struct {
	Host           string `json:"host" envconfig:"REMIT_MAILBOX_HOST"`
	Username       string `json:"username" envconfig:"REMIT_MAILBOX_USERNAME"`
	Password       string `json:"password" envconfig:"REMIT_MAILBOX_PASSWORD"`
	Folder         string `json:"folder" envconfig:"REMIT_MAILBOX_FOLDER"`
	ProcessedLabel string `json:"processed_label" envconfig:"REMIT_MAILBOX_PROCESSED_LABEL"`
	LookbackDays   int    `json:"lookback_days" envconfig:"REMIT_MAILBOX_LOOKBACK_DAYS"`
	UnseenOnly     *bool  `json:"unseen_only" envconfig:"REMIT_MAILBOX_UNSEEN_ONLY"`
	TimeoutSec     int    `json:"timeout_sec" envconfig:"REMIT_MAILBOX_TIMEOUT_SEC"`
	LoginRetries   int    `json:"login_retries" envconfig:"REMIT_MAILBOX_LOGIN_RETRIES"`
}

// StudioConfig points at the studio management back office.
type StudioConfig struct {
	BaseURL       string `json:"base_url" envconfig:"REMIT_STUDIO_BASE_URL"`
	Username      string `json:"username" envconfig:"REMIT_STUDIO_USERNAME"`
	Password      string `json:"password" envconfig:"REMIT_STUDIO_PASSWORD"`
	PaymentMethod string `json:"payment_method" envconfig:"REMIT_STUDIO_PAYMENT_METHOD"`
	TimeoutSec    int    `json:"timeout_sec" envconfig:"REMIT_STUDIO_TIMEOUT_SEC"`
	LoginRetries  int    `json:"login_retries" envconfig:"REMIT_STUDIO_LOGIN_RETRIES"`
}

type QueueConfig struct {
	RunQueue       string `json:"run_queue" envconfig:"REMIT_QUEUE_RUN_QUEUE"`
	Schedule       string `json:"schedule" envconfig:"REMIT_QUEUE_SCHEDULE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"REMIT_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REMIT_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REMIT_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REMIT_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"REMIT_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName      string           `json:"project_name" envconfig:"REMIT_PROJECT_NAME"`
	SafeMode         bool             `json:"safe_mode" envconfig:"REMIT_SAFE_MODE"`
	EnableTelemetry  bool             `json:"enable_telemetry" envconfig:"REMIT_ENABLE_TELEMETRY"`
	CategoryPriority []string         `json:"category_priority" envconfig:"REMIT_CATEGORY_PRIORITY"`
	Mailbox          MailboxConfig    `json:"mailbox"`
	Studio           StudioConfig     `json:"studio"`
	Server           ServerConfig     `json:"server"`
	DataSource       DataSourceConfig `json:"data_source"`
	Redis            RedisConfig      `json:"redis"`
	Queue            QueueConfig      `json:"queue"`
	Notification     Notification     `json:"notification"`
	RateLimit        RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("remit", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called remit.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Remit"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Mailbox.Host = strings.TrimSpace(cnf.Mailbox.Host)
	cnf.Mailbox.Username = strings.TrimSpace(cnf.Mailbox.Username)
	cnf.Studio.BaseURL = strings.TrimSpace(cnf.Studio.BaseURL)
	cnf.Studio.Username = strings.TrimSpace(cnf.Studio.Username)

	if cnf.Studio.BaseURL != "" && !strings.HasPrefix(cnf.Studio.BaseURL, "http") {
		return errors.New("studio base_url must be an http(s) URL")
	}
	if cnf.Studio.BaseURL != "" && !strings.HasSuffix(cnf.Studio.BaseURL, "/") {
		cnf.Studio.BaseURL += "/"
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Mailbox.Host == "" {
		cnf.Mailbox.Host = DEFAULT_IMAP_HOST
	}
	if cnf.Mailbox.Folder == "" {
		cnf.Mailbox.Folder = DEFAULT_FOLDER
	}
	if cnf.Mailbox.ProcessedLabel == "" {
		cnf.Mailbox.ProcessedLabel = DEFAULT_PROCESSED_LABEL
	}
	if cnf.Mailbox.LookbackDays <= 0 {
		cnf.Mailbox.LookbackDays = 1
	}
	if cnf.Mailbox.UnseenOnly == nil {
		unseenOnly := true
		cnf.Mailbox.UnseenOnly = &unseenOnly
	}
	if cnf.Mailbox.TimeoutSec <= 0 {
		cnf.Mailbox.TimeoutSec = DEFAULT_TIMEOUT_SEC
	}
	if cnf.Mailbox.LoginRetries <= 0 {
		cnf.Mailbox.LoginRetries = DEFAULT_LOGIN_RETRIES
	}

	if cnf.Studio.TimeoutSec <= 0 {
		cnf.Studio.TimeoutSec = DEFAULT_TIMEOUT_SEC
	}
	if cnf.Studio.LoginRetries <= 0 {
		cnf.Studio.LoginRetries = DEFAULT_LOGIN_RETRIES
	}
	if cnf.Studio.PaymentMethod == "" {
		cnf.Studio.PaymentMethod = "EFT"
	}

	if len(cnf.CategoryPriority) == 0 {
		cnf.CategoryPriority = append([]string(nil), DefaultCategoryPriority...)
	}
	for i, category := range cnf.CategoryPriority {
		cnf.CategoryPriority[i] = strings.TrimSpace(category)
	}

	if cnf.Queue.RunQueue == "" {
		cnf.Queue.RunQueue = DEFAULT_RUN_QUEUE
	}
	if cnf.Queue.Schedule == "" {
		cnf.Queue.Schedule = DEFAULT_SCHEDULE
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5006"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Warning: Data source DNS is empty. Run history will not be persisted.")
	}
	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Run lock, cache and workers are disabled.")
	}

	return nil
}

// UnseenOnlyOrDefault reports whether runs should only consider unread messages.
func (m MailboxConfig) UnseenOnlyOrDefault() bool {
	if m.UnseenOnly == nil {
		return true
	}
	return *m.UnseenOnly
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
