/*
Copyright 2024 Ledgerscan Authors.

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
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"LEDGERSCAN_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEDGERSCAN_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"LEDGERSCAN_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSCAN_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSCAN_REDIS_DNS"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSCAN_TYPESENSE_DNS"`
}

type StorageConfig struct {
	Bucket          string `json:"bucket" envconfig:"LEDGERSCAN_STORAGE_BUCKET"`
	Region          string `json:"region" envconfig:"LEDGERSCAN_STORAGE_REGION"`
	Endpoint        string `json:"endpoint" envconfig:"LEDGERSCAN_STORAGE_ENDPOINT"`
	AccessKeyID     string `json:"access_key_id" envconfig:"LEDGERSCAN_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"LEDGERSCAN_STORAGE_SECRET_ACCESS_KEY"`
	// TTLs in minutes for signed URLs. The original artifact deliberately
	// gets a shorter lifetime than the redacted one.
	RedactedURLTTLMin int `json:"redacted_url_ttl_min" envconfig:"LEDGERSCAN_STORAGE_REDACTED_URL_TTL_MIN"`
	OriginalURLTTLMin int `json:"original_url_ttl_min" envconfig:"LEDGERSCAN_STORAGE_ORIGINAL_URL_TTL_MIN"`
}

type LocalOCRConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"LEDGERSCAN_OCR_LOCAL_ENABLED"`
	TesseractLang string `json:"tesseract_lang" envconfig:"LEDGERSCAN_OCR_LOCAL_TESSERACT_LANG"`
}

type DocscanOCRConfig struct {
	Url        string `json:"url" envconfig:"LEDGERSCAN_OCR_DOCSCAN_URL"`
	ApiKey     string `json:"api_key" envconfig:"LEDGERSCAN_OCR_DOCSCAN_API_KEY"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"LEDGERSCAN_OCR_DOCSCAN_TIMEOUT_SEC"`
}

type VisionOCRConfig struct {
	ApiKey     string `json:"api_key" envconfig:"LEDGERSCAN_OCR_VISION_API_KEY"`
	Model      string `json:"model" envconfig:"LEDGERSCAN_OCR_VISION_MODEL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"LEDGERSCAN_OCR_VISION_TIMEOUT_SEC"`
}

type OCRConfig struct {
	Local   LocalOCRConfig   `json:"local"`
	Docscan DocscanOCRConfig `json:"docscan"`
	Vision  VisionOCRConfig  `json:"vision"`
}

type GuardrailsConfig struct {
	ModerationUrl    string   `json:"moderation_url" envconfig:"LEDGERSCAN_GUARDRAILS_MODERATION_URL"`
	ModerationApiKey string   `json:"moderation_api_key" envconfig:"LEDGERSCAN_GUARDRAILS_MODERATION_API_KEY"`
	Entities         []string `json:"entities" envconfig:"LEDGERSCAN_GUARDRAILS_ENTITIES"`
}

type QueueConfig struct {
	WebhookQueue    string `json:"webhook_queue" envconfig:"LEDGERSCAN_QUEUE_WEBHOOK"`
	IndexQueue      string `json:"index_queue" envconfig:"LEDGERSCAN_QUEUE_INDEX"`
	DownstreamQueue string `json:"downstream_queue" envconfig:"LEDGERSCAN_QUEUE_DOWNSTREAM"`
	MonitoringPort  string `json:"monitoring_port" envconfig:"LEDGERSCAN_QUEUE_MONITORING_PORT"`
}

type WorkerConfig struct {
	Count             int `json:"count" envconfig:"LEDGERSCAN_WORKER_COUNT"`
	BatchSize         int `json:"batch_size" envconfig:"LEDGERSCAN_WORKER_BATCH_SIZE"`
	PollIntervalSec   int `json:"poll_interval_sec" envconfig:"LEDGERSCAN_WORKER_POLL_INTERVAL_SEC"`
	MaxRetries        int `json:"max_retries" envconfig:"LEDGERSCAN_WORKER_MAX_RETRIES"`
	StuckThresholdMin int `json:"stuck_threshold_min" envconfig:"LEDGERSCAN_WORKER_STUCK_THRESHOLD_MIN"`
}

type PipelineConfig struct {
	ReviewConfidenceThreshold float64 `json:"review_confidence_threshold" envconfig:"LEDGERSCAN_PIPELINE_REVIEW_CONFIDENCE_THRESHOLD"`
	ReviewMaxLowRows          int     `json:"review_max_low_rows" envconfig:"LEDGERSCAN_PIPELINE_REVIEW_MAX_LOW_ROWS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEDGERSCAN_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEDGERSCAN_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEDGERSCAN_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"LEDGERSCAN_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"LEDGERSCAN_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	TypeSense       TypeSenseConfig  `json:"typesense"`
	TypeSenseKey    string           `json:"type_sense_key" envconfig:"LEDGERSCAN_TYPESENSE_KEY"`
	Storage         StorageConfig    `json:"storage"`
	OCR             OCRConfig        `json:"ocr"`
	Guardrails      GuardrailsConfig `json:"guardrails"`
	Queue           QueueConfig      `json:"queue"`
	Worker          WorkerConfig     `json:"worker"`
	Pipeline        PipelineConfig   `json:"pipeline"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ledgerscan", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called ledgerscan.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Ledgerscan Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Storage.RedactedURLTTLMin <= 0 {
		cnf.Storage.RedactedURLTTLMin = 60
	}
	if cnf.Storage.OriginalURLTTLMin <= 0 {
		cnf.Storage.OriginalURLTTLMin = 10
	}
	if cnf.Storage.OriginalURLTTLMin > cnf.Storage.RedactedURLTTLMin {
		// the unredacted artifact never outlives the redacted one
		cnf.Storage.OriginalURLTTLMin = cnf.Storage.RedactedURLTTLMin
	}

	if cnf.OCR.Local.TesseractLang == "" {
		cnf.OCR.Local.TesseractLang = "eng"
	}
	if cnf.OCR.Docscan.TimeoutSec <= 0 {
		cnf.OCR.Docscan.TimeoutSec = 30
	}
	if cnf.OCR.Vision.TimeoutSec <= 0 {
		cnf.OCR.Vision.TimeoutSec = 60
	}
	if cnf.OCR.Vision.Model == "" {
		cnf.OCR.Vision.Model = "gemini-1.5-flash"
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "new:index"
	}
	if cnf.Queue.DownstreamQueue == "" {
		cnf.Queue.DownstreamQueue = "new:downstream"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	if cnf.Worker.Count <= 0 {
		cnf.Worker.Count = 2
	}
	if cnf.Worker.BatchSize <= 0 {
		cnf.Worker.BatchSize = 10
	}
	if cnf.Worker.PollIntervalSec <= 0 {
		cnf.Worker.PollIntervalSec = 10
	}
	if cnf.Worker.MaxRetries <= 0 {
		cnf.Worker.MaxRetries = 3
	}
	if cnf.Worker.StuckThresholdMin <= 0 {
		cnf.Worker.StuckThresholdMin = 60
	}

	if cnf.Pipeline.ReviewConfidenceThreshold <= 0 {
		cnf.Pipeline.ReviewConfidenceThreshold = 0.6
	}
	if cnf.Pipeline.ReviewMaxLowRows <= 0 {
		cnf.Pipeline.ReviewMaxLowRows = 2
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

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Worker.BatchSize <= 0 {
		cnf.Worker.BatchSize = 10
	}
	if cnf.Worker.MaxRetries <= 0 {
		cnf.Worker.MaxRetries = 3
	}
	if cnf.Pipeline.ReviewConfidenceThreshold <= 0 {
		cnf.Pipeline.ReviewConfidenceThreshold = 0.6
	}
	if cnf.Pipeline.ReviewMaxLowRows <= 0 {
		cnf.Pipeline.ReviewMaxLowRows = 2
	}
	if cnf.Storage.RedactedURLTTLMin <= 0 {
		cnf.Storage.RedactedURLTTLMin = 60
	}
	if cnf.Storage.OriginalURLTTLMin <= 0 {
		cnf.Storage.OriginalURLTTLMin = 10
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
