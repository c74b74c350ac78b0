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

package ledgerscan

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ledgerscan/ledgerscan/cache"
	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/database"
	"github.com/ledgerscan/ledgerscan/guardrails"
	redis_db "github.com/ledgerscan/ledgerscan/internal/redis-db"
	"github.com/ledgerscan/ledgerscan/internal/search"
	"github.com/ledgerscan/ledgerscan/internal/storage"
	"github.com/ledgerscan/ledgerscan/ocr"
)

// Ledgerscan represents the main struct for the Ledgerscan application.
type Ledgerscan struct {
	queue      *Queue
	search     *search.TypesenseClient
	redis      redis.UniversalClient
	datasource database.IDataSource
	storage    storage.Service
	ocr        *ocr.Chain
	guardrails *guardrails.Evaluator
	cache      cache.Cache
}

// cacheStore returns the status cache, which may be nil when Redis caching
// could not be set up; callers treat a nil cache as a pass-through.
func (l *Ledgerscan) cacheStore() cache.Cache {
	return l.cache
}

// NewLedgerscan initializes a new instance of Ledgerscan with the provided database datasource.
// It fetches the configuration and wires the Redis client, dispatch queue, storage
// service, OCR provider chain, guardrails evaluator, and search client.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Ledgerscan: A pointer to the newly created Ledgerscan instance.
// - error: An error if any of the initialization steps fail.
func NewLedgerscan(db database.IDataSource) (*Ledgerscan, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newSearch := search.NewTypesenseClient(configuration.TypeSenseKey, []string{configuration.TypeSense.Dns})

	store, err := storage.NewS3Storage(configuration)
	if err != nil {
		return nil, err
	}

	statusCache, err := cache.NewCache()
	if err != nil {
		logrus.Warnf("status cache disabled: %v", err)
		statusCache = nil
	}

	newLedgerscan := &Ledgerscan{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		search:     newSearch,
		storage:    store,
		ocr:        newOCRChain(configuration),
		guardrails: newEvaluator(configuration),
		cache:      statusCache,
	}
	return newLedgerscan, nil
}

// newOCRChain assembles the provider chain in its fixed priority order: the
// offline extractor first, then the commercial API, then the vision model.
func newOCRChain(cnf *config.Configuration) *ocr.Chain {
	return ocr.NewChain(
		ocr.NewLocalProvider(cnf.OCR.Local.Enabled, cnf.OCR.Local.TesseractLang),
		ocr.NewDocscanProvider(cnf.OCR.Docscan.Url, cnf.OCR.Docscan.ApiKey, time.Duration(cnf.OCR.Docscan.TimeoutSec)*time.Second),
		ocr.NewVisionProvider(cnf.OCR.Vision.ApiKey, cnf.OCR.Vision.Model, time.Duration(cnf.OCR.Vision.TimeoutSec)*time.Second),
	)
}

// newEvaluator builds the guardrails evaluator, registering any extra entity
// kinds named in configuration on top of the defaults.
func newEvaluator(cnf *config.Configuration) *guardrails.Evaluator {
	registry := guardrails.NewRegistry()
	moderation := guardrails.NewHTTPModerationClient(cnf.Guardrails.ModerationUrl, cnf.Guardrails.ModerationApiKey)
	if moderation == nil {
		return guardrails.NewEvaluator(registry, nil)
	}
	return guardrails.NewEvaluator(registry, moderation)
}

// policyFromConfig derives the evaluation policy from configuration. The
// baseline protections stay on regardless; the evaluator itself scopes the
// jailbreak heuristic to chat-origin text.
func policyFromConfig(cnf *config.Configuration, origin guardrails.Origin) guardrails.Policy {
	policy := guardrails.DefaultPolicy()
	policy.Moderation = cnf.Guardrails.ModerationUrl != ""
	if len(cnf.Guardrails.Entities) > 0 {
		kinds := make([]guardrails.EntityKind, 0, len(cnf.Guardrails.Entities))
		for _, e := range cnf.Guardrails.Entities {
			kinds = append(kinds, guardrails.EntityKind(e))
		}
		policy.PIIEntities = append(policy.PIIEntities, kinds...)
	}
	return policy
}
