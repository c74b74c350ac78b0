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
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/ledgerscan/ledgerscan/config"
	redis_db "github.com/ledgerscan/ledgerscan/internal/redis-db"
)

// Queue dispatches side-channel work over Redis: webhook delivery, search
// indexing, and downstream-stage triggers. Ingestion jobs themselves live in
// the durable postgres queue; this queue only carries fire-and-forget
// notifications derived from them.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// DownstreamPayload is the opaque "invoke next stage" reference handed to the
// downstream trigger after a document reaches ready.
type DownstreamPayload struct {
	DocumentID         string `json:"document_id,omitempty"`
	ConversationTurnID string `json:"conversation_turn_id,omitempty"`
	Stage              string `json:"stage"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns))
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueIndexData enqueues a task to index data in a specified collection.
// Indexing is skipped entirely when no search backend is configured.
//
// Parameters:
// - id string: The ID of the data to index.
// - collection string: The name of the collection to index the data in.
// - data interface{}: The data to be indexed.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueIndexData(id string, collection string, data interface{}) error {
	if q == nil || q.Client == nil {
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload := map[string]interface{}{
		"collection": collection,
		"payload":    data,
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.IndexQueue)}
	task := asynq.NewTask(cfg.Queue.IndexQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued index data: %+v", id)
	return nil
}

// queueDownstreamTrigger enqueues the opaque next-stage invocation for a
// document or conversation turn.
func (q *Queue) queueDownstreamTrigger(payload DownstreamPayload) error {
	if q == nil || q.Client == nil {
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.DownstreamQueue)}
	task := asynq.NewTask(cfg.Queue.DownstreamQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued downstream trigger: %+v", payload.Stage)
	return nil
}
