// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// Endpoint mirrors session events to one Kafka topic. Records are keyed by session code so
// a session's events stay ordered within a partition.
type Endpoint struct {
	name    string
	brokers []string
	topic   string
	writer  *kafka.Writer
	logger  *slog.Logger
}

func New(name string, brokers []string, topic string, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		name:    name,
		brokers: brokers,
		topic:   topic,
		logger:  logger,
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "kafka" }

func (e *Endpoint) Connect(ctx context.Context) error {
	if e.topic == "" || len(e.brokers) == 0 {
		return fmt.Errorf("kafka endpoint %s: brokers and topic are required", e.name)
	}
	e.writer = &kafka.Writer{
		Addr:         kafka.TCP(e.brokers...),
		Topic:        e.topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	e.logger.Info("kafka endpoint connected",
		"name", e.name,
		"brokers", strings.Join(e.brokers, ","),
		"topic", e.topic,
	)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	if e.writer != nil {
		return e.writer.Close()
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, evt core.Event) error {
	if e.writer == nil {
		return fmt.Errorf("kafka endpoint %s: not connected", e.name)
	}
	value, err := evt.Record()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.SessionCode),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(evt.Name)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	})
}
