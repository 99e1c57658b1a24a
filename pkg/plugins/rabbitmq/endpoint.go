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

package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const defaultExchange = "listening-party"

// Endpoint publishes session events to a topic exchange with routing keys
// session.{code}.{event}. A configured queue is declared and bound to every key.
type Endpoint struct {
	name     string
	url      string
	exchange string
	queue    string
	conn     *amqp.Connection
	mu       sync.Mutex
	pubCh    *amqp.Channel
	logger   *slog.Logger
}

func New(name, url, exchange, queue string, logger *slog.Logger) *Endpoint {
	if exchange == "" {
		exchange = defaultExchange
	}
	return &Endpoint{
		name:     name,
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger,
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "rabbitmq" }

// RoutingKey maps an event onto the exchange's key space.
func RoutingKey(evt core.Event) string {
	return "session." + evt.SessionCode + "." + strings.ReplaceAll(evt.Name, ":", ".")
}

func (e *Endpoint) Connect(ctx context.Context) error {
	var err error
	e.conn, err = amqp.Dial(e.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	e.pubCh, err = e.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq publish channel: %w", err)
	}

	if err := e.pubCh.ExchangeDeclare(e.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %s: %w", e.exchange, err)
	}
	if e.queue != "" {
		if _, err := e.pubCh.QueueDeclare(e.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue declare %s: %w", e.queue, err)
		}
		if err := e.pubCh.QueueBind(e.queue, "session.#", e.exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue bind %s: %w", e.queue, err)
		}
	}

	e.logger.Info("rabbitmq endpoint connected", "name", e.name, "exchange", e.exchange, "queue", e.queue)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pubCh != nil {
		e.pubCh.Close()
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, evt core.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pubCh == nil {
		return fmt.Errorf("rabbitmq endpoint %s: not connected", e.name)
	}
	body, err := evt.Record()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return e.pubCh.PublishWithContext(ctx,
		e.exchange,
		RoutingKey(evt),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			MessageId:   evt.ID,
			Timestamp:   evt.Timestamp,
			Type:        evt.Name,
		},
	)
}
