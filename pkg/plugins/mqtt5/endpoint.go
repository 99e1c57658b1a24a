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

package mqtt5

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const (
	defaultTopicPrefix = "listening-party"
	connectTimeout     = 10 * time.Second
)

// Endpoint publishes session events to MQTT 5 topics of the form {prefix}/{code}/{event}.
type Endpoint struct {
	name        string
	brokerURL   string
	topicPrefix string
	qos         byte
	cm          *autopaho.ConnectionManager
	logger      *slog.Logger
}

func New(name, brokerURL, topicPrefix string, qos byte, logger *slog.Logger) *Endpoint {
	if topicPrefix == "" {
		topicPrefix = defaultTopicPrefix
	}
	if qos > 2 {
		qos = 1
	}
	return &Endpoint{
		name:        name,
		brokerURL:   brokerURL,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		qos:         qos,
		logger:      logger,
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "mqtt5" }

// Topic returns the publish topic of evt.
func (e *Endpoint) Topic(evt core.Event) string {
	return e.topicPrefix + "/" + evt.SessionCode + "/" + strings.ReplaceAll(evt.Name, ":", "/")
}

func (e *Endpoint) Connect(ctx context.Context) error {
	serverURL, err := url.Parse(e.brokerURL)
	if err != nil {
		return fmt.Errorf("mqtt5 invalid URL: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			e.logger.Info("mqtt5 connection up", "name", e.name)
		},
		OnConnectError: func(err error) {
			e.logger.Warn("mqtt5 connection attempt failed", "name", e.name, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "party-" + e.name + "-" + uuid.New().String()[:8],
		},
	}

	e.cm, err = autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt5 connection: %w", err)
	}

	// ctx owns the connection manager; only the first wait is bounded.
	awaitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := e.cm.AwaitConnection(awaitCtx); err != nil {
		return fmt.Errorf("mqtt5 await connection: %w", err)
	}

	e.logger.Info("mqtt5 endpoint connected", "name", e.name, "broker", e.brokerURL, "topic_prefix", e.topicPrefix)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	if e.cm != nil {
		return e.cm.Disconnect(ctx)
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, evt core.Event) error {
	if e.cm == nil {
		return fmt.Errorf("mqtt5 endpoint %s: not connected", e.name)
	}
	payload, err := evt.Record()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	_, err = e.cm.Publish(ctx, &paho.Publish{
		Topic:   e.Topic(evt),
		QoS:     e.qos,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	return err
}
