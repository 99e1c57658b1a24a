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

package solace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"solace.dev/go/messaging"
	"solace.dev/go/messaging/pkg/solace"
	"solace.dev/go/messaging/pkg/solace/config"
	"solace.dev/go/messaging/pkg/solace/resource"
)

const defaultTopicPrefix = "listening-party"

// Endpoint publishes session events as direct messages on {prefix}/{code}/{event}.
type Endpoint struct {
	name        string
	host        string
	vpn         string
	username    string
	password    string
	topicPrefix string
	service     solace.MessagingService
	publisher   solace.DirectMessagePublisher
	logger      *slog.Logger
}

func New(name, host, vpn, username, password, topicPrefix string, logger *slog.Logger) *Endpoint {
	if topicPrefix == "" {
		topicPrefix = defaultTopicPrefix
	}
	return &Endpoint{
		name:        name,
		host:        host,
		vpn:         vpn,
		username:    username,
		password:    password,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		logger:      logger,
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "solace" }

func (e *Endpoint) Topic(evt core.Event) string {
	return e.topicPrefix + "/" + evt.SessionCode + "/" + strings.ReplaceAll(evt.Name, ":", "/")
}

func (e *Endpoint) Connect(ctx context.Context) error {
	var err error
	e.service, err = messaging.NewMessagingServiceBuilder().
		FromConfigurationProvider(config.ServicePropertyMap{
			config.TransportLayerPropertyHost:                e.host,
			config.ServicePropertyVPNName:                    e.vpn,
			config.AuthenticationPropertySchemeBasicUserName: e.username,
			config.AuthenticationPropertySchemeBasicPassword: e.password,
		}).Build()
	if err != nil {
		return fmt.Errorf("solace build: %w", err)
	}
	if err = e.service.Connect(); err != nil {
		return fmt.Errorf("solace connect: %w", err)
	}
	e.publisher, err = e.service.CreateDirectMessagePublisherBuilder().Build()
	if err != nil {
		return fmt.Errorf("solace publisher build: %w", err)
	}
	if err = e.publisher.Start(); err != nil {
		return fmt.Errorf("solace publisher start: %w", err)
	}
	e.logger.Info("solace endpoint connected", "name", e.name, "host", e.host, "topic_prefix", e.topicPrefix)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	if e.publisher != nil {
		e.publisher.Terminate(5 * time.Second)
	}
	if e.service != nil {
		return e.service.Disconnect()
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, evt core.Event) error {
	if e.publisher == nil {
		return fmt.Errorf("solace endpoint %s: not connected", e.name)
	}
	payload, err := evt.Record()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	msg, err := e.service.MessageBuilder().BuildWithByteArrayPayload(payload)
	if err != nil {
		return err
	}
	return e.publisher.Publish(msg, resource.TopicOf(e.Topic(evt)))
}
