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

package jms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/go-amqp"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// Endpoint sends session events to an AMQP 1.0 address, the protocol JMS brokers such
// as ActiveMQ Artemis expose.
type Endpoint struct {
	name     string
	url      string
	address  string
	conn     *amqp.Conn
	sendSess *amqp.Session
	sender   *amqp.Sender
	logger   *slog.Logger
}

func New(name, url, address string, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		name:    name,
		url:     url,
		address: address,
		logger:  logger,
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "jms" }

func (e *Endpoint) Connect(ctx context.Context) error {
	if e.address == "" {
		return fmt.Errorf("jms endpoint %s: address is required", e.name)
	}
	var err error
	e.conn, err = amqp.Dial(ctx, e.url, nil)
	if err != nil {
		return fmt.Errorf("jms dial: %w", err)
	}

	e.sendSess, err = e.conn.NewSession(ctx, nil)
	if err != nil {
		return fmt.Errorf("jms send session: %w", err)
	}
	e.sender, err = e.sendSess.NewSender(ctx, e.address, nil)
	if err != nil {
		return fmt.Errorf("jms sender: %w", err)
	}

	e.logger.Info("jms endpoint connected", "name", e.name, "url", e.url, "address", e.address)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	if e.sender != nil {
		e.sender.Close(ctx)
	}
	if e.sendSess != nil {
		e.sendSess.Close(ctx)
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

// Message builds the AMQP message of evt. Event name and session code travel as
// application properties so JMS selectors can filter on them.
func Message(evt core.Event) (*amqp.Message, error) {
	body, err := evt.Record()
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return &amqp.Message{
		Data: [][]byte{body},
		Properties: &amqp.MessageProperties{
			MessageID: evt.ID,
		},
		ApplicationProperties: map[string]any{
			"event":       evt.Name,
			"sessionCode": evt.SessionCode,
		},
	}, nil
}

func (e *Endpoint) Send(ctx context.Context, evt core.Event) error {
	if e.sender == nil {
		return fmt.Errorf("jms endpoint %s: not connected", e.name)
	}
	msg, err := Message(evt)
	if err != nil {
		return err
	}
	return e.sender.Send(ctx, msg, nil)
}
