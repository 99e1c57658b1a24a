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

package plugins

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wso2/api-platform/listening-party/pkg/config"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/jms"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/kafka"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/mqtt5"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/rabbitmq"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/solace"
)

// NewSink builds the event sink described by cfg. It does not connect.
func NewSink(cfg config.EndpointConfig, logger *slog.Logger) (core.Endpoint, error) {
	c := cfg.Config
	switch cfg.Type {
	case "kafka":
		var brokers []string
		for _, b := range strings.Split(c["brokers"], ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		return kafka.New(cfg.Name, brokers, c["topic"], logger), nil
	case "mqtt5":
		qos := 1
		if v := c["qos"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 2 {
				return nil, fmt.Errorf("sink %s: invalid qos %q", cfg.Name, v)
			}
			qos = n
		}
		return mqtt5.New(cfg.Name, c["url"], c["topic_prefix"], byte(qos), logger), nil
	case "rabbitmq":
		return rabbitmq.New(cfg.Name, c["url"], c["exchange"], c["queue"], logger), nil
	case "jms":
		return jms.New(cfg.Name, c["url"], c["address"], logger), nil
	case "solace":
		return solace.New(cfg.Name, c["host"], c["vpn"], c["username"], c["password"], c["topic_prefix"], logger), nil
	default:
		return nil, fmt.Errorf("sink %s: unknown type %q", cfg.Name, cfg.Type)
	}
}

// RegisterSinks builds and registers every configured sink.
func (r *Registry) RegisterSinks(sinks []config.EndpointConfig) error {
	for _, s := range sinks {
		ep, err := NewSink(s, r.logger)
		if err != nil {
			return err
		}
		r.RegisterEndpoint(ep)
	}
	return nil
}
