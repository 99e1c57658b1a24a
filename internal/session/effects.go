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

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type effectJob struct {
	name string
	fn   func(ctx context.Context) error
}

// effects runs store writes and chat appends for one actor, in order, off the actor turn.
type effects struct {
	code    string
	jobs    chan effectJob
	timeout time.Duration
	logger  *slog.Logger
	done    chan struct{}
}

func newEffects(code string, size int, timeout time.Duration, logger *slog.Logger) *effects {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	e := &effects{
		code:    code,
		jobs:    make(chan effectJob, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// enqueue never blocks. A full buffer drops the job.
func (e *effects) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case e.jobs <- effectJob{name: name, fn: fn}:
	default:
		e.logger.Warn("side effect queue full, dropping", "session_code", e.code, "effect", name)
	}
}

func (e *effects) run() {
	defer close(e.done)
	for job := range e.jobs {
		if err := e.exec(job); err != nil {
			e.logger.Warn("side effect failed", "session_code", e.code, "effect", job.name, "error", err)
		}
	}
}

func (e *effects) exec(job effectJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	return job.fn(ctx)
}

// close must only be called by the owning actor loop, after its last enqueue.
func (e *effects) close() {
	close(e.jobs)
}

func (e *effects) wait() {
	<-e.done
}
