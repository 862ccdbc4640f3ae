// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package replay

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Publisher delivers notifications. *notification.Dispatcher implements it.
type Publisher interface {
	Publish(n any)
}

// Options tunes a replay.
type Options struct {
	// Concurrency bounds the number of executions replayed at once.
	// Zero means no limit.
	Concurrency int

	// Base anchors event offsets. Defaults to the time Replay is called.
	Base time.Time
}

// Result summarizes a replay.
type Result struct {
	Events     int
	Executions int
	Duration   time.Duration
}

// Replay publishes events, one goroutine per correlation id. Events of one
// execution keep their file order; executions run concurrently with each
// other. Cancelling ctx stops publishing between events.
func Replay(ctx context.Context, pub Publisher, events []Event, opts Options) (Result, error) {
	start := time.Now()
	base := opts.Base
	if base.IsZero() {
		base = start
	}

	order, groups := groupByExecution(events)

	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for _, id := range order {
		group := groups[id]
		g.Go(func() error {
			for _, ev := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				pub.Publish(ev.Notification(base))
			}
			return nil
		})
	}
	err := g.Wait()

	return Result{
		Events:     len(events),
		Executions: len(order),
		Duration:   time.Since(start),
	}, err
}

// groupByExecution splits events by correlation id, keeping first-seen
// order of ids and file order within each id.
func groupByExecution(events []Event) ([]string, map[string][]Event) {
	var order []string
	groups := make(map[string][]Event)
	for _, ev := range events {
		if _, ok := groups[ev.CorrelationID]; !ok {
			order = append(order, ev.CorrelationID)
		}
		groups[ev.CorrelationID] = append(groups[ev.CorrelationID], ev)
	}
	return order, groups
}
