//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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

package rollup

import (
	"log"
	"sync/atomic"

	"github.com/kunlun/kunlun/sample"
)

// Outcome of an ingest.
type Outcome int

const (
	// Baseline: first-ever sample for the client, latest row written,
	// no delta row (there is no baseline to subtract from).
	Baseline Outcome = iota + 1
	// Delta: a seconds-tier delta row was appended.
	Delta
)

func (o Outcome) String() string {
	if o == Baseline {
		return "baseline"
	}
	return "delta"
}

// Engine orchestrates the rollup cascade against a Store. It holds no
// per-client state; concurrent ingests for different clients are
// independent. Serializing concurrent ingests for the *same* client is
// the caller's job (see receiver).
type Engine struct {
	store      Store
	schema     sample.Schema
	interval   int64 // base ingest interval, seconds
	emptySkips int64
}

func NewEngine(store Store, schema sample.Schema, interval int64) *Engine {
	return &Engine{store: store, schema: schema, interval: interval}
}

func (e *Engine) Schema() sample.Schema { return e.schema }
func (e *Engine) Interval() int64       { return e.interval }

// EmptySkips returns how many cadence boundaries were skipped because
// the aggregation window held no source rows. Not an error condition.
func (e *Engine) EmptySkips() int64 { return atomic.LoadInt64(&e.emptySkips) }

// Ingest runs the full cascade for one sample:
//
//  1. read the latest row (absent on first contact)
//  2. upsert the latest row with the raw sample
//  3. if a previous latest existed, append the delta as a seconds row
//     and prune the seconds tier
//  4. on a minute boundary, aggregate seconds into one minutes row and
//     prune the minutes tier; same one tier up on an hour boundary
//
// Any store failure aborts the remaining steps and is returned as a
// *StoreError. Writes already committed stay committed - the design
// tolerates "latest ahead of history by one interval" rather than
// requiring multi-row transactions.
func (e *Engine) Ingest(clientId int64, s *sample.Sample) (Outcome, error) {
	prev, err := e.store.GetLatest(clientId)
	if err != nil {
		return 0, &StoreError{Latest, "read", err}
	}

	if err = e.store.PutLatest(clientId, s.Row()); err != nil {
		return 0, &StoreError{Latest, "write", err}
	}

	if prev == nil {
		return Baseline, nil
	}

	delta := ComputeDelta(e.schema, s, prev)
	if err = e.store.AppendTier(Seconds, clientId, delta); err != nil {
		return 0, &StoreError{Seconds, "append", err}
	}
	if err = e.prune(Seconds, clientId, s.Timestamp); err != nil {
		return 0, err
	}

	// Rollups fire only when a sample lands exactly on a boundary; if
	// the ingest stream skips a boundary timestamp, that rollup is
	// skipped for good (no catch-up).
	for _, t := range []Tier{Minutes, Hours} {
		if s.Timestamp%t.Cadence() != 0 {
			continue
		}
		if err = e.aggregate(t, clientId, s.Timestamp); err != nil {
			return 0, err
		}
	}
	return Delta, nil
}

// aggregate consolidates the finer tier over the window ending at the
// boundary ts into one row of t, then prunes t.
func (e *Engine) aggregate(t Tier, clientId, ts int64) error {
	src := t.Finer()
	row, err := e.store.AggregateTier(src, clientId, ts-t.Cadence(), ts, e.schema)
	if err != nil {
		return &StoreError{src, "aggregate", err}
	}
	if row == nil {
		// Empty window: nothing reported in the last cadence. Skip,
		// never write an aggregate of an empty set.
		atomic.AddInt64(&e.emptySkips, 1)
		log.Printf("rollup: client %d: empty %s window at %d, skipping %s row", clientId, src, ts, t)
		return nil
	}
	if err = e.store.AppendTier(t, clientId, row); err != nil {
		return &StoreError{t, "append", err}
	}
	return e.prune(t, clientId, ts)
}

func (e *Engine) prune(t Tier, clientId, ts int64) error {
	if err := e.store.PruneTier(t, clientId, ts-t.Retention()); err != nil {
		return &StoreError{t, "prune", err}
	}
	return nil
}
