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
	"fmt"

	"github.com/kunlun/kunlun/sample"
)

// Store is what the engine needs from a row store. Implementations
// keep an append-only, timestamp-ordered row set per (tier, client)
// plus one mutable latest-snapshot row per client.
type Store interface {
	// GetLatest returns the latest-snapshot row for a client, or
	// (nil, nil) if the client has never reported.
	GetLatest(clientId int64) (*sample.Row, error)

	// PutLatest replaces the latest-snapshot row (upsert).
	PutLatest(clientId int64, row *sample.Row) error

	// AppendTier appends a row keyed by (clientId, row.Timestamp).
	AppendTier(t Tier, clientId int64, row *sample.Row) error

	// QueryTier returns up to limit rows with timestamp > since,
	// ascending if asc, else descending. since <= 0 means no lower
	// bound; limit <= 0 means the tier default.
	QueryTier(t Tier, clientId int64, since int64, limit int, asc bool) ([]*sample.Row, error)

	// PruneTier deletes rows with timestamp < olderThan.
	PruneTier(t Tier, clientId int64, olderThan int64) error

	// AggregateTier consolidates the rows of t in the half-open window
	// (winStart, winEnd] into a single row per the schema's field kinds
	// (counters summed, gauges averaged, timestamp = max). Returns
	// (nil, nil) when the window holds no rows.
	AggregateTier(t Tier, clientId int64, winStart, winEnd int64, schema sample.Schema) (*sample.Row, error)
}

// StoreError reports which store operation of which tier failed, so
// that a latest-write failure (state still consistent) can be told
// apart from a cascade failure (tier stale until the next boundary).
type StoreError struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Tier, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
