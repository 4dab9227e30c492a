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

// Package serde knows how to load/save telemetry rows in some storage.
// Three backends are provided: PostgreSQL, Badger (embedded) and
// memory (tests and development).
package serde

import (
	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

// Registry maps an opaque machine identifier to a stable numeric
// client id. Resolve is an idempotent get-or-create which also updates
// the stored hostname when it changed.
type Registry interface {
	Resolve(machineId, hostname string) (int64, error)
}

// LatestStatus is one client's latest-snapshot row joined with its
// identity, as served by the latest endpoint.
type LatestStatus struct {
	ClientId  int64
	MachineId string
	Hostname  string
	Row       *sample.Row
}

// LatestLister lists every client's latest status.
type LatestLister interface {
	ListLatest() ([]*LatestStatus, error)
}

// SerDe is the full storage contract: the engine's row store plus the
// client registry and the latest listing.
type SerDe interface {
	rollup.Store
	Registry
	LatestLister
	Close() error
}
