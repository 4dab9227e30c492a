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

// Package rollup implements the multi-resolution rollup engine: the
// counter-delta calculation, the three-tier cascade with per-tier
// retention, and display downsampling. All state lives behind the
// Store interface; the engine itself keeps nothing between ingests.
package rollup

import "fmt"

// Tier is one of the three stored resolutions. Latest is a pseudo-tier
// used only for error context on latest-snapshot operations.
type Tier int

const (
	Latest Tier = iota - 1
	Seconds
	Minutes
	Hours
)

var tierNames = map[Tier]string{
	Latest:  "latest",
	Seconds: "seconds",
	Minutes: "minutes",
	Hours:   "hours",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier resolves a tier name as it appears in URLs and config.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if t != Latest && name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier: %q", s)
}

// Cadence is the row cadence of the tier in seconds. For the seconds
// tier this is the base ingest interval and is configured on the
// engine, so it is not represented here.
func (t Tier) Cadence() int64 {
	switch t {
	case Minutes:
		return 60
	case Hours:
		return 3600
	}
	return 0
}

// Retention is the tier's retention window in seconds. Rows older than
// latest-timestamp minus retention are pruned after each write; a row
// exactly at the boundary is retained.
func (t Tier) Retention() int64 {
	switch t {
	case Seconds:
		return 3600
	case Minutes:
		return 86400
	case Hours:
		return 31536000
	}
	return 0
}

// Finer returns the tier aggregated into t on cadence boundaries.
func (t Tier) Finer() Tier {
	return t - 1
}

// DefaultLimit is the default row-count cap for tier queries.
func (t Tier) DefaultLimit() int {
	switch t {
	case Seconds:
		return 360
	case Minutes:
		return 1440
	case Hours:
		return 8760
	}
	return 0
}
