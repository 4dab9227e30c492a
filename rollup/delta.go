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

import "github.com/kunlun/kunlun/sample"

// ComputeDelta derives the per-interval seconds-tier row from a new
// sample and the previously stored latest row for the same client:
// gauge fields copy the new value, counter fields become newValue -
// previousValue. The delta of a counter is only meaningful if no
// counter reset (reboot) happened in between; a reset shows up as a
// negative delta and is surfaced as-is.
//
// Pure function, no I/O. prev must not be nil - the first-ever sample
// for a client establishes the baseline and produces no delta row.
func ComputeDelta(schema sample.Schema, s *sample.Sample, prev *sample.Row) *sample.Row {
	row := &sample.Row{Timestamp: s.Timestamp, Values: make([]float64, len(schema))}
	for i, f := range schema {
		if f.Kind == sample.Counter {
			row.Values[i] = s.Values[i] - prev.Values[i]
		} else {
			row.Values[i] = s.Values[i]
		}
	}
	return row
}
