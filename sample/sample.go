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

package sample

// Sample is one decoded reporting instant as received from an agent.
// Values are in schema order. Counter values are raw cumulative totals
// here; they only become deltas once the rollup engine has a previous
// latest row to subtract from.
type Sample struct {
	Timestamp int64
	MachineId string
	Hostname  string
	Values    []float64
}

// Row is a stored row in the latest snapshot or in one of the
// resolution tiers: a timestamp plus values in schema order. In the
// latest snapshot counter values are cumulative; in tier rows they are
// per-interval deltas.
type Row struct {
	Timestamp int64
	Values    []float64
}

// Row returns the sample as a latest-snapshot row (raw values).
func (s *Sample) Row() *Row {
	vals := make([]float64, len(s.Values))
	copy(vals, s.Values)
	return &Row{Timestamp: s.Timestamp, Values: vals}
}

// Aggregate consolidates tier rows into a single coarser row: counter
// fields are summed (they are already per-interval deltas, so the sum
// is the delta over the whole window), gauge fields are averaged, and
// the timestamp is the max of the window. Returns false when rows is
// empty - an aggregate of an empty set is never produced.
func Aggregate(schema Schema, rows []*Row) (*Row, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	out := &Row{Values: make([]float64, len(schema))}
	for _, row := range rows {
		if row.Timestamp > out.Timestamp {
			out.Timestamp = row.Timestamp
		}
		for i := range schema {
			out.Values[i] += row.Values[i]
		}
	}
	n := float64(len(rows))
	for i, f := range schema {
		if f.Kind == Gauge {
			out.Values[i] /= n
		}
	}
	return out, true
}
