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

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testSchema() Schema {
	return Schema{
		{"g1", Gauge},
		{"c1", Counter},
		{"g2", Gauge},
	}
}

func wireRecord(ts int64, vals []float64, machineId, hostname string) string {
	parts := []string{fmt.Sprintf("%d", ts)}
	for _, v := range vals {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	parts = append(parts, machineId, hostname)
	return strings.Join(parts, ",")
}

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()
	if len(s) != 34 {
		t.Errorf("DefaultSchema: expected 34 fields, got %d", len(s))
	}
	if s.Arity() != 37 {
		t.Errorf("Arity: expected 37, got %d", s.Arity())
	}
	// Spot check a couple of kinds
	if i := s.IndexOf("load_1min"); i < 0 || s[i].Kind != Gauge {
		t.Errorf("load_1min should be a gauge")
	}
	if i := s.IndexOf("cpu_user"); i < 0 || s[i].Kind != Counter {
		t.Errorf("cpu_user should be a counter")
	}
	if i := s.IndexOf("default_interface_net_rx_bytes"); i < 0 || s[i].Kind != Counter {
		t.Errorf("default_interface_net_rx_bytes should be a counter")
	}
	if s.IndexOf("no_such_field") != -1 {
		t.Errorf("IndexOf should return -1 for unknown fields")
	}
}

func TestColumnIndexes(t *testing.T) {
	schema := testSchema()
	idx, err := schema.ColumnIndexes([]string{"g2", "c1"})
	if err != nil {
		t.Fatalf("ColumnIndexes: %v", err)
	}
	if len(idx) != 2 || idx[0] != 2 || idx[1] != 1 {
		t.Errorf("ColumnIndexes: expected [2 1], got %v", idx)
	}
	if _, err = schema.ColumnIndexes([]string{"g1", "bogus"}); err == nil {
		t.Errorf("ColumnIndexes should fail on unknown name")
	}
}

func TestDecodeList(t *testing.T) {
	schema := testSchema()

	s, err := DecodeList(schema, wireRecord(120, []float64{1.5, 200, 3}, "abc123", "host1"), 10)
	if err != nil {
		t.Fatalf("DecodeList: %v", err)
	}
	if s.Timestamp != 120 || s.MachineId != "abc123" || s.Hostname != "host1" {
		t.Errorf("DecodeList: wrong frame fields: %+v", s)
	}
	if len(s.Values) != 3 || s.Values[0] != 1.5 || s.Values[1] != 200 || s.Values[2] != 3 {
		t.Errorf("DecodeList: wrong values: %v", s.Values)
	}

	bad := []string{
		"120,1.5,200,abc123,host1",             // too few fields
		"120,1.5,200,3,4,abc123,host1",         // too many fields
		"abc,1.5,200,3,abc123,host1",           // non-integer timestamp
		"125,1.5,200,3,abc123,host1",           // not interval aligned
		"120,1.5,200,3,,host1",                 // empty machine id
		"120,1.5,xyz,3,abc123,host1",         // non-numeric field
		"120,NaN,200,3,abc123,host1",         // NaN rejected
		"120,1.5,+Inf,3,abc123,host1",        // Inf rejected
		wireRecord(120, nil, "abc", "host1"), // empty metric list
	}
	for _, rec := range bad {
		if _, err := DecodeList(schema, rec, 10); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeList(%q): expected ErrMalformed, got %v", rec, err)
		}
	}
}

func TestSampleRow(t *testing.T) {
	s := &Sample{Timestamp: 50, Values: []float64{1, 2, 3}}
	row := s.Row()
	if row.Timestamp != 50 {
		t.Errorf("Row: wrong timestamp %d", row.Timestamp)
	}
	row.Values[0] = 99
	if s.Values[0] != 1 {
		t.Errorf("Row must copy values, not alias them")
	}
}

func TestAggregate(t *testing.T) {
	schema := testSchema()

	if _, ok := Aggregate(schema, nil); ok {
		t.Errorf("Aggregate of an empty set should report not-ok")
	}

	rows := []*Row{
		{Timestamp: 10, Values: []float64{2, 5, 8}},
		{Timestamp: 30, Values: []float64{4, 7, 2}},
		{Timestamp: 20, Values: []float64{6, 3, 5}},
	}
	out, ok := Aggregate(schema, rows)
	if !ok {
		t.Fatalf("Aggregate: unexpectedly not ok")
	}
	if out.Timestamp != 30 {
		t.Errorf("Aggregate: timestamp should be max (30), got %d", out.Timestamp)
	}
	if out.Values[0] != 4 { // gauge: (2+4+6)/3
		t.Errorf("Aggregate: gauge should average to 4, got %v", out.Values[0])
	}
	if out.Values[1] != 15 { // counter: 5+7+3
		t.Errorf("Aggregate: counter should sum to 15, got %v", out.Values[1])
	}
	if out.Values[2] != 5 { // gauge: (8+2+5)/3
		t.Errorf("Aggregate: gauge should average to 5, got %v", out.Values[2])
	}
}
