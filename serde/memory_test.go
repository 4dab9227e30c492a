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

package serde

import (
	"testing"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

func testSchema() sample.Schema {
	return sample.Schema{
		{Name: "gauge_a", Kind: sample.Gauge},
		{Name: "counter_a", Kind: sample.Counter},
	}
}

func TestMemResolve(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()

	id1, err := db.Resolve("machine-1", "host1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	id2, err := db.Resolve("machine-2", "host2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id1 == id2 {
		t.Errorf("different machines must get different ids")
	}

	// Same machine, same id, hostname updated.
	again, err := db.Resolve("machine-1", "host1-renamed")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again != id1 {
		t.Errorf("Resolve must be stable per machine: %d != %d", again, id1)
	}

	if _, err := db.Resolve("", "host"); err == nil {
		t.Errorf("empty machine id must be rejected")
	}
}

func TestMemLatest(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()

	row, err := db.GetLatest(42)
	if err != nil || row != nil {
		t.Fatalf("absent latest should be (nil, nil), got (%v, %v)", row, err)
	}

	if err := db.PutLatest(42, &sample.Row{Timestamp: 100, Values: []float64{1, 2}}); err != nil {
		t.Fatalf("PutLatest: %v", err)
	}
	// Last write wins.
	if err := db.PutLatest(42, &sample.Row{Timestamp: 110, Values: []float64{3, 4}}); err != nil {
		t.Fatalf("PutLatest: %v", err)
	}
	row, err = db.GetLatest(42)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if row.Timestamp != 110 || row.Values[1] != 4 {
		t.Errorf("wrong latest row: %+v", row)
	}
}

func TestMemAppendAndQuery(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()

	for _, ts := range []int64{30, 10, 20} { // out of order on purpose
		err := db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: ts, Values: []float64{float64(ts), 1}})
		if err != nil {
			t.Fatalf("AppendTier(%d): %v", ts, err)
		}
	}
	if err := db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: 20, Values: []float64{0, 0}}); err == nil {
		t.Errorf("duplicate timestamp must be rejected")
	}

	rows, err := db.QueryTier(rollup.Seconds, 1, 0, 0, true)
	if err != nil {
		t.Fatalf("QueryTier: %v", err)
	}
	if len(rows) != 3 || rows[0].Timestamp != 10 || rows[2].Timestamp != 30 {
		t.Errorf("ascending query wrong: %+v", rows)
	}

	rows, _ = db.QueryTier(rollup.Seconds, 1, 0, 2, false)
	if len(rows) != 2 || rows[0].Timestamp != 30 || rows[1].Timestamp != 20 {
		t.Errorf("descending limited query wrong: %+v", rows)
	}

	rows, _ = db.QueryTier(rollup.Seconds, 1, 10, 0, true)
	if len(rows) != 2 || rows[0].Timestamp != 20 {
		t.Errorf("since is exclusive, got %+v", rows)
	}

	// Other clients and tiers are invisible.
	rows, _ = db.QueryTier(rollup.Seconds, 2, 0, 0, true)
	if len(rows) != 0 {
		t.Errorf("unexpected rows for another client: %+v", rows)
	}
	rows, _ = db.QueryTier(rollup.Minutes, 1, 0, 0, true)
	if len(rows) != 0 {
		t.Errorf("unexpected rows in another tier: %+v", rows)
	}
}

func TestMemPrune(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()

	for ts := int64(10); ts <= 50; ts += 10 {
		db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: ts, Values: []float64{0, 0}})
	}
	if err := db.PruneTier(rollup.Seconds, 1, 30); err != nil {
		t.Fatalf("PruneTier: %v", err)
	}
	rows, _ := db.QueryTier(rollup.Seconds, 1, 0, 0, true)
	// Rows at exactly the horizon survive.
	if len(rows) != 3 || rows[0].Timestamp != 30 {
		t.Errorf("prune should keep rows at >= horizon: %+v", rows)
	}
}

func TestMemAggregate(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()
	schema := testSchema()

	for ts := int64(10); ts <= 120; ts += 10 {
		db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: ts, Values: []float64{4, 1}})
	}

	// Half-open window (0, 60]: rows 10..60.
	row, err := db.AggregateTier(rollup.Seconds, 1, 0, 60, schema)
	if err != nil {
		t.Fatalf("AggregateTier: %v", err)
	}
	if row == nil {
		t.Fatalf("window should not be empty")
	}
	if row.Timestamp != 60 {
		t.Errorf("aggregate timestamp should be the window max (60), got %d", row.Timestamp)
	}
	if row.Values[0] != 4 || row.Values[1] != 6 {
		t.Errorf("expected gauge 4 / counter 6, got %v", row.Values)
	}

	// The row at the window start is excluded: no double counting
	// between adjacent windows.
	row, _ = db.AggregateTier(rollup.Seconds, 1, 60, 120, schema)
	if row.Values[1] != 6 {
		t.Errorf("adjacent window should also sum to 6, got %v", row.Values[1])
	}

	row, err = db.AggregateTier(rollup.Seconds, 1, 1000, 2000, schema)
	if err != nil || row != nil {
		t.Errorf("empty window should be (nil, nil), got (%v, %v)", row, err)
	}
}

func TestMemListLatest(t *testing.T) {
	db := NewMemSerDe()
	defer db.Close()

	id1, _ := db.Resolve("machine-1", "host1")
	id2, _ := db.Resolve("machine-2", "host2")
	db.PutLatest(id2, &sample.Row{Timestamp: 200, Values: []float64{1, 2}})
	db.PutLatest(id1, &sample.Row{Timestamp: 100, Values: []float64{3, 4}})

	// A client with no latest row yet is not listed.
	db.Resolve("machine-3", "host3")

	list, err := db.ListLatest()
	if err != nil {
		t.Fatalf("ListLatest: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].ClientId != id1 || list[1].ClientId != id2 {
		t.Errorf("entries should be ordered by client id: %+v", list)
	}
	if list[0].MachineId != "machine-1" || list[0].Hostname != "host1" {
		t.Errorf("wrong identity join: %+v", list[0])
	}
	if list[1].Row.Timestamp != 200 {
		t.Errorf("wrong latest row: %+v", list[1].Row)
	}
}
