//
// Copyright 2017 Gregory Trubetskoy. All Rights Reserved.
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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

func openTestBadger(t *testing.T) SerDe {
	t.Helper()
	db, err := InitBadger("", testSchema()) // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerResolve(t *testing.T) {
	db := openTestBadger(t)

	id1, err := db.Resolve("machine-1", "host1")
	require.NoError(t, err)
	id2, err := db.Resolve("machine-2", "host2")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	again, err := db.Resolve("machine-1", "host1-renamed")
	require.NoError(t, err)
	assert.Equal(t, id1, again, "resolve must be stable per machine")

	_, err = db.Resolve("", "host")
	assert.Error(t, err, "empty machine id must be rejected")
}

func TestBadgerLatest(t *testing.T) {
	db := openTestBadger(t)

	row, err := db.GetLatest(7)
	require.NoError(t, err)
	assert.Nil(t, row, "absent latest should be nil")

	require.NoError(t, db.PutLatest(7, &sample.Row{Timestamp: 100, Values: []float64{1, 2}}))
	require.NoError(t, db.PutLatest(7, &sample.Row{Timestamp: 110, Values: []float64{3, 4}}))

	row, err = db.GetLatest(7)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(110), row.Timestamp)
	assert.Equal(t, []float64{3, 4}, row.Values)
}

func TestBadgerTiers(t *testing.T) {
	db := openTestBadger(t)

	for ts := int64(10); ts <= 60; ts += 10 {
		err := db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: ts, Values: []float64{4, 1}})
		require.NoError(t, err)
	}
	err := db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: 30, Values: []float64{0, 0}})
	assert.Error(t, err, "duplicate timestamp must be rejected")

	// Another client under the same tier does not interfere.
	require.NoError(t, db.AppendTier(rollup.Seconds, 2, &sample.Row{Timestamp: 30, Values: []float64{9, 9}}))

	rows, err := db.QueryTier(rollup.Seconds, 1, 0, 0, true)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, int64(10), rows[0].Timestamp)
	assert.Equal(t, int64(60), rows[5].Timestamp)

	rows, err = db.QueryTier(rollup.Seconds, 1, 0, 2, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(60), rows[0].Timestamp)
	assert.Equal(t, int64(50), rows[1].Timestamp)

	rows, err = db.QueryTier(rollup.Seconds, 1, 40, 0, true)
	require.NoError(t, err)
	require.Len(t, rows, 2, "since is exclusive")
	assert.Equal(t, int64(50), rows[0].Timestamp)
}

func TestBadgerPrune(t *testing.T) {
	db := openTestBadger(t)

	for ts := int64(10); ts <= 50; ts += 10 {
		require.NoError(t, db.AppendTier(rollup.Minutes, 1, &sample.Row{Timestamp: ts, Values: []float64{0, 0}}))
	}
	require.NoError(t, db.PruneTier(rollup.Minutes, 1, 30))

	rows, err := db.QueryTier(rollup.Minutes, 1, 0, 0, true)
	require.NoError(t, err)
	require.Len(t, rows, 3, "rows at >= horizon survive")
	assert.Equal(t, int64(30), rows[0].Timestamp)
}

func TestBadgerAggregate(t *testing.T) {
	db := openTestBadger(t)
	schema := testSchema()

	for ts := int64(10); ts <= 120; ts += 10 {
		require.NoError(t, db.AppendTier(rollup.Seconds, 1, &sample.Row{Timestamp: ts, Values: []float64{4, 1}}))
	}

	row, err := db.AggregateTier(rollup.Seconds, 1, 0, 60, schema)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(60), row.Timestamp)
	assert.Equal(t, 4.0, row.Values[0], "gauge average")
	assert.Equal(t, 6.0, row.Values[1], "counter sum")

	row, err = db.AggregateTier(rollup.Seconds, 1, 60, 120, schema)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 6.0, row.Values[1], "window start row excluded, no double count")

	row, err = db.AggregateTier(rollup.Seconds, 1, 1000, 2000, schema)
	require.NoError(t, err)
	assert.Nil(t, row, "empty window")
}

func TestBadgerListLatest(t *testing.T) {
	db := openTestBadger(t)

	id1, err := db.Resolve("machine-1", "host1")
	require.NoError(t, err)
	id2, err := db.Resolve("machine-2", "host2")
	require.NoError(t, err)
	require.NoError(t, db.PutLatest(id2, &sample.Row{Timestamp: 200, Values: []float64{1, 2}}))
	require.NoError(t, db.PutLatest(id1, &sample.Row{Timestamp: 100, Values: []float64{3, 4}}))

	// No latest row, not listed.
	_, err = db.Resolve("machine-3", "host3")
	require.NoError(t, err)

	list, err := db.ListLatest()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id1, list[0].ClientId)
	assert.Equal(t, "machine-1", list[0].MachineId)
	assert.Equal(t, "host1", list[0].Hostname)
	assert.Equal(t, int64(200), list[1].Row.Timestamp)
}
