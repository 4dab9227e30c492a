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
	"fmt"
	"sort"
	"sync"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

type memClient struct {
	id        int64
	machineId string
	hostname  string
}

type tierKey struct {
	tier     rollup.Tier
	clientId int64
}

// memSerDe keeps everything in memory. Used by tests and for running
// without a database.
type memSerDe struct {
	*sync.RWMutex
	byMachine map[string]*memClient
	lastId    int64
	latest    map[int64]*sample.Row
	tiers     map[tierKey][]*sample.Row // kept timestamp-ascending
}

// NewMemSerDe returns a SerDe which keeps everything in memory.
func NewMemSerDe() SerDe {
	return &memSerDe{
		RWMutex:   &sync.RWMutex{},
		byMachine: make(map[string]*memClient),
		latest:    make(map[int64]*sample.Row),
		tiers:     make(map[tierKey][]*sample.Row),
	}
}

func (m *memSerDe) Close() error { return nil }

func (m *memSerDe) Resolve(machineId, hostname string) (int64, error) {
	m.Lock()
	defer m.Unlock()
	if machineId == "" {
		return 0, fmt.Errorf("empty machine id")
	}
	if c, ok := m.byMachine[machineId]; ok {
		c.hostname = hostname
		return c.id, nil
	}
	m.lastId++
	m.byMachine[machineId] = &memClient{id: m.lastId, machineId: machineId, hostname: hostname}
	return m.lastId, nil
}

func (m *memSerDe) GetLatest(clientId int64) (*sample.Row, error) {
	m.RLock()
	defer m.RUnlock()
	row, ok := m.latest[clientId]
	if !ok {
		return nil, nil
	}
	return copyRow(row), nil
}

func (m *memSerDe) PutLatest(clientId int64, row *sample.Row) error {
	m.Lock()
	defer m.Unlock()
	m.latest[clientId] = copyRow(row)
	return nil
}

func (m *memSerDe) AppendTier(t rollup.Tier, clientId int64, row *sample.Row) error {
	m.Lock()
	defer m.Unlock()
	key := tierKey{t, clientId}
	rows := m.tiers[key]
	for _, r := range rows {
		if r.Timestamp == row.Timestamp {
			return fmt.Errorf("duplicate row: %s client %d ts %d", t, clientId, row.Timestamp)
		}
	}
	rows = append(rows, copyRow(row))
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	m.tiers[key] = rows
	return nil
}

func (m *memSerDe) QueryTier(t rollup.Tier, clientId int64, since int64, limit int, asc bool) ([]*sample.Row, error) {
	m.RLock()
	defer m.RUnlock()
	if limit <= 0 {
		limit = t.DefaultLimit()
	}
	var result []*sample.Row
	rows := m.tiers[tierKey{t, clientId}]
	if asc {
		for _, r := range rows {
			if since > 0 && r.Timestamp <= since {
				continue
			}
			result = append(result, copyRow(r))
			if len(result) == limit {
				break
			}
		}
	} else {
		for i := len(rows) - 1; i >= 0; i-- {
			if since > 0 && rows[i].Timestamp <= since {
				break
			}
			result = append(result, copyRow(rows[i]))
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *memSerDe) PruneTier(t rollup.Tier, clientId int64, olderThan int64) error {
	m.Lock()
	defer m.Unlock()
	key := tierKey{t, clientId}
	rows := m.tiers[key]
	n := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp >= olderThan })
	if n > 0 {
		m.tiers[key] = append([]*sample.Row{}, rows[n:]...)
	}
	return nil
}

func (m *memSerDe) AggregateTier(t rollup.Tier, clientId int64, winStart, winEnd int64, schema sample.Schema) (*sample.Row, error) {
	m.RLock()
	defer m.RUnlock()
	var window []*sample.Row
	for _, r := range m.tiers[tierKey{t, clientId}] {
		if r.Timestamp > winStart && r.Timestamp <= winEnd {
			window = append(window, r)
		}
	}
	row, ok := sample.Aggregate(schema, window)
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (m *memSerDe) ListLatest() ([]*LatestStatus, error) {
	m.RLock()
	defer m.RUnlock()
	result := make([]*LatestStatus, 0, len(m.byMachine))
	for _, c := range m.byMachine {
		row, ok := m.latest[c.id]
		if !ok {
			continue
		}
		result = append(result, &LatestStatus{
			ClientId:  c.id,
			MachineId: c.machineId,
			Hostname:  c.hostname,
			Row:       copyRow(row),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientId < result[j].ClientId })
	return result, nil
}

func copyRow(row *sample.Row) *sample.Row {
	vals := make([]float64, len(row.Values))
	copy(vals, row.Values)
	return &sample.Row{Timestamp: row.Timestamp, Values: vals}
}
