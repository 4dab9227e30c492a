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

// Package sample defines the telemetry field schema, the typed sample
// record and the wire decoder for the flat field list reported by
// agents. A sample is one reporting instant for one machine: a
// timestamp plus an ordered set of named numeric fields, each of which
// is either a gauge (instantaneous value) or a counter (monotonically
// non-decreasing total since boot).
package sample

import "fmt"

type Kind int

const (
	Gauge Kind = iota
	Counter
)

func (k Kind) String() string {
	if k == Counter {
		return "counter"
	}
	return "gauge"
}

type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of metric fields in wire order. The
// timestamp, machine id and hostname are not part of the schema, they
// frame it on the wire: timestamp first, then the schema fields, then
// machine id and hostname.
type Schema []Field

// DefaultSchema returns the 34-field host telemetry schema.
func DefaultSchema() Schema {
	return Schema{
		{"uptime_s", Gauge},
		{"load_1min", Gauge},
		{"load_5min", Gauge},
		{"load_15min", Gauge},
		{"running_tasks", Gauge},
		{"total_tasks", Gauge},
		{"cpu_user", Counter},
		{"cpu_system", Counter},
		{"cpu_nice", Counter},
		{"cpu_idle", Counter},
		{"cpu_iowait", Counter},
		{"cpu_irq", Counter},
		{"cpu_softirq", Counter},
		{"cpu_steal", Counter},
		{"mem_total_mib", Gauge},
		{"mem_free_mib", Gauge},
		{"mem_used_mib", Gauge},
		{"mem_buff_cache_mib", Gauge},
		{"tcp_connections", Gauge},
		{"udp_connections", Gauge},
		{"default_interface_net_rx_bytes", Counter},
		{"default_interface_net_tx_bytes", Counter},
		{"cpu_num_cores", Gauge},
		{"cpu_delay_us", Gauge},
		{"disk_delay_us", Gauge},
		{"root_disk_total_kb", Gauge},
		{"root_disk_avail_kb", Gauge},
		{"reads_completed", Counter},
		{"writes_completed", Counter},
		{"reading_ms", Counter},
		{"writing_ms", Counter},
		{"iotime_ms", Counter},
		{"ios_in_progress", Gauge},
		{"weighted_io_time", Counter},
	}
}

// Arity is the number of values a wire record must carry: timestamp +
// schema fields + machine id + hostname.
func (s Schema) Arity() int {
	return len(s) + 3
}

// IndexOf returns the position of name in the schema or -1.
func (s Schema) IndexOf(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// ColumnIndexes resolves field names to schema positions, erroring on
// the first unknown name.
func (s Schema) ColumnIndexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		n := s.IndexOf(name)
		if n < 0 {
			return nil, fmt.Errorf("unknown field: %q", name)
		}
		idx[i] = n
	}
	return idx, nil
}
