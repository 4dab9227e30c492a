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

// Package agent collects host telemetry and reports it to a kunlun
// server. One Collect call produces one sample with a timestamp
// aligned to the reporting interval.
package agent

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/net"

	"github.com/kunlun/kunlun/sample"
)

const mib = 1024 * 1024

type Agent struct {
	ServerURL string
	Interval  int64
	MachineId string
	Hostname  string

	schema sample.Schema
	client *http.Client
}

func New(serverURL string, interval int64, schema sample.Schema) (*Agent, error) {
	machineId, err := readMachineId()
	if err != nil {
		return nil, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	return &Agent{
		ServerURL: serverURL,
		Interval:  interval,
		MachineId: machineId,
		Hostname:  hostname,
		schema:    schema,
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

var readMachineId = func() (string, error) {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		data, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			return strings.TrimSpace(string(data)), nil
		}
	}
	return "", fmt.Errorf("unable to determine machine id")
}

// Run reports forever, one sample per interval, aligned to interval
// boundaries. Collection errors are logged and the tick skipped, the
// next one usually succeeds.
func (a *Agent) Run() {
	for {
		iv := time.Duration(a.Interval) * time.Second
		time.Sleep(time.Until(time.Now().Truncate(iv).Add(iv)))
		if err := a.ReportOnce(); err != nil {
			log.Printf("agent: %v", err)
		}
	}
}

// ReportOnce collects one sample and posts it.
func (a *Agent) ReportOnce() error {
	s, err := a.Collect(time.Now().Unix())
	if err != nil {
		return err
	}
	return a.Post(s)
}

// Collect gathers one reading of every schema field. ts is rounded
// down to the interval. Fields whose source fails to read are
// reported as zero rather than failing the whole sample.
func (a *Agent) Collect(ts int64) (*sample.Sample, error) {
	vals := make(map[string]float64, len(a.schema))

	if uptime, err := host.Uptime(); err == nil {
		vals["uptime_s"] = float64(uptime)
	}
	if avg, err := load.Avg(); err == nil {
		vals["load_1min"] = avg.Load1
		vals["load_5min"] = avg.Load5
		vals["load_15min"] = avg.Load15
	}
	if m, err := load.Misc(); err == nil {
		vals["running_tasks"] = float64(m.ProcsRunning)
		vals["total_tasks"] = float64(m.ProcsTotal)
	}
	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		t := times[0]
		vals["cpu_user"] = t.User
		vals["cpu_system"] = t.System
		vals["cpu_nice"] = t.Nice
		vals["cpu_idle"] = t.Idle
		vals["cpu_iowait"] = t.Iowait
		vals["cpu_irq"] = t.Irq
		vals["cpu_softirq"] = t.Softirq
		vals["cpu_steal"] = t.Steal
	}
	if n, err := cpu.Counts(true); err == nil {
		vals["cpu_num_cores"] = float64(n)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		vals["mem_total_mib"] = float64(vm.Total) / mib
		vals["mem_free_mib"] = float64(vm.Free) / mib
		vals["mem_used_mib"] = float64(vm.Used) / mib
		vals["mem_buff_cache_mib"] = float64(vm.Buffers+vm.Cached) / mib
	}
	if conns, err := net.Connections("tcp"); err == nil {
		vals["tcp_connections"] = float64(len(conns))
	}
	if conns, err := net.Connections("udp"); err == nil {
		vals["udp_connections"] = float64(len(conns))
	}
	if rx, tx, ok := defaultInterfaceCounters(); ok {
		vals["default_interface_net_rx_bytes"] = float64(rx)
		vals["default_interface_net_tx_bytes"] = float64(tx)
	}
	if du, err := disk.Usage("/"); err == nil {
		vals["root_disk_total_kb"] = float64(du.Total) / 1024
		vals["root_disk_avail_kb"] = float64(du.Free) / 1024
	}
	if io, ok := rootDiskCounters(); ok {
		vals["reads_completed"] = float64(io.ReadCount)
		vals["writes_completed"] = float64(io.WriteCount)
		vals["reading_ms"] = float64(io.ReadTime)
		vals["writing_ms"] = float64(io.WriteTime)
		vals["iotime_ms"] = float64(io.IoTime)
		vals["ios_in_progress"] = float64(io.IopsInProgress)
		vals["weighted_io_time"] = float64(io.WeightedIO)
	}
	vals["cpu_delay_us"] = cpuDelay()
	vals["disk_delay_us"] = diskDelay()

	values := make([]float64, len(a.schema))
	for i, f := range a.schema {
		values[i] = vals[f.Name]
	}
	return &sample.Sample{
		Timestamp: ts - ts%a.Interval,
		MachineId: a.MachineId,
		Hostname:  a.Hostname,
		Values:    values,
	}, nil
}

// Post submits the sample as the flat comma-separated field list.
func (a *Agent) Post(s *sample.Sample) error {
	parts := make([]string, 0, len(s.Values)+3)
	parts = append(parts, strconv.FormatInt(s.Timestamp, 10))
	for _, v := range s.Values {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	parts = append(parts, s.MachineId, s.Hostname)

	resp, err := a.client.PostForm(a.ServerURL+"/status", url.Values{"values": {strings.Join(parts, ",")}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// defaultInterfaceCounters picks the busiest non-loopback interface;
// on a typical host that is the one carrying the default route.
func defaultInterfaceCounters() (rx, tx uint64, ok bool) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return 0, 0, false
	}
	var best *net.IOCountersStat
	for i := range counters {
		c := &counters[i]
		if c.Name == "lo" || strings.HasPrefix(c.Name, "lo:") {
			continue
		}
		if best == nil || c.BytesRecv+c.BytesSent > best.BytesRecv+best.BytesSent {
			best = c
		}
	}
	if best == nil {
		return 0, 0, false
	}
	return best.BytesRecv, best.BytesSent, true
}

// rootDiskCounters picks the whole-device entry with the most io time,
// which on a single-disk host is the disk behind the root filesystem.
func rootDiskCounters() (*disk.IOCountersStat, bool) {
	counters, err := disk.IOCounters()
	if err != nil {
		return nil, false
	}
	var best *disk.IOCountersStat
	for name := range counters {
		c := counters[name]
		// Skip partitions (sda1, nvme0n1p1), count whole devices.
		if len(name) > 0 && name[len(name)-1] >= '0' && name[len(name)-1] <= '9' && !strings.HasPrefix(name, "nvme") {
			continue
		}
		if best == nil || c.IoTime > best.IoTime {
			best = &c
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// cpuDelay measures scheduling latency: how much a 1ms sleep
// overshoots, in microseconds. A loaded run queue stretches it.
func cpuDelay() float64 {
	start := time.Now()
	time.Sleep(time.Millisecond)
	over := time.Since(start) - time.Millisecond
	if over < 0 {
		over = 0
	}
	return float64(over.Microseconds())
}

// diskDelay measures a small synced write to a temp file, in
// microseconds.
func diskDelay() float64 {
	f, err := os.CreateTemp("", "kunlun-probe")
	if err != nil {
		return 0
	}
	defer os.Remove(f.Name())
	defer f.Close()

	start := time.Now()
	if _, err := f.Write(make([]byte, 4096)); err != nil {
		return 0
	}
	if err := f.Sync(); err != nil {
		return 0
	}
	return float64(time.Since(start).Microseconds())
}
