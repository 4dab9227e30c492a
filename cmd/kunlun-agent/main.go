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

// The kunlun agent: collects host telemetry with gopsutil and posts
// it to a kunlun server every interval.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/kunlun/kunlun/agent"
	"github.com/kunlun/kunlun/sample"
)

func main() {
	var (
		server    string
		interval  int64
		once      bool
		machineId string
	)
	flag.StringVar(&server, "server", "http://localhost:8888", "base URL of the kunlun server")
	flag.Int64Var(&interval, "interval", 10, "reporting interval, seconds")
	flag.BoolVar(&once, "once", false, "report one sample and exit")
	flag.StringVar(&machineId, "machine-id", "", "override the machine id (default /etc/machine-id)")
	flag.Parse()

	if interval <= 0 {
		log.Fatalf("invalid -interval %d", interval)
	}

	a, err := agent.New(strings.TrimRight(server, "/"), interval, sample.DefaultSchema())
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	if machineId != "" {
		a.MachineId = machineId
	}

	log.Printf("Reporting to %s every %ds as machine %s (%s).", a.ServerURL, interval, a.MachineId, a.Hostname)

	if once {
		if err := a.ReportOnce(); err != nil {
			log.Fatalf("agent: %v", err)
		}
		return
	}
	a.Run()
}
