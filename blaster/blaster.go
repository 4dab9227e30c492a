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

// Package blaster provides some stress testing capabilities: it feeds
// synthetic samples from a configurable number of fake machines into
// the receiver at a configurable rate.
package blaster

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

type sampleIngester interface {
	IngestSample(*sample.Sample) (rollup.Outcome, int64, error)
}

// fakeClient is one synthetic machine. Its timestamp cursor advances
// by the base interval on every sample so the stream looks like a real
// agent reporting on schedule, only accelerated.
type fakeClient struct {
	machineId string
	hostname  string
	cursor    int64
	counters  []float64
}

type Blaster struct {
	rcvr     sampleIngester
	schema   sample.Schema
	interval int64
	limiter  *rate.Limiter

	mu      sync.Mutex
	clients []*fakeClient
}

func New(rcvr sampleIngester, schema sample.Schema, interval int64) *Blaster {
	b := &Blaster{
		rcvr:     rcvr,
		schema:   schema,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(0), 1), // Zero limit allows no events
	}
	go blast(b)
	return b
}

func (b *Blaster) SetRate(perSec int) {
	// No need to lock, limiters already have a lock
	b.limiter.SetLimit(rate.Limit(perSec))
	log.Printf("Blaster: rate is now: %v per second.", perSec)
}

func (b *Blaster) SetNClients(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.clients) < n {
		i := len(b.clients)
		// A hash makes the ids look like the real thing
		// (/etc/machine-id) instead of blast-0, blast-1.
		id := fmt.Sprintf("%016x%016x", xxhash.Sum64String(fmt.Sprintf("blast-%d", i)), uint64(i))
		start := time.Now().Unix()
		start -= start % b.interval
		b.clients = append(b.clients, &fakeClient{
			machineId: id,
			hostname:  fmt.Sprintf("blast%04d", i),
			cursor:    start,
			counters:  make([]float64, len(b.schema)),
		})
	}
	if n < len(b.clients) {
		b.clients = b.clients[:n]
	}
	log.Printf("Blaster: nClients is now: %v, rate is: %v per second.", n, b.limiter.Limit())
}

func (b *Blaster) cycle() int {
	b.mu.Lock()

	if b.limiter.Limit() == 0 {
		// rate.Limiter has a bug - Limit of zero should allow no events, but it
		// apparently allows infinite events?
		b.mu.Unlock()
		time.Sleep(time.Second)
		return 0
	}

	if len(b.clients) == 0 {
		b.mu.Unlock()
		return 0
	}

	c := b.clients[rand.Int()%len(b.clients)]
	s := b.synthesize(c)
	b.mu.Unlock()

	if _, _, err := b.rcvr.IngestSample(s); err != nil {
		log.Printf("Blaster: ingest: %v", err)
		return 0
	}
	return len(s.Values)*8 + len(c.machineId) + len(c.hostname)
}

// synthesize builds the next sample for c and advances its cursor.
// Gauges draw a sinusoid, counters accumulate a random nonnegative
// increment so the stored deltas come out plausible.
func (b *Blaster) synthesize(c *fakeClient) *sample.Sample {
	values := make([]float64, len(b.schema))
	for i, f := range b.schema {
		if f.Kind == sample.Counter {
			c.counters[i] += float64(rand.Intn(100))
			values[i] = c.counters[i]
		} else {
			values[i] = (sinTime(c.cursor, 600) + 1) * 50
		}
	}
	s := &sample.Sample{
		Timestamp: c.cursor,
		MachineId: c.machineId,
		Hostname:  c.hostname,
		Values:    values,
	}
	c.cursor += b.interval
	return s
}

func blast(b *Blaster) {

	ctx := context.TODO()

	cnt, tsz := 0, 0
	lastStat := time.Now()
	statPeriod := 10 * time.Second

	for {

		b.limiter.Wait(ctx)

		if sz := b.cycle(); sz > 0 {
			cnt++
			tsz += sz
		}

		if cnt%1000 == 0 {
			if time.Now().Sub(lastStat) > statPeriod {
				log.Printf("Blaster: %v Count: %d \tper/sec: %v \tBps: %v\n", time.Now(), cnt, float64(cnt)/time.Now().Sub(lastStat).Seconds(), int64(float64(tsz)/time.Now().Sub(lastStat).Seconds()))
				cnt, tsz = 0, 0
				lastStat = time.Now()
			}
		}
	}
}

// Given a unix time, return a Y value that will draw a sinusoid
// spanning span seconds.
func sinTime(ts int64, span int64) float64 {
	x := 2 * math.Pi / float64(span) * float64(ts%span)
	return math.Sin(x)
}
