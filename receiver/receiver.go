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

// Package receiver accepts decoded samples, resolves the reporting
// machine to a client id and runs the rollup cascade, serializing
// concurrent ingests for the same machine.
package receiver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/kunlun/kunlun/misc"
	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
	"github.com/kunlun/kunlun/serde"
)

// ErrUnknownClient reports a machine the registry could not resolve.
var ErrUnknownClient = errors.New("unknown client")

const (
	nStripes  = 64
	cacheSize = 4096
)

// Listener is notified after every successfully ingested sample (used
// by the live websocket stream).
type Listener func(clientId int64, s *sample.Sample, o rollup.Outcome)

type cachedClient struct {
	id       int64
	hostname string
}

// Receiver ties the registry and the rollup engine together. Ingests
// for the same machine are serialized on one of nStripes mutexes
// picked by a hash of the machine id - a read-modify-write on the
// latest row racing with itself is a lost-update hazard otherwise.
// Ingests for different machines proceed in parallel (modulo stripe
// collisions).
type Receiver struct {
	registry serde.Registry
	engine   *rollup.Engine

	cache   *lru.Cache // machine id -> cachedClient
	stripes [nStripes]sync.Mutex

	mu        sync.RWMutex
	listeners []Listener
}

func New(registry serde.Registry, engine *rollup.Engine) *Receiver {
	cache, _ := lru.New(cacheSize) // only errors on size <= 0
	return &Receiver{registry: registry, engine: engine, cache: cache}
}

func (r *Receiver) Engine() *rollup.Engine { return r.engine }

// Notify registers a listener for accepted samples.
func (r *Receiver) Notify(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// IngestSample resolves the sample's machine id and runs the cascade,
// returning the ingest outcome and the resolved client id.
func (r *Receiver) IngestSample(s *sample.Sample) (rollup.Outcome, int64, error) {
	s.Hostname = misc.SanitizeName(s.Hostname)

	stripe := &r.stripes[xxhash.Sum64String(s.MachineId)%nStripes]
	stripe.Lock()
	defer stripe.Unlock()

	clientId, err := r.resolve(s.MachineId, s.Hostname)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: machine %q: %v", ErrUnknownClient, s.MachineId, err)
	}

	outcome, err := r.engine.Ingest(clientId, s)
	if err != nil {
		return 0, clientId, err
	}

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, l := range listeners {
		l(clientId, s, outcome)
	}
	return outcome, clientId, nil
}

// resolve returns the client id for a machine, consulting the LRU
// cache first. A cached entry is only good if the hostname has not
// changed, since Resolve also persists hostname updates.
func (r *Receiver) resolve(machineId, hostname string) (int64, error) {
	if v, ok := r.cache.Get(machineId); ok {
		if c := v.(cachedClient); c.hostname == hostname {
			return c.id, nil
		}
	}
	id, err := r.registry.Resolve(machineId, hostname)
	if err != nil {
		return 0, err
	}
	r.cache.Add(machineId, cachedClient{id: id, hostname: hostname})
	return id, nil
}
