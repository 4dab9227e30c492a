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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

// badgerSerDe is an embedded store for running without PostgreSQL.
// Tier rows live under binary keys that sort by (tier, client,
// timestamp), so a prefix iteration walks one client's rows in time
// order. Aggregation runs in Go over the window rows.
type badgerSerDe struct {
	db     *badger.DB
	seq    *badger.Sequence
	schema sample.Schema
}

type badgerClient struct {
	Id       int64  `json:"id"`
	Hostname string `json:"hostname"`
}

// InitBadger opens (or creates) a badger database at path. An empty
// path opens an in-memory database, used by tests.
func InitBadger(path string, schema sample.Schema) (SerDe, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence([]byte("seq/client"), 16)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &badgerSerDe{db: db, seq: seq, schema: schema}, nil
}

func (b *badgerSerDe) Close() error {
	if err := b.seq.Release(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}

func clientKey(machineId string) []byte {
	return append([]byte("c/"), machineId...)
}

func latestKey(clientId int64) []byte {
	key := make([]byte, 2+8)
	copy(key, "l/")
	binary.BigEndian.PutUint64(key[2:], uint64(clientId))
	return key
}

func tierPrefix(t rollup.Tier, clientId int64) []byte {
	key := make([]byte, 3+8)
	copy(key, "t/")
	key[2] = byte(t)
	binary.BigEndian.PutUint64(key[3:], uint64(clientId))
	return key
}

func tierKeyAt(t rollup.Tier, clientId, ts int64) []byte {
	key := append(tierPrefix(t, clientId), 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint64(key[11:], uint64(ts))
	return key
}

func tierKeyTimestamp(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[11:]))
}

func (b *badgerSerDe) Resolve(machineId, hostname string) (int64, error) {
	if machineId == "" {
		return 0, fmt.Errorf("empty machine id")
	}
	var id int64
	err := b.db.Update(func(txn *badger.Txn) error {
		key := clientKey(machineId)
		item, err := txn.Get(key)
		if err == nil {
			var c badgerClient
			if err = item.Value(func(val []byte) error { return json.Unmarshal(val, &c) }); err != nil {
				return err
			}
			id = c.Id
			if c.Hostname != hostname {
				c.Hostname = hostname
				val, err := json.Marshal(&c)
				if err != nil {
					return err
				}
				return txn.Set(key, val)
			}
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		n, err := b.seq.Next()
		if err != nil {
			return err
		}
		id = int64(n) + 1 // sequence starts at 0, client ids at 1
		val, err := json.Marshal(&badgerClient{Id: id, Hostname: hostname})
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (b *badgerSerDe) GetLatest(clientId int64) (*sample.Row, error) {
	var row *sample.Row
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(clientId))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		row = &sample.Row{}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, row) })
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (b *badgerSerDe) PutLatest(clientId int64, row *sample.Row) error {
	val, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(latestKey(clientId), val)
	})
}

func (b *badgerSerDe) AppendTier(t rollup.Tier, clientId int64, row *sample.Row) error {
	val, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		key := tierKeyAt(t, clientId, row.Timestamp)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("duplicate row: %s client %d ts %d", t, clientId, row.Timestamp)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, val)
	})
}

func (b *badgerSerDe) QueryTier(t rollup.Tier, clientId int64, since int64, limit int, asc bool) ([]*sample.Row, error) {
	if limit <= 0 {
		limit = t.DefaultLimit()
	}
	prefix := tierPrefix(t, clientId)
	var result []*sample.Row
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = !asc
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if !asc {
			// Reverse iteration seeks to the largest key under the
			// prefix.
			start = tierKeyAt(t, clientId, int64(^uint64(0)>>1))
		}
		for it.Seek(start); it.ValidForPrefix(prefix) && len(result) < limit; it.Next() {
			item := it.Item()
			ts := tierKeyTimestamp(item.Key())
			if since > 0 && ts <= since {
				if asc {
					continue
				}
				break
			}
			row := &sample.Row{}
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, row) }); err != nil {
				return err
			}
			result = append(result, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *badgerSerDe) PruneTier(t rollup.Tier, clientId int64, olderThan int64) error {
	prefix := tierPrefix(t, clientId)
	var doomed [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if tierKeyTimestamp(key) >= olderThan {
				break
			}
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil || len(doomed) == 0 {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerSerDe) AggregateTier(t rollup.Tier, clientId int64, winStart, winEnd int64, schema sample.Schema) (*sample.Row, error) {
	prefix := tierPrefix(t, clientId)
	var window []*sample.Row
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(tierKeyAt(t, clientId, winStart+1)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if tierKeyTimestamp(item.Key()) > winEnd {
				break
			}
			row := &sample.Row{}
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, row) }); err != nil {
				return err
			}
			window = append(window, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	row, ok := sample.Aggregate(schema, window)
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (b *badgerSerDe) ListLatest() ([]*LatestStatus, error) {
	var result []*LatestStatus
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte("c/")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			machineId := string(item.Key()[len(prefix):])
			var c badgerClient
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &c) }); err != nil {
				return err
			}
			litem, err := txn.Get(latestKey(c.Id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			row := &sample.Row{}
			if err := litem.Value(func(val []byte) error { return json.Unmarshal(val, row) }); err != nil {
				return err
			}
			result = append(result, &LatestStatus{
				ClientId:  c.Id,
				MachineId: machineId,
				Hostname:  c.Hostname,
				Row:       row,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientId < result[j].ClientId })
	return result, nil
}
