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

// Package http provides HTTP functionality for submitting telemetry
// samples and querying them back at the stored resolutions.
package http

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/kunlun/kunlun/blaster"
	"github.com/kunlun/kunlun/misc"
	"github.com/kunlun/kunlun/receiver"
	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
	"github.com/kunlun/kunlun/serde"
)

// NewRouter builds the full route table. hub and blstr may be nil to
// disable the live stream and the load generator.
func NewRouter(rcvr *receiver.Receiver, db serde.SerDe, hub *Hub, blstr *blaster.Blaster) *mux.Router {
	schema := rcvr.Engine().Schema()

	r := mux.NewRouter()
	r.HandleFunc("/", AliveHandler).Methods("GET")
	r.HandleFunc("/status", StatusPostHandler(rcvr)).Methods("POST")
	r.HandleFunc("/status", AliveHandler).Methods("GET")
	r.HandleFunc("/status/latest", makeGzipHandler(LatestHandler(db, schema))).Methods("GET")
	r.HandleFunc("/status/history", makeGzipHandler(HistoryHandler(db, schema))).Methods("GET")
	if hub != nil {
		r.HandleFunc("/status/live", hub.Handler()).Methods("GET")
	}
	r.HandleFunc("/status/{tier:seconds|minutes|hours}", makeGzipHandler(TierHandler(db, schema))).Methods("GET")
	if blstr != nil {
		r.HandleFunc("/blaster", BlasterSetHandler(blstr)).Methods("POST")
	}
	return r
}

func AliveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "kunlun")
}

// StatusPostHandler accepts a sample as the comma-separated "values"
// form field and runs it through the receiver. The response mirrors
// the ingest outcome: {"ok": 1} baseline, {"ok": 2} delta.
func StatusPostHandler(rcvr *receiver.Receiver) http.HandlerFunc {
	engine := rcvr.Engine()
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sample.DecodeList(engine.Schema(), r.FormValue("values"), engine.Interval())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		outcome, _, err := rcvr.IngestSample(s)
		if err != nil {
			log.Printf("StatusPostHandler: %v", err)
			status := http.StatusInternalServerError
			if errors.Is(err, receiver.ErrUnknownClient) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok": %d}`+"\n", int(outcome))
	}
}

// LatestHandler serves every client's latest snapshot joined with its
// identity.
func LatestHandler(db serde.LatestLister, schema sample.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		list, err := db.ListLatest()
		if err != nil {
			log.Printf("LatestHandler: %v", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		out := make([]map[string]interface{}, len(list))
		for i, ls := range list {
			m := rowObject(schema, ls.Row)
			m["client_id"] = ls.ClientId
			m["machine_id"] = ls.MachineId
			m["hostname"] = ls.Hostname
			out[i] = m
		}
		writeJson(w, out)
		log.Printf("LatestHandler: %d clients in %v", len(out), time.Since(start))
	}
}

// TierHandler serves raw tier rows, most recent first, capped at the
// tier default limit unless a smaller one is given.
func TierHandler(db rollup.Store, schema sample.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tier, err := rollup.ParseTier(mux.Vars(r)["tier"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		clientId, err := strconv.ParseInt(r.FormValue("client_id"), 10, 64)
		if err != nil {
			http.Error(w, "client_id required", http.StatusBadRequest)
			return
		}
		limit := 0
		if v := r.FormValue("limit"); v != "" {
			if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			if limit > tier.DefaultLimit() {
				limit = tier.DefaultLimit()
			}
		}
		rows, err := db.QueryTier(tier, clientId, 0, limit, false)
		if err != nil {
			log.Printf("TierHandler: %s client %d: %v", tier, clientId, err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		out := make([]map[string]interface{}, len(rows))
		for i, row := range rows {
			out[i] = rowObject(schema, row)
		}
		writeJson(w, out)
	}
}

// HistoryHandler serves a downsampled series for selected columns:
// client_id, columns (comma-separated field names), seconds (lookback,
// plain seconds or a duration like "12h"), points (budget), tier
// (default seconds) and strategy (stride, the default, or avg).
func HistoryHandler(db rollup.Store, schema sample.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientId, err := strconv.ParseInt(r.FormValue("client_id"), 10, 64)
		if err != nil {
			http.Error(w, "client_id required", http.StatusBadRequest)
			return
		}
		tier := rollup.Seconds
		if v := r.FormValue("tier"); v != "" {
			if tier, err = rollup.ParseTier(v); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		names := strings.Split(r.FormValue("columns"), ",")
		cols, err := schema.ColumnIndexes(names)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lookback, err := parseLookback(r.FormValue("seconds"), tier.Retention())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		points := 360
		if v := r.FormValue("points"); v != "" {
			if points, err = strconv.Atoi(v); err != nil || points <= 0 {
				http.Error(w, "invalid points", http.StatusBadRequest)
				return
			}
		}
		var ds rollup.Downsampler = rollup.Stride{}
		switch r.FormValue("strategy") {
		case "", "stride":
		case "avg":
			ds = rollup.WindowAvg{}
		default:
			http.Error(w, "unknown strategy", http.StatusBadRequest)
			return
		}

		since := time.Now().Unix() - lookback
		rows, err := db.QueryTier(tier, clientId, since, 0, true)
		if err != nil {
			log.Printf("HistoryHandler: %s client %d: %v", tier, clientId, err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}

		series := ds.Downsample(rows, cols, points)
		out := make(map[string][][2]float64, len(cols))
		for i, name := range names {
			pairs := make([][2]float64, len(series[i]))
			for j, p := range series[i] {
				pairs[j] = [2]float64{p.Value, float64(p.Timestamp)}
			}
			out[name] = pairs
		}
		writeJson(w, out)
	}
}

// BlasterSetHandler adjusts the load generator: rate (samples/sec) and
// n (number of synthetic clients).
func BlasterSetHandler(blstr *blaster.Blaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if v := r.FormValue("rate"); v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil || rate < 0 {
				http.Error(w, fmt.Sprintf("invalid rate %q", v), http.StatusBadRequest)
				return
			}
			blstr.SetRate(rate)
			fmt.Fprintf(w, "New rate: %v\n", rate)
		}
		if v := r.FormValue("n"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, fmt.Sprintf("invalid n %q", v), http.StatusBadRequest)
				return
			}
			blstr.SetNClients(n)
			fmt.Fprintf(w, "New nClients: %v\n", n)
		}
	}
}

// parseLookback accepts "3600" or "1h" style lookbacks, defaulting to
// the tier retention.
func parseLookback(s string, dflt int64) (int64, error) {
	if s == "" {
		return dflt, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid seconds: %q", s)
		}
		return n, nil
	}
	d, err := misc.BetterParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid seconds: %q", s)
	}
	return int64(d.Seconds()), nil
}

func rowObject(schema sample.Schema, row *sample.Row) map[string]interface{} {
	m := make(map[string]interface{}, len(schema)+1)
	m["timestamp"] = row.Timestamp
	for i, f := range schema {
		m[f.Name] = row.Values[i]
	}
	return m
}

func writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJson: %v", err)
	}
}

// Gzip compression

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func makeGzipHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gzr := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		fn(gzr, r)
	}
}
