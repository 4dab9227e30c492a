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

package sample

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by all decoder failures.
var ErrMalformed = errors.New("malformed sample")

// Decode parses a wire record (timestamp, schema fields, machine id,
// hostname) into a Sample. interval is the base ingest interval in
// seconds; timestamps that are not a multiple of it are rejected.
// Decode is a pure parse, it performs no I/O.
func Decode(schema Schema, values []string, interval int64) (*Sample, error) {
	if len(values) != schema.Arity() {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrMalformed, len(values), schema.Arity())
	}

	ts, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q not an integer", ErrMalformed, values[0])
	}
	if interval <= 0 || ts%interval != 0 {
		return nil, fmt.Errorf("%w: timestamp %d not a multiple of %ds", ErrMalformed, ts, interval)
	}

	s := &Sample{
		Timestamp: ts,
		MachineId: values[len(values)-2],
		Hostname:  values[len(values)-1],
		Values:    make([]float64, len(schema)),
	}
	if s.MachineId == "" {
		return nil, fmt.Errorf("%w: empty machine id", ErrMalformed)
	}
	for i, f := range schema {
		v, err := strconv.ParseFloat(values[i+1], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %s: %q not a number", ErrMalformed, f.Name, values[i+1])
		}
		s.Values[i] = v
	}
	return s, nil
}

// DecodeList splits a comma-separated wire record and decodes it. This
// is the format of the "values" form field in a status post.
func DecodeList(schema Schema, list string, interval int64) (*Sample, error) {
	return Decode(schema, strings.Split(list, ","), interval)
}
