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

package rollup

import "github.com/kunlun/kunlun/sample"

// Point is one downsampled data point of one column.
type Point struct {
	Timestamp int64
	Value     float64
}

// Downsampler reduces an ordered series to at most limit points per
// requested column. Output length is exactly min(limit, len(series))
// per column; when the series already fits the budget it is returned
// unchanged. Deterministic for fixed input.
type Downsampler interface {
	Downsample(series []*sample.Row, cols []int, limit int) [][]Point
}

// Stride picks every floor(i*step)-th row, step = len/limit. This
// reproduces shape but can alias - a simplicity/latency trade-off,
// not decimation-correct signal processing.
type Stride struct{}

func (Stride) Downsample(series []*sample.Row, cols []int, limit int) [][]Point {
	if limit <= 0 {
		return emptyColumns(cols)
	}
	if len(series) <= limit {
		return copyColumns(series, cols)
	}
	out := newColumns(cols, limit)
	step := float64(len(series)) / float64(limit)
	for i := 0; i < limit; i++ {
		row := series[int(float64(i)*step)]
		for c, col := range cols {
			out[c][i] = Point{row.Timestamp, row.Values[col]}
		}
	}
	return out
}

// WindowAvg averages each stride window instead of picking one row
// from it; the point carries the last timestamp of its window. Higher
// fidelity than Stride at the cost of touching every row.
type WindowAvg struct{}

func (WindowAvg) Downsample(series []*sample.Row, cols []int, limit int) [][]Point {
	if limit <= 0 {
		return emptyColumns(cols)
	}
	if len(series) <= limit {
		return copyColumns(series, cols)
	}
	out := newColumns(cols, limit)
	step := float64(len(series)) / float64(limit)
	for i := 0; i < limit; i++ {
		lo := int(float64(i) * step)
		hi := int(float64(i+1) * step)
		if hi > len(series) {
			hi = len(series)
		}
		if hi <= lo {
			hi = lo + 1
		}
		window := series[lo:hi]
		for c, col := range cols {
			var sum float64
			for _, row := range window {
				sum += row.Values[col]
			}
			out[c][i] = Point{window[len(window)-1].Timestamp, sum / float64(len(window))}
		}
	}
	return out
}

func newColumns(cols []int, n int) [][]Point {
	out := make([][]Point, len(cols))
	for i := range out {
		out[i] = make([]Point, n)
	}
	return out
}

func emptyColumns(cols []int) [][]Point {
	return newColumns(cols, 0)
}

func copyColumns(series []*sample.Row, cols []int) [][]Point {
	out := newColumns(cols, len(series))
	for i, row := range series {
		for c, col := range cols {
			out[c][i] = Point{row.Timestamp, row.Values[col]}
		}
	}
	return out
}
