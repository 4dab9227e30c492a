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

import (
	"testing"

	"github.com/kunlun/kunlun/sample"
)

func mkSeries(n int) []*sample.Row {
	series := make([]*sample.Row, n)
	for i := range series {
		series[i] = &sample.Row{
			Timestamp: int64(i) * 10,
			Values:    []float64{float64(i), float64(i) * 2},
		}
	}
	return series
}

func TestStrideIdentity(t *testing.T) {
	series := mkSeries(50)
	out := Stride{}.Downsample(series, []int{0, 1}, 100)
	if len(out) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(out))
	}
	if len(out[0]) != 50 {
		t.Fatalf("series within budget should come back unchanged, got %d points", len(out[0]))
	}
	for i, p := range out[0] {
		if p.Timestamp != series[i].Timestamp || p.Value != series[i].Values[0] {
			t.Errorf("point %d: got %+v", i, p)
		}
	}
	if out[1][10].Value != 20 {
		t.Errorf("second column should carry its own values, got %v", out[1][10].Value)
	}
}

func TestStrideDownsample(t *testing.T) {
	series := mkSeries(1000)
	out := Stride{}.Downsample(series, []int{0}, 100)
	if len(out[0]) != 100 {
		t.Fatalf("expected exactly 100 points, got %d", len(out[0]))
	}
	if out[0][0].Timestamp != series[0].Timestamp {
		t.Errorf("first point should be the first row, got ts %d", out[0][0].Timestamp)
	}
	// step = 10, so point i is row 10*i
	for i, p := range out[0] {
		if p.Value != float64(10*i) {
			t.Errorf("point %d: value %v, want %v", i, p.Value, float64(10*i))
		}
	}
	for i := 1; i < len(out[0]); i++ {
		if out[0][i].Timestamp <= out[0][i-1].Timestamp {
			t.Errorf("timestamps must stay ascending at %d", i)
		}
	}
}

func TestStrideZeroLimit(t *testing.T) {
	out := Stride{}.Downsample(mkSeries(10), []int{0}, 0)
	if len(out) != 1 || len(out[0]) != 0 {
		t.Errorf("zero limit should produce empty columns, got %v", out)
	}
}

func TestWindowAvg(t *testing.T) {
	series := mkSeries(10)
	out := WindowAvg{}.Downsample(series, []int{0}, 5)
	if len(out[0]) != 5 {
		t.Fatalf("expected 5 points, got %d", len(out[0]))
	}
	// Windows of 2: point 0 averages rows 0 and 1, carries the later
	// timestamp.
	if out[0][0].Value != 0.5 || out[0][0].Timestamp != 10 {
		t.Errorf("first window: got %+v, want value 0.5 at ts 10", out[0][0])
	}
	if out[0][4].Value != 8.5 || out[0][4].Timestamp != 90 {
		t.Errorf("last window: got %+v, want value 8.5 at ts 90", out[0][4])
	}
}

func TestWindowAvgIdentity(t *testing.T) {
	series := mkSeries(3)
	out := WindowAvg{}.Downsample(series, []int{1}, 10)
	if len(out[0]) != 3 {
		t.Fatalf("series within budget should come back unchanged, got %d points", len(out[0]))
	}
	if out[0][2].Value != 4 {
		t.Errorf("expected raw value 4, got %v", out[0][2].Value)
	}
}
