// Copyright 2025 Poiesic Systems
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

package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for stored records. Times are encoded as Unix microseconds.
var (
	PointIDMUS          = pointIDMUS{}
	PointMUS            = pointMUS{}
	CollectionConfigMUS = collectionConfigMUS{}
	RunMUS              = runMUS{}
	StepResultMUS       = stepResultMUS{}

	timeMicroMUS = timeMUS{}
	vectorMUS    = float32SliceMUS{}
)

var (
	_ mus.Serializer[PointID]          = PointIDMUS
	_ mus.Serializer[Point]            = PointMUS
	_ mus.Serializer[CollectionConfig] = CollectionConfigMUS
	_ mus.Serializer[Run]              = RunMUS
	_ mus.Serializer[StepResult]       = StepResultMUS
)

type pointIDMUS struct{}

func (s pointIDMUS) Marshal(v PointID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s pointIDMUS) Unmarshal(bs []byte) (v PointID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return PointID(u), n, err
}

func (s pointIDMUS) Size(v PointID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s pointIDMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

type timeMUS struct{}

func (s timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(unixMicro(v), bs)
}

func (s timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (s timeMUS) Size(v time.Time) (size int) {
	return varint.Int64.Size(unixMicro(v))
}

func (s timeMUS) Skip(bs []byte) (n int, err error) {
	return varint.Int64.Skip(bs)
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type float32SliceMUS struct{}

func (s float32SliceMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (s float32SliceMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (s float32SliceMUS) Size(v []float32) (size int) {
	size = varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return
}

func (s float32SliceMUS) Skip(bs []byte) (n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	for range length {
		n1, err = raw.Float32.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

type pointMUS struct{}

func (s pointMUS) Marshal(v Point, bs []byte) (n int) {
	n = PointIDMUS.Marshal(v.ID, bs)
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += ord.String.Marshal(v.Payload.Text, bs[n:])
	n += ord.String.Marshal(v.Payload.Source, bs[n:])
	return
}

func (s pointMUS) Unmarshal(bs []byte) (v Point, n int, err error) {
	v.ID, n, err = PointIDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Payload.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Payload.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (s pointMUS) Size(v Point) (size int) {
	size = PointIDMUS.Size(v.ID)
	size += vectorMUS.Size(v.Vector)
	size += ord.String.Size(v.Payload.Text)
	return size + ord.String.Size(v.Payload.Source)
}

func (s pointMUS) Skip(bs []byte) (n int, err error) {
	n, err = PointIDMUS.Skip(bs)
	if err != nil {
		return
	}
	var n1 int
	n1, err = vectorMUS.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	return
}

type collectionConfigMUS struct{}

func (s collectionConfigMUS) Marshal(v CollectionConfig, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += varint.PositiveInt.Marshal(v.Dimension, bs[n:])
	n += varint.PositiveInt.Marshal(int(v.Metric), bs[n:])
	return
}

func (s collectionConfigMUS) Unmarshal(bs []byte) (v CollectionConfig, n int, err error) {
	v.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Dimension, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var metric int
	metric, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	v.Metric = Metric(metric)
	return
}

func (s collectionConfigMUS) Size(v CollectionConfig) (size int) {
	size = ord.String.Size(v.Name)
	size += varint.PositiveInt.Size(v.Dimension)
	return size + varint.PositiveInt.Size(int(v.Metric))
}

func (s collectionConfigMUS) Skip(bs []byte) (n int, err error) {
	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}
	var n1 int
	for range 2 {
		n1, err = varint.PositiveInt.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

type runMUS struct{}

func (s runMUS) strings(v Run) []string {
	return []string{v.ID, v.FunctionID, v.EventID, v.EventName,
		string(v.EventData), string(v.Status), string(v.Output), v.Error}
}

func (s runMUS) Marshal(v Run, bs []byte) (n int) {
	for _, str := range s.strings(v) {
		n += ord.String.Marshal(str, bs[n:])
	}
	n += timeMicroMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMicroMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (s runMUS) Unmarshal(bs []byte) (v Run, n int, err error) {
	fields := make([]string, 8)
	var n1 int
	for i := range fields {
		fields[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.ID = fields[0]
	v.FunctionID = fields[1]
	v.EventID = fields[2]
	v.EventName = fields[3]
	v.EventData = rawJSON(fields[4])
	v.Status = RunStatus(fields[5])
	v.Output = rawJSON(fields[6])
	v.Error = fields[7]

	v.CreatedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (s runMUS) Size(v Run) (size int) {
	for _, str := range s.strings(v) {
		size += ord.String.Size(str)
	}
	size += timeMicroMUS.Size(v.CreatedAt)
	return size + timeMicroMUS.Size(v.UpdatedAt)
}

func (s runMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	for range 8 {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	for range 2 {
		n1, err = timeMicroMUS.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

type stepResultMUS struct{}

func (s stepResultMUS) Marshal(v StepResult, bs []byte) (n int) {
	n = ord.String.Marshal(v.RunID, bs)
	n += ord.String.Marshal(v.StepID, bs[n:])
	n += ord.String.Marshal(string(v.Value), bs[n:])
	n += timeMicroMUS.Marshal(v.CreatedAt, bs[n:])
	return
}

func (s stepResultMUS) Unmarshal(bs []byte) (v StepResult, n int, err error) {
	v.RunID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.StepID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var value string
	value, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Value = rawJSON(value)
	v.CreatedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (s stepResultMUS) Size(v StepResult) (size int) {
	size = ord.String.Size(v.RunID)
	size += ord.String.Size(v.StepID)
	size += ord.String.Size(string(v.Value))
	return size + timeMicroMUS.Size(v.CreatedAt)
}

func (s stepResultMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	for range 3 {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	n1, err = timeMicroMUS.Skip(bs[n:])
	n += n1
	return
}

func rawJSON(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
