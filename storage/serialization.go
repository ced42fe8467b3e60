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

package storage

import (
	"fmt"

	"github.com/poiesic/ragflow/core"
)

// MarshalPoint serializes a Point to bytes.
func MarshalPoint(point *core.Point) []byte {
	buf := make([]byte, core.PointMUS.Size(*point))
	core.PointMUS.Marshal(*point, buf)
	return buf
}

// UnmarshalPoint deserializes a Point from bytes.
func UnmarshalPoint(data []byte) (*core.Point, error) {
	point, _, err := core.PointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &point, nil
}

// MarshalCollectionConfig serializes a CollectionConfig to bytes.
func MarshalCollectionConfig(cfg *core.CollectionConfig) []byte {
	buf := make([]byte, core.CollectionConfigMUS.Size(*cfg))
	core.CollectionConfigMUS.Marshal(*cfg, buf)
	return buf
}

// UnmarshalCollectionConfig deserializes a CollectionConfig from bytes.
func UnmarshalCollectionConfig(data []byte) (*core.CollectionConfig, error) {
	cfg, _, err := core.CollectionConfigMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &cfg, nil
}

// MarshalRun serializes a Run to bytes.
func MarshalRun(run *core.Run) []byte {
	buf := make([]byte, core.RunMUS.Size(*run))
	core.RunMUS.Marshal(*run, buf)
	return buf
}

// UnmarshalRun deserializes a Run from bytes.
func UnmarshalRun(data []byte) (*core.Run, error) {
	run, _, err := core.RunMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &run, nil
}

// MarshalStepResult serializes a StepResult to bytes.
func MarshalStepResult(result *core.StepResult) []byte {
	buf := make([]byte, core.StepResultMUS.Size(*result))
	core.StepResultMUS.Marshal(*result, buf)
	return buf
}

// UnmarshalStepResult deserializes a StepResult from bytes.
func UnmarshalStepResult(data []byte) (*core.StepResult, error) {
	result, _, err := core.StepResultMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &result, nil
}
