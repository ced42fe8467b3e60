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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// MatchAll is the source filter value that disables source filtering.
const MatchAll = "__ALL__"

// PointID identifies a point in a vector collection.
// Point ids are derived from content so re-ingesting a source overwrites its points.
type PointID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) PointID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return PointID(binary.LittleEndian.Uint64(sum))
}

// PointIDFor returns the id of the chunk at index within sourceID.
func PointIDFor(sourceID string, index int) PointID {
	return IDFromContent(sourceID + ":" + strconv.Itoa(index))
}

// Metric selects the similarity function of a collection.
type Metric int

const (
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = iota + 1
	// MetricDot scores by raw dot product.
	MetricDot
	// MetricEuclid scores by negated euclidean distance.
	MetricEuclid
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	case MetricEuclid:
		return "euclid"
	default:
		return "unknown"
	}
}

// ParseMetric parses a metric name. Matching is case-insensitive.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return MetricCosine, nil
	case "dot":
		return MetricDot, nil
	case "euclid", "euclidean":
		return MetricEuclid, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, s)
	}
}

// CollectionConfig describes a vector collection.
type CollectionConfig struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Chunk is a contiguous passage of a source document.
type Chunk struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
}

// Payload is the metadata stored alongside a point's vector.
type Payload struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Point is a stored vector with its payload.
type Point struct {
	ID      PointID
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      PointID
	Score   float32
	Payload Payload
}

// Retrieval is the projection of search hits used to build a prompt.
type Retrieval struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// Project extracts prompt contexts and distinct sources from search hits.
// Hits with empty text are skipped. Sources keep first-seen order.
func Project(points []ScoredPoint) Retrieval {
	r := Retrieval{
		Contexts: []string{},
		Sources:  []string{},
	}
	seen := make(map[string]struct{})
	for _, p := range points {
		if p.Payload.Text == "" {
			continue
		}
		r.Contexts = append(r.Contexts, p.Payload.Text)
		if p.Payload.Source == "" {
			continue
		}
		if _, ok := seen[p.Payload.Source]; ok {
			continue
		}
		seen[p.Payload.Source] = struct{}{}
		r.Sources = append(r.Sources, p.Payload.Source)
	}
	return r
}

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "Queued"
	RunStatusRunning   RunStatus = "Running"
	RunStatusCompleted RunStatus = "Completed"
	RunStatusFailed    RunStatus = "Failed"
	RunStatusCancelled RunStatus = "Cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run is a single execution of a workflow function for one event.
type Run struct {
	ID         string
	FunctionID string
	EventID    string
	EventName  string
	EventData  json.RawMessage
	Status     RunStatus
	Output     json.RawMessage // JSON, set once the run is terminal
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StepResult is the memoized output of one named step of a run.
type StepResult struct {
	RunID     string
	StepID    string
	Value     json.RawMessage
	CreatedAt time.Time
}

// IngestResult is the output of an ingestion run.
type IngestResult struct {
	Ingested int `json:"ingested"`
}

// QueryResult is the output of a query run.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}
