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
	"bytes"
	"encoding/json"
	"fmt"
)

// Event names accepted by the workflow runner.
const (
	EventIngestDocument = "ingest_document"
	EventQueryDocument  = "query_document"
)

// DefaultTopK is the number of passages retrieved when a query omits top_k.
const DefaultTopK = 5

// Event is an inbound, validated workflow trigger.
type Event interface {
	EventName() string
}

// IngestDocumentEvent requests ingestion of a document's raw text.
type IngestDocumentEvent struct {
	SourceID string `json:"source_id"`
	RawText  string `json:"raw_text"`
}

// EventName implements Event.
func (IngestDocumentEvent) EventName() string { return EventIngestDocument }

// QueryDocumentEvent requests an answer grounded in ingested documents.
// An empty SourceFilter searches every source.
type QueryDocumentEvent struct {
	Question     string `json:"question"`
	TopK         int    `json:"top_k"`
	SourceFilter string `json:"source_filter,omitempty"`
}

// EventName implements Event.
func (QueryDocumentEvent) EventName() string { return EventQueryDocument }

type ingestDocumentWire struct {
	SourceID *string `json:"source_id"`
	RawText  *string `json:"raw_text"`
}

type queryDocumentWire struct {
	Question     *string `json:"question"`
	TopK         *int    `json:"top_k"`
	SourceFilter *string `json:"source_filter"`
}

// DecodeEvent parses and validates the data of a named event.
// All failures wrap ErrValidation.
func DecodeEvent(name string, data []byte) (Event, error) {
	switch name {
	case EventIngestDocument:
		var w ingestDocumentWire
		if err := decodeEventData(data, &w); err != nil {
			return nil, err
		}
		if w.SourceID == nil {
			return nil, fmt.Errorf("%w: source_id", ErrMissingField)
		}
		if w.RawText == nil {
			return nil, fmt.Errorf("%w: raw_text", ErrMissingField)
		}
		ev := IngestDocumentEvent{SourceID: *w.SourceID, RawText: *w.RawText}
		if err := ValidateEvent(ev); err != nil {
			return nil, err
		}
		return ev, nil

	case EventQueryDocument:
		var w queryDocumentWire
		if err := decodeEventData(data, &w); err != nil {
			return nil, err
		}
		if w.Question == nil {
			return nil, fmt.Errorf("%w: question", ErrMissingField)
		}
		ev := QueryDocumentEvent{Question: *w.Question, TopK: DefaultTopK}
		if w.TopK != nil {
			ev.TopK = *w.TopK
		}
		if w.SourceFilter != nil {
			ev.SourceFilter = *w.SourceFilter
		}
		if err := ValidateEvent(ev); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// EncodeEvent returns the JSON data of an event.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// decodeEventData treats empty or null data as an empty object. Fields the
// event does not define are ignored.
func decodeEventData(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
