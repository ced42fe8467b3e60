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

package ragflow

import (
	"context"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/ingestion"
	"github.com/poiesic/ragflow/query"
	"github.com/poiesic/ragflow/workflow"
)

// Function ids registered by the engine.
const (
	FunctionIngestDocument = "rag-ingest-document"
	FunctionQueryDocument  = "rag-query-document"
)

// Step ids. Changing them invalidates memoized results of unfinished runs.
const (
	StepLoadAndChunk   = "load-and-chunk"
	StepEmbedAndUpsert = "embed-and-upsert"
	StepEmbedAndSearch = "embed-and-search"
	StepLLMAnswer      = "llm-answer"
)

// IngestFunction chunks a document in one step and embeds and stores the
// chunks in a second, so a failed upsert is retried without re-chunking.
func IngestFunction(p *ingestion.Pipeline) workflow.Function {
	return workflow.Function{
		ID:      FunctionIngestDocument,
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *workflow.Steps, event core.Event) (any, error) {
			ev, ok := event.(core.IngestDocumentEvent)
			if !ok {
				return nil, workflow.NonRetryable(core.ErrUnknownEvent)
			}

			chunks, err := workflow.Run(ctx, steps, StepLoadAndChunk, func(ctx context.Context) ([]core.Chunk, error) {
				return p.Chunk(ev.SourceID, ev.RawText)
			})
			if err != nil {
				return nil, err
			}

			return workflow.Run(ctx, steps, StepEmbedAndUpsert, func(ctx context.Context) (core.IngestResult, error) {
				return p.Store(ctx, chunks)
			})
		},
	}
}

// QueryFunction retrieves passages in one step and generates the answer in
// a second, so a failed generation does not repeat the search.
func QueryFunction(p *query.Pipeline) workflow.Function {
	return workflow.Function{
		ID:      FunctionQueryDocument,
		Trigger: core.EventQueryDocument,
		Handler: func(ctx context.Context, steps *workflow.Steps, event core.Event) (any, error) {
			ev, ok := event.(core.QueryDocumentEvent)
			if !ok {
				return nil, workflow.NonRetryable(core.ErrUnknownEvent)
			}

			retrieval, err := workflow.Run(ctx, steps, StepEmbedAndSearch, func(ctx context.Context) (core.Retrieval, error) {
				return p.Retrieve(ctx, ev.Question, ev.TopK, ev.SourceFilter)
			})
			if err != nil {
				return nil, err
			}

			return workflow.Run(ctx, steps, StepLLMAnswer, func(ctx context.Context) (core.QueryResult, error) {
				return p.Generate(ctx, ev.Question, retrieval)
			})
		},
	}
}
