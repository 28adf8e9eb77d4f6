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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// DefaultIndexFields are the business fields indexed when a sampled document has them.
var DefaultIndexFields = []string{"factura_num", "fecha_hora"}

// IndexFailure records one index that could not be created.
type IndexFailure struct {
	Index string
	Err   error
}

// IndexResult is the outcome of building the indexes of one destination.
type IndexResult struct {
	Destination string
	Planned     []core.IndexSpec
	Built       []string
	Failures    []IndexFailure
	SampleErr   error // sampling failed; only the fixed indexes were planned
	Duration    time.Duration
}

// IndexBuilder creates the secondary indexes of a destination after its load.
type IndexBuilder struct {
	store       storage.IndexManager
	conditional []string
	onIndex     func(destination string, spec core.IndexSpec, err error)
	logger      *slog.Logger
}

// NewIndexBuilder creates an index builder. fields lists the business fields
// indexed only when present in a sampled document; nil selects DefaultIndexFields.
func NewIndexBuilder(store storage.IndexManager, fields []string, logger *slog.Logger) *IndexBuilder {
	if fields == nil {
		fields = DefaultIndexFields
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexBuilder{
		store:       store,
		conditional: fields,
		logger:      logger.With("component", "indexer"),
	}
}

// Plan returns the indexes for a destination whose documents look like sample:
// the provenance file, the provenance folder, the compound (folder, file), and
// one index per conditional field present in sample. A nil sample yields the
// fixed set only.
func (b *IndexBuilder) Plan(sample *core.Document) []core.IndexSpec {
	specs := []core.IndexSpec{
		core.NewIndexSpec(core.FieldSourceFile),
		core.NewIndexSpec(core.FieldSourceFolder),
		core.NewIndexSpec(core.FieldSourceFolder, core.FieldSourceFile),
	}
	for _, field := range b.conditional {
		if sample.Has(field) {
			specs = append(specs, core.NewIndexSpec(field))
		}
	}
	return specs
}

// Build samples one document of destination and creates every planned index.
// A failing index is recorded and the remaining ones are still attempted.
// Indexes that already exist are reported as built.
func (b *IndexBuilder) Build(ctx context.Context, destination string) IndexResult {
	start := time.Now()
	result := IndexResult{Destination: destination}

	sample, err := b.store.SampleDocument(ctx, destination)
	if err != nil {
		result.SampleErr = fmt.Errorf("%w: sampling %s: %w", core.ErrIndexBuild, destination, err)
		b.logger.Warn("could not sample destination, building fixed indexes only",
			"destination", destination, "err", err)
		sample = nil
	}

	result.Planned = b.Plan(sample)
	for _, spec := range result.Planned {
		err := b.store.CreateIndex(ctx, destination, spec)
		if err != nil {
			err = fmt.Errorf("%w: %s on %s: %w", core.ErrIndexBuild, spec.Name, destination, err)
			result.Failures = append(result.Failures, IndexFailure{Index: spec.Name, Err: err})
			b.logger.Warn("index build failed", "destination", destination, "index", spec.Name, "err", err)
		} else {
			result.Built = append(result.Built, spec.Name)
			b.logger.Debug("index built", "destination", destination, "index", spec.Name)
		}
		if b.onIndex != nil {
			b.onIndex(destination, spec, err)
		}
	}

	result.Duration = time.Since(start)
	return result
}
