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

package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docloader/core"
)

const (
	// DefaultSuffix selects the entries decoded into records.
	DefaultSuffix = ".json"
)

// SourceStats counts what a Source saw during ForEach.
type SourceStats struct {
	Entries      int // archive members visited, directories excluded
	Records      int // records handed to the callback
	Skipped      int // members ignored because of their suffix
	DecodeErrors int // members that could not be read or decoded
}

// DecodeErrorHandler receives entries that were skipped because they could not be decoded.
// err wraps core.ErrRecordDecode.
type DecodeErrorHandler func(entryName, group string, err error)

// Source turns archive entries into records.
type Source struct {
	archive          Archive
	suffix           string
	deterministicIDs bool
	onDecodeError    DecodeErrorHandler
	logger           *slog.Logger
	stats            SourceStats
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithSuffix sets the entry name suffix that marks structured-data entries.
// Matching is case-insensitive. Default is ".json".
func WithSuffix(suffix string) SourceOption {
	return func(s *Source) {
		if suffix != "" {
			s.suffix = strings.ToLower(suffix)
		}
	}
}

// WithDeterministicIDs assigns an _id derived from the entry name to payloads
// that have none, so reloading an archive produces duplicate-key rejections
// rather than duplicate documents.
func WithDeterministicIDs() SourceOption {
	return func(s *Source) {
		s.deterministicIDs = true
	}
}

// WithDecodeErrorHandler registers a callback for entries that fail to decode.
func WithDecodeErrorHandler(fn DecodeErrorHandler) SourceOption {
	return func(s *Source) {
		s.onDecodeError = fn
	}
}

// WithSourceLogger sets a custom logger.
// Default is slog.Default().
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource creates a record source over a.
func NewSource(a Archive, opts ...SourceOption) *Source {
	s := &Source{
		archive: a,
		suffix:  DefaultSuffix,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "source")
	return s
}

// ForEach decodes every matching entry in archive order and calls fn with the
// resulting record. Iteration stops on the first error from fn.
// Context cancellation is checked between entries.
func (s *Source) ForEach(ctx context.Context, fn func(core.Record) error) error {
	s.stats = SourceStats{}

	for _, entry := range s.archive.Entries() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if entry.Dir {
			continue
		}
		s.stats.Entries++

		if !strings.HasSuffix(strings.ToLower(entry.Name), s.suffix) {
			s.stats.Skipped++
			continue
		}

		record, err := s.decode(entry.Name)
		if err != nil {
			s.stats.DecodeErrors++
			s.logger.Debug("skipping undecodable entry", "entry", entry.Name, "err", err)
			if s.onDecodeError != nil {
				s.onDecodeError(entry.Name, GroupOf(entry.Name), err)
			}
			continue
		}

		s.stats.Records++
		if err := fn(record); err != nil {
			return err
		}
	}

	return nil
}

// Stats returns the counters of the last ForEach call.
func (s *Source) Stats() SourceStats {
	return s.stats
}

// SkipCounts returns the decode failures and the suffix-skipped entries of the last ForEach call.
func (s *Source) SkipCounts() (decodeErrors, skipped int) {
	return s.stats.DecodeErrors, s.stats.Skipped
}

// Candidates returns how many entries ForEach will try to decode.
func (s *Source) Candidates() int {
	n := 0
	for _, entry := range s.archive.Entries() {
		if !entry.Dir && strings.HasSuffix(strings.ToLower(entry.Name), s.suffix) {
			n++
		}
	}
	return n
}

// decode reads one entry and injects provenance fields.
func (s *Source) decode(name string) (core.Record, error) {
	data, err := s.archive.ReadEntry(name)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %s: %w", core.ErrRecordDecode, name, err)
	}

	payload, err := core.ParseDocument(data)
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %s: %w", core.ErrRecordDecode, name, err)
	}

	group := GroupOf(name)
	if payload.Has(core.FieldSourceFile) || payload.Has(core.FieldSourceFolder) {
		s.logger.Debug("overwriting provenance fields present in payload", "entry", name)
	}
	payload.Set(core.FieldSourceFile, core.String(name))
	payload.Set(core.FieldSourceFolder, core.String(group))

	if s.deterministicIDs && !payload.Has(core.FieldID) {
		payload.Set(core.FieldID, core.String(core.IDFromContent(name).String()))
	}

	return core.Record{
		EntryName: name,
		Group:     group,
		Payload:   payload,
	}, nil
}
