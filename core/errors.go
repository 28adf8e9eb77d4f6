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

import "errors"

// Pipeline error classes. Only ErrArchiveUnreadable aborts a whole run;
// ErrWriteUnavailable aborts a single destination; the rest are absorbed
// and surfaced as counters and events.
var (
	// ErrArchiveUnreadable indicates the archive container could not be opened or read.
	ErrArchiveUnreadable = errors.New("archive unreadable")

	// ErrRecordDecode indicates an archive entry could not be decoded into a document.
	ErrRecordDecode = errors.New("record decode failed")

	// ErrPartialWrite indicates some documents of a batch were rejected by the store.
	ErrPartialWrite = errors.New("partial write")

	// ErrWriteUnavailable indicates the store could not be reached within the retry budget.
	ErrWriteUnavailable = errors.New("write unavailable")

	// ErrIndexBuild indicates a single index could not be created.
	ErrIndexBuild = errors.New("index build failed")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidBatch indicates a Batch failed validation.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrEmptyEntryName indicates the record has no source entry name.
	ErrEmptyEntryName = errors.New("source entry name cannot be empty")

	// ErrEmptyGroup indicates the record has no source group.
	ErrEmptyGroup = errors.New("source group cannot be empty")

	// ErrNilPayload indicates the record has no payload document.
	ErrNilPayload = errors.New("payload cannot be nil")

	// ErrEmptyBatch indicates a batch without records.
	ErrEmptyBatch = errors.New("batch cannot be empty")

	// ErrMixedDestinations indicates a batch holding records for more than one destination.
	ErrMixedDestinations = errors.New("batch records must share one destination")

	// ErrInvalidTransition indicates a destination state change that the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid destination state transition")
)
