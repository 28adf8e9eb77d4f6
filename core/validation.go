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

import "fmt"

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - EntryName must not be empty
//   - Group must not be empty
//   - Payload must not be nil
//
// The payload itself is opaque and never validated.
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.EntryName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyEntryName)
	}
	if record.Group == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyGroup)
	}
	if record.Payload == nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrNilPayload)
	}
	return nil
}

// ValidateBatch checks that a batch is non-empty and that every record maps
// to the batch destination.
func ValidateBatch(batch *Batch) error {
	if batch == nil || len(batch.Records) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBatch, ErrEmptyBatch)
	}
	for i := range batch.Records {
		if dest := batch.Records[i].Destination(); dest != batch.Destination {
			return fmt.Errorf("%w: %w: record %d maps to %q, batch to %q",
				ErrInvalidBatch, ErrMixedDestinations, i, dest, batch.Destination)
		}
	}
	return nil
}
