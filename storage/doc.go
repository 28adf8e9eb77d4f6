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

// Package storage defines the document store contracts used by the loader.
//
// A Store holds one collection per destination. Loads go through
// DocumentWriter.BulkWrite, which reports per-document rejections in a
// *BulkWriteError instead of failing the whole call; index creation and
// sampling go through IndexManager.
//
// # Implementations
//
//   - storage/mongo: MongoDB through the official driver
//   - storage/badger: an embedded BadgerDB document store, also used in tests
//
// Both report rejected documents with the same codes (CodeDuplicateKey,
// CodeInvalidDocument, CodeDocumentValidation) and signal connectivity
// problems by wrapping ErrUnavailable, the only error class callers retry.
//
// # Usage
//
//	store, err := badger.Open("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	result, err := store.BulkWrite(ctx, "2024", docs, storage.BulkLoadOptions())
//
// # Thread Safety
//
// All Store implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
