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

import "errors"

var (
	// ErrNotFound indicates that the requested destination or document was not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey indicates a duplicate key violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidDocument indicates a document the store cannot accept.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrUnavailable indicates the store could not be reached or timed out.
	// Operations failing with ErrUnavailable may be retried as a whole.
	ErrUnavailable = errors.New("store unavailable")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidIndex indicates an index spec without fields or name.
	ErrInvalidIndex = errors.New("invalid index spec")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)

// Per-document error codes reported in WriteError.Code.
// Values follow the MongoDB server codes so both backends report alike.
const (
	CodeInvalidDocument    = 2
	CodeDocumentValidation = 121
	CodeDuplicateKey       = 11000
)
