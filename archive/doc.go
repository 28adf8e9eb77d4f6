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

// Package archive reads structured records out of archive containers.
//
// An Archive is a read-only view over a container (ZIP, tar or LZ4-compressed
// tar) exposing its entries as named byte blobs. Contents are read straight
// from the container into memory; nothing is extracted to disk.
//
// Source walks an Archive and turns every matching entry into a core.Record:
//
//	a, err := archive.Open("facturas.zip")
//	if err != nil {
//	    return err // wraps core.ErrArchiveUnreadable
//	}
//	defer a.Close()
//
//	src := archive.NewSource(a)
//	err = src.ForEach(ctx, func(rec core.Record) error {
//	    ...
//	})
//
// Entries that fail to decode are skipped and reported, never fatal.
package archive
