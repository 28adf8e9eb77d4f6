package core

import (
	"strings"
)

// Reserved payload keys.
const (
	// FieldSourceFile holds the full in-archive path of the entry a document came from.
	FieldSourceFile = "_source_file"
	// FieldSourceFolder holds the top-level archive directory of the entry.
	FieldSourceFolder = "_source_folder"
	// FieldID is the primary key field of stored documents.
	FieldID = "_id"
)

// RootGroup is the group assigned to entries stored at the archive root.
const RootGroup = "root"

// Record is one decoded archive entry tagged with its provenance.
type Record struct {
	EntryName string    // source_entry_name: full path inside the archive
	Group     string    // source_group: enclosing top-level directory
	Payload   *Document // decoded entry contents with provenance fields injected
}

// Destination returns the id of the destination this record is loaded into.
func (r Record) Destination() string {
	return DestinationID(r.Group)
}

// Batch is a bounded, ordered group of records bound for one destination.
type Batch struct {
	Destination string
	Seq         int // 1-based position of the batch within its destination
	Records     []Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Documents returns the payloads of the batch in record order.
func (b *Batch) Documents() []*Document {
	docs := make([]*Document, len(b.Records))
	for i := range b.Records {
		docs[i] = b.Records[i].Payload
	}
	return docs
}

// IndexSpec describes one secondary index over one or more ascending fields.
type IndexSpec struct {
	Name   string
	Fields []string
}

// NewIndexSpec builds a spec named the way document stores name ascending
// indexes by default, e.g. "_source_folder_1__source_file_1".
func NewIndexSpec(fields ...string) IndexSpec {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + "_1"
	}
	return IndexSpec{
		Name:   strings.Join(parts, "_"),
		Fields: append([]string(nil), fields...),
	}
}

// Equal reports whether both specs index the same fields under the same name.
func (s IndexSpec) Equal(other IndexSpec) bool {
	if s.Name != other.Name || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}
