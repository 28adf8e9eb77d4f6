package badger

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// Key prefixes for different data types.
// Destination names may contain any byte except NUL, which separates key parts.
const (
	documentPrefix     = "doc"
	indexEntryPrefix   = "idx"
	indexCatalogPrefix = "idxcat"
	destinationPrefix  = "dest"
	documentIDSeq      = "docseq"
	keySep             = 0x00
)

// Document id tags keep string and integer ids from colliding.
const (
	idTagString = 's'
	idTagInt    = 'i'
)

// makeDestinationKey generates the marker key recording that a destination exists.
func makeDestinationKey(destination string) []byte {
	return []byte(destinationPrefix + ":" + destination)
}

// makeDocumentPrefix generates the prefix shared by all documents of a destination.
// Format: prefix:destination NUL
func makeDocumentPrefix(destination string) []byte {
	return append([]byte(documentPrefix+":"+destination), keySep)
}

// makeDocumentKey generates the primary key of a document.
// Format: prefix:destination NUL encodedID
func makeDocumentKey(destination string, encodedID []byte) []byte {
	return append(makeDocumentPrefix(destination), encodedID...)
}

// encodeID turns an _id value into key bytes.
// Only string and integer ids are accepted.
func encodeID(v core.Value) ([]byte, error) {
	switch v.Kind() {
	case core.KindString:
		s, _ := v.AsString()
		return append([]byte{idTagString}, s...), nil
	case core.KindInt:
		i, _ := v.AsInt()
		buf := make([]byte, 9)
		buf[0] = idTagInt
		// Write in BigEndian order so lexicographic sort works correctly
		binary.BigEndian.PutUint64(buf[1:], uint64(i)^(1<<63))
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: _id of kind %s is not supported", storage.ErrInvalidDocument, v.Kind())
	}
}

// makeIndexPrefix generates the prefix shared by all entries of one index.
// Format: prefix:destination NUL indexName NUL
func makeIndexPrefix(destination, indexName string) []byte {
	buf := append([]byte(indexEntryPrefix+":"+destination), keySep)
	buf = append(buf, indexName...)
	return append(buf, keySep)
}

// makeIndexEntryKey generates an index entry pointing at a document.
// Format: prefix:destination NUL indexName NUL len(values) values encodedID
func makeIndexEntryKey(destination, indexName string, values, encodedID []byte) []byte {
	buf := makeIndexPrefix(destination, indexName)
	buf = binary.AppendUvarint(buf, uint64(len(values)))
	buf = append(buf, values...)
	return append(buf, encodedID...)
}

// makeIndexCatalogPrefix generates the prefix of the index catalog of a destination.
func makeIndexCatalogPrefix(destination string) []byte {
	return append([]byte(indexCatalogPrefix+":"+destination), keySep)
}

// makeIndexCatalogKey generates the catalog key of one index.
func makeIndexCatalogKey(destination, indexName string) []byte {
	return append(makeIndexCatalogPrefix(destination), indexName...)
}

// indexValues extracts the indexed fields of doc. Missing fields index as null.
func indexValues(doc *core.Document, spec core.IndexSpec) []byte {
	projected := core.NewDocument()
	for _, field := range spec.Fields {
		v, _ := doc.Get(field)
		projected.Set(field, v)
	}
	return storage.MarshalDocument(projected)
}

// describeID renders an encoded id for error messages.
func describeID(encodedID []byte) string {
	if len(encodedID) == 9 && encodedID[0] == idTagInt {
		return strconv.FormatInt(int64(binary.BigEndian.Uint64(encodedID[1:])^(1<<63)), 10)
	}
	if len(encodedID) > 0 {
		return strconv.Quote(string(encodedID[1:]))
	}
	return `""`
}
