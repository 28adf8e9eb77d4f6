package storage

import (
	"testing"

	"github.com/poiesic/docloader/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDocument_RoundTrip(t *testing.T) {
	doc, err := core.ParseDocument([]byte(`{
		"factura_num": "F-001",
		"total": 1250.75,
		"items": [{"sku": "A", "qty": 3}, {"sku": "B", "qty": -1}],
		"pagada": true,
		"nota": null,
		"_source_file": "A/1.json"
	}`))
	require.NoError(t, err)

	data := MarshalDocument(doc)
	got, err := UnmarshalDocument(data)
	require.NoError(t, err)

	assert.True(t, doc.Equal(got))
	assert.Equal(t, doc.Keys(), got.Keys())
}

func TestMarshalDocument_Empty(t *testing.T) {
	got, err := UnmarshalDocument(MarshalDocument(core.NewDocument()))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestUnmarshalDocument_Truncated(t *testing.T) {
	data := MarshalDocument(core.DocumentOf("key", "a fairly long string value"))
	_, err := UnmarshalDocument(data[:len(data)-4])
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalDocument(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalDocument_NotADocument(t *testing.T) {
	v := core.String("scalar")
	buf := make([]byte, sizeValue(v))
	marshalValue(v, buf)

	_, err := UnmarshalDocument(buf)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalIndexSpec_RoundTrip(t *testing.T) {
	spec := core.NewIndexSpec(core.FieldSourceFolder, core.FieldSourceFile)

	got, err := UnmarshalIndexSpec(MarshalIndexSpec(spec))
	require.NoError(t, err)
	assert.True(t, spec.Equal(got))
}

func TestBulkWriteError(t *testing.T) {
	err := &BulkWriteError{Result: BulkResult{
		Accepted: 7,
		Rejected: 1,
		Errors:   []WriteError{{Index: 3, Code: CodeDuplicateKey, Message: "duplicate key"}},
	}}

	assert.ErrorIs(t, err, core.ErrPartialWrite)
	assert.Contains(t, err.Error(), "rejected 1 of 8")
	assert.Contains(t, err.Error(), "code 11000")
}

func TestBulkLoadOptions(t *testing.T) {
	opts := BulkLoadOptions()
	assert.False(t, opts.Ordered)
	assert.True(t, opts.BypassValidation)
	assert.Equal(t, WriteConcernPrimaryAck, opts.WriteConcern)
	assert.Equal(t, "primary-ack", opts.WriteConcern.String())
}
