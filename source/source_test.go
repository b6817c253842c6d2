package source

import (
	"context"
	"testing"

	"github.com/hupe1980/gvsingest/blobstore"
	"github.com/hupe1980/gvsingest/record"
	"github.com/hupe1980/gvsingest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()
	rng := testutil.NewRNG(4711)
	store := blobstore.NewMemoryStore()
	store.Put("vets_002.avro", testutil.EncodeOCF(t, testutil.VetsSchema, rng.Vets(2, 1, 5, 0)))
	store.Put("vets_001.avro", testutil.EncodeOCF(t, testutil.VetsSchema, rng.Vets(1, 24, 12, 1000)))
	store.Put("README.txt", []byte("not avro"))
	return store
}

func TestFindPaths(t *testing.T) {
	paths, err := FindPaths(t.Context(), newStore(t), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"vets_001.avro", "vets_002.avro"}, paths)

	paths, err = FindPaths(t.Context(), newStore(t), "vets_002")
	require.NoError(t, err)
	assert.Equal(t, []string{"vets_002.avro"}, paths)
}

func TestReader_Schema(t *testing.T) {
	r, err := Open(t.Context(), newStore(t), "vets_001.avro")
	require.NoError(t, err)
	defer r.Close()

	schema := r.Schema()
	require.Len(t, schema, 6)
	assert.Equal(t, "location", schema[0].Name)
	assert.Equal(t, `"long"`, schema[0].Type)
	assert.Equal(t, "call_GT", schema[4].Name)
	assert.Equal(t, `["null","string"]`, schema[4].Type)
}

func TestReader_Records(t *testing.T) {
	rows := testutil.NewRNG(4711).Vets(1, 24, 12, 1000)
	rows[3]["call_GT"] = "0/1"
	rows[4]["call_GT"] = nil

	store := blobstore.NewMemoryStore()
	store.Put("v.avro", testutil.EncodeOCF(t, testutil.VetsSchema, rows))

	r, err := Open(t.Context(), store, "v.avro")
	require.NoError(t, err)
	defer r.Close()

	var got []*record.Record
	for rec, err := range r.Records() {
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Len(t, got, 12)
	assert.Equal(t, int64(12), r.Count())

	first := got[0]
	assert.Equal(t, []string{"location", "sample_id", "ref", "alt", "call_GT", "call_GQ"}, first.Keys())
	loc, ok := first.Int64(record.FieldLocation)
	require.True(t, ok)
	assert.Equal(t, rows[0][record.FieldLocation], loc)

	gt, ok := got[3].String("call_GT")
	require.True(t, ok)
	assert.Equal(t, "0/1", gt)

	assert.False(t, got[4].Has("call_GT"))
	_, present := got[4].Get("call_GT")
	assert.True(t, present, "null fields stay until normalization")
}

func TestReader_RecordsFeedClassify(t *testing.T) {
	store := blobstore.NewMemoryStore()
	store.Put("r.avro", testutil.EncodeOCF(t, testutil.RefRangesSchema, testutil.NewRNG(1).RefRanges(9, 3, 20, 0)))

	err := Each(t.Context(), store, "r.avro", func(r *Reader) error {
		for rec, err := range r.Records() {
			if err != nil {
				return err
			}
			shape, err := record.Classify(rec)
			if err != nil {
				return err
			}
			assert.IsType(t, record.ReferenceBlock{}, shape)
			sample, err := record.SampleID(rec)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(9), sample)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReader_StopEarly(t *testing.T) {
	r, err := Open(t.Context(), newStore(t), "vets_001.avro")
	require.NoError(t, err)
	defer r.Close()

	n := 0
	for range r.Records() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open(context.Background(), newStore(t), "missing.avro")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestOpen_NotAvro(t *testing.T) {
	_, err := Open(t.Context(), newStore(t), "README.txt")
	assert.Error(t, err)
}

func TestOpen_NotRecordSchema(t *testing.T) {
	store := blobstore.NewMemoryStore()
	var rows []testutil.Row
	data := testutil.EncodeOCF(t, `"long"`, rows)
	store.Put("l.avro", data)

	_, err := Open(t.Context(), store, "l.avro")
	assert.ErrorIs(t, err, ErrNotRecordSchema)
}

func TestEach_PropagatesCallbackError(t *testing.T) {
	err := Each(t.Context(), newStore(t), "vets_001.avro", func(*Reader) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

// cachedStore returns the same listing slice on every call.
type cachedStore struct {
	names []string
}

func (s *cachedStore) List(context.Context, string) ([]string, error) { return s.names, nil }

func (s *cachedStore) Open(context.Context, string) (blobstore.Blob, error) {
	return nil, blobstore.ErrNotFound
}

func TestFindPaths_LeavesListingIntact(t *testing.T) {
	store := &cachedStore{names: []string{"README.txt", "b.avro", "notes.md", "a.avro"}}

	paths, err := FindPaths(t.Context(), store, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.avro", "b.avro"}, paths)
	assert.Equal(t, []string{"README.txt", "b.avro", "notes.md", "a.avro"}, store.names)
}

func TestReader_Fingerprint(t *testing.T) {
	store := newStore(t)
	store.Put("ref_ranges_001.avro", testutil.EncodeOCF(t, testutil.RefRangesSchema, testutil.NewRNG(1).RefRanges(1, 1, 3, 0)))

	fingerprint := func(name string) [32]byte {
		r, err := Open(t.Context(), store, name)
		require.NoError(t, err)
		defer r.Close()
		return r.Fingerprint()
	}

	assert.Equal(t, fingerprint("vets_001.avro"), fingerprint("vets_002.avro"))
	assert.NotEqual(t, fingerprint("vets_001.avro"), fingerprint("ref_ranges_001.avro"))
}
