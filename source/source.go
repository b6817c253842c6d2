package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
	"github.com/hupe1980/gvsingest/blobstore"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/record"
)

// Extension marks record files.
const Extension = ".avro"

// ErrNotRecordSchema is returned for files whose schema is not an Avro
// record.
var ErrNotRecordSchema = errors.New("source: schema is not a record")

// FindPaths returns every blob under prefix ending in Extension, sorted.
func FindPaths(ctx context.Context, store blobstore.Store, prefix string) ([]string, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("source: list: %w", err)
	}
	paths := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasSuffix(n, Extension) {
			paths = append(paths, n)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Reader decodes one Avro object container file into records.
type Reader struct {
	name   string
	blob   blobstore.Blob
	dec    *ocf.Decoder
	schema *avro.RecordSchema
	count  int64
}

// Open opens name in store and reads the container header. The caller must
// Close the reader.
func Open(ctx context.Context, store blobstore.Store, name string) (*Reader, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", name, err)
	}

	dec, err := ocf.NewDecoder(blobstore.NewReader(blob))
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("source: %s: %w", name, err)
	}

	schema, err := avro.Parse(string(dec.Metadata()["avro.schema"]))
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("source: %s: schema: %w", name, err)
	}
	rs, ok := schema.(*avro.RecordSchema)
	if !ok {
		_ = blob.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRecordSchema, name)
	}

	return &Reader{name: name, blob: blob, dec: dec, schema: rs}, nil
}

// Name returns the blob name.
func (r *Reader) Name() string { return r.name }

// Count returns the number of records decoded so far.
func (r *Reader) Count() int64 { return r.count }

// Schema describes the record fields in declaration order. Type holds the
// field's Avro type as canonical JSON.
func (r *Reader) Schema() []bundle.FieldDescriptor {
	fields := r.schema.Fields()
	out := make([]bundle.FieldDescriptor, len(fields))
	for i, f := range fields {
		out[i] = bundle.FieldDescriptor{Name: f.Name(), Type: f.Type().String()}
	}
	return out
}

// Fingerprint identifies the file's schema. Files written with the same
// schema share it.
func (r *Reader) Fingerprint() [32]byte {
	return r.schema.Fingerprint()
}

// Records yields the file's records in order with fields in schema order.
// Union values are unwrapped to their branch value. Iteration stops at the
// first decode error.
func (r *Reader) Records() iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		fields := r.schema.Fields()
		for r.dec.HasNext() {
			var m map[string]any
			if err := r.dec.Decode(&m); err != nil {
				yield(nil, fmt.Errorf("source: %s: record %d: %w", r.name, r.count+1, err))
				return
			}
			r.count++

			rec := record.New(len(fields))
			for _, f := range fields {
				rec.Set(f.Name(), unwrap(f.Type(), m[f.Name()]))
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := r.dec.Error(); err != nil {
			yield(nil, fmt.Errorf("source: %s: %w", r.name, err))
		}
	}
}

// Close releases the underlying blob.
func (r *Reader) Close() error {
	return r.blob.Close()
}

// Each opens name, passes the reader to fn, and always closes it.
func Each(ctx context.Context, store blobstore.Store, name string, fn func(*Reader) error) (err error) {
	r, err := Open(ctx, store, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(r)
}

// unwrap resolves generic union values of the form {"type": value}.
func unwrap(s avro.Schema, v any) any {
	if _, ok := s.(*avro.UnionSchema); !ok {
		return v
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}
