package testutil

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/hupe1980/gvsingest/record"
)

// VetsSchema is the layout of a variant table export.
const VetsSchema = `{
	"type": "record",
	"name": "vet",
	"fields": [
		{"name": "location", "type": "long"},
		{"name": "sample_id", "type": "long"},
		{"name": "ref", "type": "string"},
		{"name": "alt", "type": "string"},
		{"name": "call_GT", "type": ["null", "string"], "default": null},
		{"name": "call_GQ", "type": ["null", "long"], "default": null}
	]
}`

// RefRangesSchema is the layout of a reference range export.
const RefRangesSchema = `{
	"type": "record",
	"name": "ref_ranges",
	"fields": [
		{"name": "location", "type": "long"},
		{"name": "sample_id", "type": "long"},
		{"name": "length", "type": "long"},
		{"name": "state", "type": "string"}
	]
}`

// Row is one record in the shape the Avro encoder accepts.
type Row = map[string]any

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

var (
	bases   = []string{"A", "C", "G", "T"}
	alleles = []string{"C", "G", "T", "AT", "C,G", "GTT,T"}
	calls   = []string{"0/1", "1/1", "0|1"}
)

// Vets returns n variant rows for one sample on one chromosome with
// strictly increasing offsets starting at start. Roughly one row in five
// has null call fields.
func (r *RNG) Vets(sample, chromosome int64, n int, start int64) []Row {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]Row, n)
	offset := start
	for i := range rows {
		var gt, gq any
		if r.rand.Intn(5) != 0 {
			gt = calls[r.rand.Intn(len(calls))]
			gq = int64(r.rand.Intn(99))
		}
		ref := bases[r.rand.Intn(len(bases))]
		if r.rand.Intn(4) == 0 {
			ref += bases[r.rand.Intn(len(bases))]
		}
		rows[i] = Row{
			record.FieldLocation: record.Encode(chromosome, offset),
			record.FieldSampleID: sample,
			record.FieldRef:      ref,
			record.FieldAlt:      alleles[r.rand.Intn(len(alleles))],
			"call_GT":            gt,
			"call_GQ":            gq,
		}
		offset += 1 + int64(r.rand.Intn(20))
	}
	return rows
}

// RefRanges returns n reference block rows for one sample on one chromosome.
// States are drawn from states.
func (r *RNG) RefRanges(sample, chromosome int64, n int, start int64, states ...string) []Row {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(states) == 0 {
		states = []string{"0", "1", "2", "3", "4", "5", "6", "v"}
	}

	rows := make([]Row, n)
	offset := start
	for i := range rows {
		length := 1 + int64(r.rand.Intn(1000))
		rows[i] = Row{
			record.FieldLocation: record.Encode(chromosome, offset),
			record.FieldSampleID: sample,
			record.FieldLength:   length,
			record.FieldState:    states[r.rand.Intn(len(states))],
		}
		offset += length
	}
	return rows
}

// EncodeOCF writes rows as an Avro object container file.
func EncodeOCF(tb testing.TB, schema string, rows []Row, opts ...ocf.EncoderFunc) []byte {
	tb.Helper()

	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema, &buf, opts...)
	if err != nil {
		tb.Fatalf("testutil: new encoder: %v", err)
	}
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			tb.Fatalf("testutil: encode row %d: %v", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("testutil: close encoder: %v", err)
	}
	return buf.Bytes()
}

// Concat joins row slices.
func Concat(parts ...[]Row) []Row {
	var out []Row
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
