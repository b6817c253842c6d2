package record

import (
	"errors"
	"fmt"
	"strings"
)

// ChromosomeMultiplier packs chromosome and intra-chromosome offset into a
// single location: location = chromosome*ChromosomeMultiplier + offset.
const ChromosomeMultiplier int64 = 1_000_000_000_000

// Chromosome recovers the chromosome from an encoded location.
func Chromosome(location int64) int64 { return location / ChromosomeMultiplier }

// Offset recovers the intra-chromosome offset from an encoded location.
func Offset(location int64) int64 { return location % ChromosomeMultiplier }

// Encode packs a chromosome and offset into a location.
func Encode(chromosome, offset int64) int64 {
	return chromosome*ChromosomeMultiplier + offset
}

// ErrMalformedRecord matches every *MalformedRecordError via errors.Is.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports a record lacking fields required for span
// calculation or chromosome derivation.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: field %q: %s", e.Field, e.Reason)
}

// Is reports ErrMalformedRecord as the sentinel for all malformed records.
func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// Shape is the classified form of a record: either a ReferenceBlock or a
// Variant.
type Shape interface {
	// Start returns the anchor location.
	Start() int64
	// End returns the highest location covered, inclusive.
	End() int64
}

// ReferenceBlock is a run of reference-matching positions.
type ReferenceBlock struct {
	Location int64
	Length   int64
}

// Start implements Shape.
func (b ReferenceBlock) Start() int64 { return b.Location }

// End implements Shape.
func (b ReferenceBlock) End() int64 { return b.Location + b.Length - 1 }

// Variant is a variant call with a reference allele and one or more
// alternate alleles.
type Variant struct {
	Location int64
	Ref      string
	Alts     []string
}

// Start implements Shape.
func (v Variant) Start() int64 { return v.Location }

// End implements Shape. A SNP with equal-length alleles ends at its
// location.
func (v Variant) End() int64 {
	longest := len(v.Ref)
	for _, a := range v.Alts {
		longest = max(longest, len(a))
	}
	return v.Location + int64(longest) - 1
}

// Location returns the required location field.
func Location(r *Record) (int64, error) {
	if !r.Has(FieldLocation) {
		return 0, &MalformedRecordError{Field: FieldLocation, Reason: "missing"}
	}
	loc, ok := r.Int64(FieldLocation)
	if !ok {
		return 0, &MalformedRecordError{Field: FieldLocation, Reason: "not an integer"}
	}
	return loc, nil
}

// SampleID returns the required sample_id field.
func SampleID(r *Record) (int64, error) {
	if !r.Has(FieldSampleID) {
		return 0, &MalformedRecordError{Field: FieldSampleID, Reason: "missing"}
	}
	id, ok := r.Int64(FieldSampleID)
	if !ok {
		return 0, &MalformedRecordError{Field: FieldSampleID, Reason: "not an integer"}
	}
	return id, nil
}

// Classify turns a raw record into its Shape. A present length field
// takes precedence over ref/alt.
func Classify(r *Record) (Shape, error) {
	loc, err := Location(r)
	if err != nil {
		return nil, err
	}

	if r.Has(FieldLength) {
		n, ok := r.Int64(FieldLength)
		if !ok {
			return nil, &MalformedRecordError{Field: FieldLength, Reason: "not an integer"}
		}
		if n < 1 {
			return nil, &MalformedRecordError{Field: FieldLength, Reason: "must be positive"}
		}
		return ReferenceBlock{Location: loc, Length: n}, nil
	}

	ref, ok := r.String(FieldRef)
	if !ok {
		return nil, &MalformedRecordError{Field: FieldRef, Reason: "missing, and no length present"}
	}
	alt, ok := r.String(FieldAlt)
	if !ok {
		return nil, &MalformedRecordError{Field: FieldAlt, Reason: "missing, and no length present"}
	}
	if alt == "" {
		return nil, &MalformedRecordError{Field: FieldAlt, Reason: "empty"}
	}
	return Variant{Location: loc, Ref: ref, Alts: strings.Split(alt, ",")}, nil
}

// SpanEnd returns the highest genomic coordinate covered by the record, in
// the same encoded space as its location.
func SpanEnd(r *Record) (int64, error) {
	s, err := Classify(r)
	if err != nil {
		return 0, err
	}
	return s.End(), nil
}

// Normalize removes sample_id and every nil-valued field in place. The
// sample id is hoisted to the enclosing document, so callers must capture
// it first.
func Normalize(r *Record) *Record {
	r.Delete(FieldSampleID)
	// Delete shifts keys, so walk a snapshot.
	for _, k := range append([]string(nil), r.keys...) {
		if r.values[k] == nil {
			r.Delete(k)
		}
	}
	return r
}
