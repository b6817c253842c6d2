// Package record models the flat variant-call records read from record
// files.
//
// A record is either a reference block (carries length) or a variant
// (carries ref and a comma-separated alt list). Locations pack the
// chromosome into the high digits:
//
//	location = chromosome*ChromosomeMultiplier + offset
//
// Classify turns a raw Record into its Shape; SpanEnd computes the highest
// covered coordinate; Normalize strips the fields a document hoists or
// does not need to store.
package record
