// Package bundle groups variant-call records into size-bounded documents.
//
// A Bundler consumes records in order. Contiguous records sharing a sample
// and chromosome join the open document until it holds
// MaxEntriesPerDocument entries; any change of sample or chromosome, or a
// full document, seals the open document and starts a new one.
//
//	ids, records := &bundle.Counter{}, &bundle.Counter{}
//	b, _ := bundle.NewBundler(bundle.Config{MaxEntriesPerDocument: 10000}, schemaFn, ids, records)
//	for doc, err := range bundle.Bundle(reader.Records(), b) {
//	    ...
//	}
//
// Sealed documents carry their genomic span (Location.End is the largest
// span end of any entry), the source schema, and the drop-state tag when
// filtering is active.
package bundle
