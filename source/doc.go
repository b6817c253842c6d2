// Package source reads variant-call records from Avro object container
// files held in a blobstore.Store.
//
//	paths, _ := source.FindPaths(ctx, store, "")
//	for _, p := range paths {
//	    err := source.Each(ctx, store, p, func(r *source.Reader) error {
//	        for rec, err := range r.Records() { ... }
//	        return nil
//	    })
//	}
//
// Reader.Schema exposes the field list so bundled documents can carry it.
package source
