// Package testutil provides testing utilities for gvsingest.
//
// This package is intended for use in tests only. It generates
// deterministic variant and reference range rows and encodes them as Avro
// object container files.
//
// # Row Generation
//
//	rng := testutil.NewRNG(seed)
//	vets := rng.Vets(1, 24, 88, 1000)
//	ranges := rng.RefRanges(1, 1, 100, 0, "1", "4")
//
// # Encoding
//
//	data := testutil.EncodeOCF(t, testutil.VetsSchema, vets)
//	store.Put("vets_001.avro", data)
package testutil
