// Package gvsingest loads genomic variant-call records into a document
// store.
//
// Records are read from Avro files, grouped into documents of contiguous
// records that share a sample and a chromosome, and written in windows of
// create operations through a bulk.Executor.
//
// # Quick Start
//
//	store := blobstore.NewLocalStore("./avro")
//	paths, _ := source.FindPaths(ctx, store, "")
//
//	exec, _ := bulk.NewDynamoDBExecutor(ddb, "gvs.vets", bulk.DefaultExecutionOptions())
//	loader, _ := gvsingest.New(store, exec,
//	    gvsingest.WithDropState("4"),
//	    gvsingest.WithLogger(gvsingest.NewTextLogger(os.Stderr, slog.LevelInfo)),
//	)
//	defer loader.Close()
//
//	stats, err := loader.Load(ctx, paths)
//
// # Submission Modes
//
// Per-file mode (default) bundles one file completely, then submits its
// windows one at a time and waits for each.
//
// Continuous mode (WithContinuous) streams documents from all files in a
// single pipeline and submits every window concurrently. Bound it with
// WithMaxInFlightWindows.
//
// # Failures
//
// A malformed record, a source error or a canceled context aborts Load.
// Write failures never do: every result is classified (see Classify), and
// each non-success is logged as a *WriteFailure and counted in Stats.
package gvsingest
